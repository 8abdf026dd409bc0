package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/steward/hook"
	"github.com/xraph/steward/jobstate"
	"github.com/xraph/steward/playbook"
)

// meterName is the instrumentation scope for steward lifecycle metrics.
const meterName = "github.com/xraph/steward/observability"

// Compile-time interface checks.
var (
	_ hook.Extension      = (*MetricsExtension)(nil)
	_ hook.StateSaved     = (*MetricsExtension)(nil)
	_ hook.StateDeleted   = (*MetricsExtension)(nil)
	_ hook.JobScheduled   = (*MetricsExtension)(nil)
	_ hook.JobUnscheduled = (*MetricsExtension)(nil)
	_ hook.RunStarted     = (*MetricsExtension)(nil)
	_ hook.RunCompleted   = (*MetricsExtension)(nil)
	_ hook.RunFailed      = (*MetricsExtension)(nil)
	_ hook.SnapshotTaken  = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via OTel
// instruments. Register it on the hook registry to track state writes,
// scheduling churn, run outcomes and snapshots.
type MetricsExtension struct {
	stateSaved     metric.Int64Counter
	stateDeleted   metric.Int64Counter
	jobScheduled   metric.Int64Counter
	jobUnscheduled metric.Int64Counter
	runStarted     metric.Int64Counter
	runCompleted   metric.Int64Counter
	runFailed      metric.Int64Counter
	runDuration    metric.Float64Histogram
	snapshots      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider. Without a configured provider the instruments are
// noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Use a ManualReader-backed provider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	m.stateSaved, _ = meter.Int64Counter("steward.state.saved",
		metric.WithDescription("Job states persisted"))
	m.stateDeleted, _ = meter.Int64Counter("steward.state.deleted",
		metric.WithDescription("Job states removed"))
	m.jobScheduled, _ = meter.Int64Counter("steward.job.scheduled",
		metric.WithDescription("Jobs added to the scheduler"))
	m.jobUnscheduled, _ = meter.Int64Counter("steward.job.unscheduled",
		metric.WithDescription("Jobs removed from the scheduler"))
	m.runStarted, _ = meter.Int64Counter("steward.run.started",
		metric.WithDescription("Playbook runs started"))
	m.runCompleted, _ = meter.Int64Counter("steward.run.completed",
		metric.WithDescription("Playbook runs completed successfully"))
	m.runFailed, _ = meter.Int64Counter("steward.run.failed",
		metric.WithDescription("Playbook runs that returned an error"))
	m.runDuration, _ = meter.Float64Histogram("steward.run.lifecycle.duration",
		metric.WithDescription("Completed run duration in seconds"),
		metric.WithUnit("s"))
	m.snapshots, _ = meter.Int64Counter("steward.snapshot.taken",
		metric.WithDescription("Archive snapshots written"))
	return m
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── State lifecycle hooks ─────────────────────────────

// OnStateSaved implements hook.StateSaved.
func (m *MetricsExtension) OnStateSaved(ctx context.Context, st *jobstate.JobState) error {
	m.stateSaved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("playbook", st.Playbook),
	))
	return nil
}

// OnStateDeleted implements hook.StateDeleted.
func (m *MetricsExtension) OnStateDeleted(ctx context.Context, _ string) error {
	m.stateDeleted.Add(ctx, 1)
	return nil
}

// ── Scheduling lifecycle hooks ────────────────────────

// OnJobScheduled implements hook.JobScheduled.
func (m *MetricsExtension) OnJobScheduled(ctx context.Context, st *jobstate.JobState) error {
	m.jobScheduled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("playbook", st.Playbook),
	))
	return nil
}

// OnJobUnscheduled implements hook.JobUnscheduled.
func (m *MetricsExtension) OnJobUnscheduled(ctx context.Context, _ string) error {
	m.jobUnscheduled.Add(ctx, 1)
	return nil
}

// ── Run lifecycle hooks ───────────────────────────────

// OnRunStarted implements hook.RunStarted.
func (m *MetricsExtension) OnRunStarted(ctx context.Context, run *playbook.Run) error {
	m.runStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("playbook", run.Playbook),
	))
	return nil
}

// OnRunCompleted implements hook.RunCompleted.
func (m *MetricsExtension) OnRunCompleted(ctx context.Context, run *playbook.Run, elapsed time.Duration) error {
	attrs := metric.WithAttributes(attribute.String("playbook", run.Playbook))
	m.runCompleted.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnRunFailed implements hook.RunFailed.
func (m *MetricsExtension) OnRunFailed(ctx context.Context, run *playbook.Run, _ error) error {
	m.runFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("playbook", run.Playbook),
	))
	return nil
}

// ── Snapshot hooks ────────────────────────────────────

// OnSnapshotTaken implements hook.SnapshotTaken.
func (m *MetricsExtension) OnSnapshotTaken(ctx context.Context, _ string, states int) error {
	m.snapshots.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("states", states),
	))
	return nil
}
