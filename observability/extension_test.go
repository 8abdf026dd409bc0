package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/steward/jobstate"
	"github.com/xraph/steward/observability"
	"github.com/xraph/steward/playbook"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestState() *jobstate.JobState {
	return &jobstate.JobState{
		JobID:    "nightly-probe",
		Playbook: "probe-disk",
	}
}

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64] data", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_StateSaved(t *testing.T) {
	e, reader := newTestExtension()
	if err := e.OnStateSaved(context.Background(), newTestState()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "steward.state.saved"); got != 1 {
		t.Errorf("steward.state.saved: want 1, got %d", got)
	}
}

func TestMetricsExtension_StateDeleted(t *testing.T) {
	e, reader := newTestExtension()
	if err := e.OnStateDeleted(context.Background(), "nightly-probe"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "steward.state.deleted"); got != 1 {
		t.Errorf("steward.state.deleted: want 1, got %d", got)
	}
}

func TestMetricsExtension_Scheduling(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()

	if err := e.OnJobScheduled(ctx, newTestState()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnJobUnscheduled(ctx, "nightly-probe"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterValue(t, reader, "steward.job.scheduled"); got != 1 {
		t.Errorf("steward.job.scheduled: want 1, got %d", got)
	}
	if got := counterValue(t, reader, "steward.job.unscheduled"); got != 1 {
		t.Errorf("steward.job.unscheduled: want 1, got %d", got)
	}
}

func TestMetricsExtension_RunLifecycle(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()
	run := playbook.NewRun("probe-disk", "nightly-probe", nil)

	if err := e.OnRunStarted(ctx, run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnRunCompleted(ctx, run, 100*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnRunFailed(ctx, run, errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterValue(t, reader, "steward.run.started"); got != 1 {
		t.Errorf("steward.run.started: want 1, got %d", got)
	}
	if got := counterValue(t, reader, "steward.run.completed"); got != 1 {
		t.Errorf("steward.run.completed: want 1, got %d", got)
	}
	if got := counterValue(t, reader, "steward.run.failed"); got != 1 {
		t.Errorf("steward.run.failed: want 1, got %d", got)
	}
}

func TestMetricsExtension_RunDurationHistogram(t *testing.T) {
	e, reader := newTestExtension()
	run := playbook.NewRun("probe-disk", "", nil)

	if err := e.OnRunCompleted(context.Background(), run, 250*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "steward.run.lifecycle.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatal("expected Histogram[float64] data")
			}
			if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
				t.Fatal("expected one recorded duration")
			}
			found = true
		}
	}
	if !found {
		t.Fatal("steward.run.lifecycle.duration metric not found")
	}
}

func TestMetricsExtension_SnapshotTaken(t *testing.T) {
	e, reader := newTestExtension()
	if err := e.OnSnapshotTaken(context.Background(), "snapshots/2026-08-30.json", 12); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "steward.snapshot.taken"); got != 1 {
		t.Errorf("steward.snapshot.taken: want 1, got %d", got)
	}
}
