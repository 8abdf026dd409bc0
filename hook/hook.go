// Package hook defines the extension system for steward. Extensions are
// notified of lifecycle events (state saved, job scheduled, run
// completed, etc.) and can react to them with metrics, auditing, or
// custom side effects.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/xraph/steward/jobstate"
	"github.com/xraph/steward/playbook"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// State lifecycle hooks
// ──────────────────────────────────────────────────

// StateSaved is called after a job state is persisted.
type StateSaved interface {
	OnStateSaved(ctx context.Context, st *jobstate.JobState) error
}

// StateDeleted is called after a job state is removed.
type StateDeleted interface {
	OnStateDeleted(ctx context.Context, jobID string) error
}

// ──────────────────────────────────────────────────
// Scheduling lifecycle hooks
// ──────────────────────────────────────────────────

// JobScheduled is called when a job is added to the scheduler.
type JobScheduled interface {
	OnJobScheduled(ctx context.Context, st *jobstate.JobState) error
}

// JobUnscheduled is called when a job is removed from the scheduler.
type JobUnscheduled interface {
	OnJobUnscheduled(ctx context.Context, jobID string) error
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// RunStarted is called when a playbook run begins executing.
type RunStarted interface {
	OnRunStarted(ctx context.Context, run *playbook.Run) error
}

// RunCompleted is called after a playbook run finishes successfully.
type RunCompleted interface {
	OnRunCompleted(ctx context.Context, run *playbook.Run, elapsed time.Duration) error
}

// RunFailed is called when a playbook run returns an error.
type RunFailed interface {
	OnRunFailed(ctx context.Context, run *playbook.Run, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// SnapshotTaken is called after an archive snapshot is written.
type SnapshotTaken interface {
	OnSnapshotTaken(ctx context.Context, key string, states int) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
