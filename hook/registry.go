package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/steward/jobstate"
	"github.com/xraph/steward/playbook"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type stateSavedEntry struct {
	name string
	hook StateSaved
}

type stateDeletedEntry struct {
	name string
	hook StateDeleted
}

type jobScheduledEntry struct {
	name string
	hook JobScheduled
}

type jobUnscheduledEntry struct {
	name string
	hook JobUnscheduled
}

type runStartedEntry struct {
	name string
	hook RunStarted
}

type runCompletedEntry struct {
	name string
	hook RunCompleted
}

type runFailedEntry struct {
	name string
	hook RunFailed
}

type snapshotTakenEntry struct {
	name string
	hook SnapshotTaken
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	stateSaved     []stateSavedEntry
	stateDeleted   []stateDeletedEntry
	jobScheduled   []jobScheduledEntry
	jobUnscheduled []jobUnscheduledEntry
	runStarted     []runStartedEntry
	runCompleted   []runCompletedEntry
	runFailed      []runFailedEntry
	snapshotTaken  []snapshotTakenEntry
	shutdown       []shutdownEntry
}

// Registry satisfies the emitter interfaces of the packages it feeds.
var _ jobstate.Emitter = (*Registry)(nil)

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(StateSaved); ok {
		r.stateSaved = append(r.stateSaved, stateSavedEntry{name, h})
	}
	if h, ok := e.(StateDeleted); ok {
		r.stateDeleted = append(r.stateDeleted, stateDeletedEntry{name, h})
	}
	if h, ok := e.(JobScheduled); ok {
		r.jobScheduled = append(r.jobScheduled, jobScheduledEntry{name, h})
	}
	if h, ok := e.(JobUnscheduled); ok {
		r.jobUnscheduled = append(r.jobUnscheduled, jobUnscheduledEntry{name, h})
	}
	if h, ok := e.(RunStarted); ok {
		r.runStarted = append(r.runStarted, runStartedEntry{name, h})
	}
	if h, ok := e.(RunCompleted); ok {
		r.runCompleted = append(r.runCompleted, runCompletedEntry{name, h})
	}
	if h, ok := e.(RunFailed); ok {
		r.runFailed = append(r.runFailed, runFailedEntry{name, h})
	}
	if h, ok := e.(SnapshotTaken); ok {
		r.snapshotTaken = append(r.snapshotTaken, snapshotTakenEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitStateSaved notifies all extensions that implement StateSaved.
func (r *Registry) EmitStateSaved(ctx context.Context, st *jobstate.JobState) {
	for _, e := range r.stateSaved {
		if err := e.hook.OnStateSaved(ctx, st); err != nil {
			r.logHookError("OnStateSaved", e.name, err)
		}
	}
}

// EmitStateDeleted notifies all extensions that implement StateDeleted.
func (r *Registry) EmitStateDeleted(ctx context.Context, jobID string) {
	for _, e := range r.stateDeleted {
		if err := e.hook.OnStateDeleted(ctx, jobID); err != nil {
			r.logHookError("OnStateDeleted", e.name, err)
		}
	}
}

// EmitJobScheduled notifies all extensions that implement JobScheduled.
func (r *Registry) EmitJobScheduled(ctx context.Context, st *jobstate.JobState) {
	for _, e := range r.jobScheduled {
		if err := e.hook.OnJobScheduled(ctx, st); err != nil {
			r.logHookError("OnJobScheduled", e.name, err)
		}
	}
}

// EmitJobUnscheduled notifies all extensions that implement JobUnscheduled.
func (r *Registry) EmitJobUnscheduled(ctx context.Context, jobID string) {
	for _, e := range r.jobUnscheduled {
		if err := e.hook.OnJobUnscheduled(ctx, jobID); err != nil {
			r.logHookError("OnJobUnscheduled", e.name, err)
		}
	}
}

// EmitRunStarted notifies all extensions that implement RunStarted.
func (r *Registry) EmitRunStarted(ctx context.Context, run *playbook.Run) {
	for _, e := range r.runStarted {
		if err := e.hook.OnRunStarted(ctx, run); err != nil {
			r.logHookError("OnRunStarted", e.name, err)
		}
	}
}

// EmitRunCompleted notifies all extensions that implement RunCompleted.
func (r *Registry) EmitRunCompleted(ctx context.Context, run *playbook.Run, elapsed time.Duration) {
	for _, e := range r.runCompleted {
		if err := e.hook.OnRunCompleted(ctx, run, elapsed); err != nil {
			r.logHookError("OnRunCompleted", e.name, err)
		}
	}
}

// EmitRunFailed notifies all extensions that implement RunFailed.
func (r *Registry) EmitRunFailed(ctx context.Context, run *playbook.Run, runErr error) {
	for _, e := range r.runFailed {
		if err := e.hook.OnRunFailed(ctx, run, runErr); err != nil {
			r.logHookError("OnRunFailed", e.name, err)
		}
	}
}

// EmitSnapshotTaken notifies all extensions that implement SnapshotTaken.
func (r *Registry) EmitSnapshotTaken(ctx context.Context, key string, states int) {
	for _, e := range r.snapshotTaken {
		if err := e.hook.OnSnapshotTaken(ctx, key, states); err != nil {
			r.logHookError("OnSnapshotTaken", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the
// scheduling or execution pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
