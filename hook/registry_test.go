package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/steward/hook"
	"github.com/xraph/steward/jobstate"
	"github.com/xraph/steward/playbook"
)

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnStateSaved(_ context.Context, _ *jobstate.JobState) error {
	e.calls = append(e.calls, "OnStateSaved")
	return nil
}

func (e *allHooksExt) OnStateDeleted(_ context.Context, _ string) error {
	e.calls = append(e.calls, "OnStateDeleted")
	return nil
}

func (e *allHooksExt) OnJobScheduled(_ context.Context, _ *jobstate.JobState) error {
	e.calls = append(e.calls, "OnJobScheduled")
	return nil
}

func (e *allHooksExt) OnJobUnscheduled(_ context.Context, _ string) error {
	e.calls = append(e.calls, "OnJobUnscheduled")
	return nil
}

func (e *allHooksExt) OnRunStarted(_ context.Context, _ *playbook.Run) error {
	e.calls = append(e.calls, "OnRunStarted")
	return nil
}

func (e *allHooksExt) OnRunCompleted(_ context.Context, _ *playbook.Run, _ time.Duration) error {
	e.calls = append(e.calls, "OnRunCompleted")
	return nil
}

func (e *allHooksExt) OnRunFailed(_ context.Context, _ *playbook.Run, _ error) error {
	e.calls = append(e.calls, "OnRunFailed")
	return nil
}

func (e *allHooksExt) OnSnapshotTaken(_ context.Context, _ string, _ int) error {
	e.calls = append(e.calls, "OnSnapshotTaken")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// stateOnlyExt only implements the state hooks.
type stateOnlyExt struct {
	calls []string
}

func (e *stateOnlyExt) Name() string { return "state-only" }

func (e *stateOnlyExt) OnStateSaved(_ context.Context, _ *jobstate.JobState) error {
	e.calls = append(e.calls, "OnStateSaved")
	return nil
}

// failingExt returns errors from every hook it implements.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnStateSaved(_ context.Context, _ *jobstate.JobState) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("boom")
}

func TestEmitAllHooks(t *testing.T) {
	t.Parallel()
	r := hook.NewRegistry(slog.Default())
	e := &allHooksExt{}
	r.Register(e)

	ctx := context.Background()
	st := &jobstate.JobState{JobID: "job-1"}
	run := playbook.NewRun("pod-bash", "job-1", nil)

	r.EmitStateSaved(ctx, st)
	r.EmitStateDeleted(ctx, "job-1")
	r.EmitJobScheduled(ctx, st)
	r.EmitJobUnscheduled(ctx, "job-1")
	r.EmitRunStarted(ctx, run)
	r.EmitRunCompleted(ctx, run, time.Second)
	r.EmitRunFailed(ctx, run, errors.New("run error"))
	r.EmitSnapshotTaken(ctx, "snapshots/2026-01-01", 3)
	r.EmitShutdown(ctx)

	want := []string{
		"OnStateSaved", "OnStateDeleted", "OnJobScheduled", "OnJobUnscheduled",
		"OnRunStarted", "OnRunCompleted", "OnRunFailed", "OnSnapshotTaken",
		"OnShutdown",
	}
	if len(e.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", e.calls, want)
	}
	for i := range want {
		if e.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, e.calls[i], want[i])
		}
	}
}

func TestPartialExtensionOnlySeesItsHooks(t *testing.T) {
	t.Parallel()
	r := hook.NewRegistry(slog.Default())
	e := &stateOnlyExt{}
	r.Register(e)

	ctx := context.Background()
	r.EmitStateSaved(ctx, &jobstate.JobState{JobID: "job-1"})
	r.EmitShutdown(ctx) // not implemented, must not panic

	if len(e.calls) != 1 || e.calls[0] != "OnStateSaved" {
		t.Errorf("calls = %v, want [OnStateSaved]", e.calls)
	}
}

func TestHookErrorsAreSwallowed(t *testing.T) {
	t.Parallel()
	r := hook.NewRegistry(slog.Default())
	r.Register(&failingExt{})
	r.Register(&stateOnlyExt{})

	ctx := context.Background()
	// Must not panic and must keep notifying later extensions.
	r.EmitStateSaved(ctx, &jobstate.JobState{JobID: "job-1"})
	r.EmitShutdown(ctx)
}

func TestRegistrationOrder(t *testing.T) {
	t.Parallel()
	r := hook.NewRegistry(slog.Default())
	a := &stateOnlyExt{}
	b := &allHooksExt{}
	r.Register(a)
	r.Register(b)

	if got := len(r.Extensions()); got != 2 {
		t.Fatalf("Extensions = %d, want 2", got)
	}

	r.EmitStateSaved(context.Background(), &jobstate.JobState{JobID: "job-1"})
	if len(a.calls) != 1 || len(b.calls) != 1 {
		t.Errorf("both extensions should be notified, got a=%v b=%v", a.calls, b.calls)
	}
}
