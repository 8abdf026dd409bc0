package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/steward"
	"github.com/xraph/steward/backoff"
	clustermem "github.com/xraph/steward/cluster/memory"
	"github.com/xraph/steward/docstore/memory"
	"github.com/xraph/steward/hook"
	"github.com/xraph/steward/jobstate"
	"github.com/xraph/steward/playbook"
	"github.com/xraph/steward/scheduler"
)

// syncPool executes submitted runs inline and reports the outcome
// through the hook registry, standing in for the real runner pool.
type syncPool struct {
	hooks *hook.Registry

	mu     sync.Mutex
	runs   []*playbook.Run
	outome map[string]error // playbook name -> run result
}

func newSyncPool(hooks *hook.Registry) *syncPool {
	return &syncPool{hooks: hooks, outome: make(map[string]error)}
}

func (p *syncPool) failWith(name string, err error) {
	p.mu.Lock()
	p.outome[name] = err
	p.mu.Unlock()
}

func (p *syncPool) Submit(ctx context.Context, run *playbook.Run) error {
	p.mu.Lock()
	p.runs = append(p.runs, run)
	err := p.outome[run.Playbook]
	p.mu.Unlock()

	if err != nil {
		p.hooks.EmitRunFailed(ctx, run, err)
	} else {
		p.hooks.EmitRunCompleted(ctx, run, time.Millisecond)
	}
	return nil
}

func (p *syncPool) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.runs)
}

func setupScheduler(t *testing.T, opts ...scheduler.Option) (
	*scheduler.Scheduler, *jobstate.Store, *playbook.Registry, *syncPool,
) {
	t.Helper()
	logger := slog.Default()
	states := jobstate.New(memory.New())
	if err := states.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	playbooks := playbook.NewRegistry()
	playbooks.MustRegister(playbook.Definition{
		Name: "probe-disk",
		Func: func(_ context.Context, _ *playbook.Run) error { return nil },
	})
	hooks := hook.NewRegistry(logger)
	pool := newSyncPool(hooks)

	opts = append([]scheduler.Option{
		scheduler.WithTickInterval(10 * time.Millisecond),
		scheduler.WithBackoff(backoff.NewConstant(20 * time.Millisecond)),
	}, opts...)
	sched := scheduler.New(states, playbooks, pool, hooks, logger, opts...)
	return sched, states, playbooks, pool
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestSchedulePersistsState(t *testing.T) {
	sched, states, _, _ := setupScheduler(t)
	ctx := context.Background()

	err := sched.Schedule(ctx, scheduler.Definition{
		JobID:    "nightly",
		Playbook: "probe-disk",
		Schedule: "0 3 * * *",
		Params:   map[string]string{"target": "node-1"},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	st, ok, err := states.Get(ctx, "nightly")
	if err != nil || !ok {
		t.Fatalf("expected persisted state, ok=%v err=%v", ok, err)
	}
	if st.Playbook != "probe-disk" {
		t.Errorf("playbook = %q", st.Playbook)
	}
	if st.NextRunAt == nil || !st.NextRunAt.After(time.Now()) {
		t.Errorf("NextRunAt = %v, want future time", st.NextRunAt)
	}
}

func TestScheduleUnknownPlaybook(t *testing.T) {
	sched, _, _, _ := setupScheduler(t)

	err := sched.Schedule(context.Background(), scheduler.Definition{
		JobID:    "bad",
		Playbook: "missing",
		Schedule: "@every 1m",
	})
	if !errors.Is(err, steward.ErrPlaybookNotFound) {
		t.Fatalf("expected ErrPlaybookNotFound, got %v", err)
	}
}

func TestScheduleBadExpression(t *testing.T) {
	sched, _, _, _ := setupScheduler(t)

	err := sched.Schedule(context.Background(), scheduler.Definition{
		JobID:    "bad",
		Playbook: "probe-disk",
		Schedule: "not a schedule",
	})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestUnschedule(t *testing.T) {
	sched, states, _, _ := setupScheduler(t)
	ctx := context.Background()

	if err := sched.Schedule(ctx, scheduler.Definition{
		JobID:    "nightly",
		Playbook: "probe-disk",
		Schedule: "@every 1h",
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if err := sched.Unschedule(ctx, "nightly"); err != nil {
		t.Fatalf("unschedule: %v", err)
	}

	_, ok, err := states.Get(ctx, "nightly")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("state still present after unschedule")
	}
}

func TestTickFiresDueJob(t *testing.T) {
	sched, states, _, pool := setupScheduler(t)
	ctx := context.Background()

	if err := sched.Schedule(ctx, scheduler.Definition{
		JobID:          "immediate",
		Playbook:       "probe-disk",
		Schedule:       "@every 1h",
		RunImmediately: true,
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop(ctx)

	waitFor(t, 3*time.Second, func() bool { return pool.count() >= 1 },
		"due job never fired")

	waitFor(t, 3*time.Second, func() bool {
		st, ok, _ := states.Get(ctx, "immediate")
		return ok && st.ExecCount == 1 && st.LastRunAt != nil
	}, "state not advanced after run")

	st, _, _ := states.Get(ctx, "immediate")
	if st.NextRunAt == nil || !st.NextRunAt.After(time.Now()) {
		t.Errorf("NextRunAt = %v, want future time", st.NextRunAt)
	}
}

func TestRepeatBudgetRemovesJob(t *testing.T) {
	sched, states, _, _ := setupScheduler(t)
	ctx := context.Background()

	if err := sched.Schedule(ctx, scheduler.Definition{
		JobID:          "once",
		Playbook:       "probe-disk",
		Schedule:       "@every 1h",
		Repeat:         1,
		RunImmediately: true,
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop(ctx)

	waitFor(t, 3*time.Second, func() bool {
		_, ok, _ := states.Get(ctx, "once")
		return !ok
	}, "exhausted job state was not deleted")

	if len(sched.Jobs()) != 0 {
		t.Errorf("live entries = %d, want 0", len(sched.Jobs()))
	}
}

func TestFailedRunBacksOff(t *testing.T) {
	sched, states, _, pool := setupScheduler(t)
	ctx := context.Background()

	pool.failWith("probe-disk", errors.New("probe error"))

	if err := sched.Schedule(ctx, scheduler.Definition{
		JobID:          "flaky",
		Playbook:       "probe-disk",
		Schedule:       "@every 1h",
		RunImmediately: true,
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop(ctx)

	waitFor(t, 3*time.Second, func() bool { return pool.count() >= 1 },
		"job never fired")

	waitFor(t, 3*time.Second, func() bool {
		st, ok, _ := states.Get(ctx, "flaky")
		return ok && st.NextRunAt != nil && st.LastRunAt != nil
	}, "retry state not persisted")

	st, _, _ := states.Get(ctx, "flaky")
	if st.ExecCount != 0 {
		t.Errorf("ExecCount = %d, failed runs must not consume the budget", st.ExecCount)
	}

	// The constant 20ms backoff means the job retries shortly.
	waitFor(t, 3*time.Second, func() bool { return pool.count() >= 2 },
		"failed job was not retried")
}

func TestResumeFromStore(t *testing.T) {
	sched, states, _, pool := setupScheduler(t)
	ctx := context.Background()

	// Overdue job for a playbook the registry knows.
	past := time.Now().UTC().Add(-time.Minute)
	if err := states.Save(ctx, &jobstate.JobState{
		JobID:     "overdue",
		Playbook:  "probe-disk",
		Schedule:  "@every 1h",
		NextRunAt: &past,
	}); err != nil {
		t.Fatalf("seed overdue: %v", err)
	}
	// State for a playbook nobody registers anymore.
	if err := states.Save(ctx, &jobstate.JobState{
		JobID:    "orphan",
		Playbook: "retired-playbook",
		Schedule: "@every 1h",
	}); err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop(ctx)

	waitFor(t, 3*time.Second, func() bool { return pool.count() >= 1 },
		"overdue job did not fire on resume")

	_, ok, err := states.Get(ctx, "orphan")
	if err != nil {
		t.Fatalf("get orphan: %v", err)
	}
	if ok {
		t.Error("stale state for unknown playbook was not removed")
	}
}

func TestScheduleReplacesEntry(t *testing.T) {
	sched, states, _, _ := setupScheduler(t)
	ctx := context.Background()

	for _, expr := range []string{"@every 1h", "@every 2h"} {
		if err := sched.Schedule(ctx, scheduler.Definition{
			JobID:    "job-1",
			Playbook: "probe-disk",
			Schedule: expr,
		}); err != nil {
			t.Fatalf("schedule %s: %v", expr, err)
		}
	}

	st, ok, err := states.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if st.Schedule != "@every 2h" {
		t.Errorf("schedule = %q, want replacement to win", st.Schedule)
	}
	if got := len(sched.Jobs()); got != 1 {
		t.Errorf("live entries = %d, want 1", got)
	}
}

func TestConditionSkipsRun(t *testing.T) {
	sched, states, playbooks, pool := setupScheduler(t)
	ctx := context.Background()

	playbooks.MustRegister(playbook.Definition{
		Name: "gated",
		Func: func(_ context.Context, _ *playbook.Run) error { return nil },
		When: `params.enabled == "true"`,
	})

	if err := sched.Schedule(ctx, scheduler.Definition{
		JobID:          "gated-job",
		Playbook:       "gated",
		Schedule:       "@every 1h",
		Params:         map[string]string{"enabled": "false"},
		RunImmediately: true,
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop(ctx)

	// The schedule must still advance even though the run is skipped.
	waitFor(t, 3*time.Second, func() bool {
		st, ok, _ := states.Get(ctx, "gated-job")
		return ok && st.NextRunAt != nil && st.NextRunAt.After(time.Now())
	}, "skipped job schedule did not advance")

	if pool.count() != 0 {
		t.Errorf("runs = %d, condition should have blocked submission", pool.count())
	}
}

func TestLeaderGateBlocksTicks(t *testing.T) {
	elector := clustermem.New()
	// Another replica already holds the lease.
	if ok, _ := elector.Acquire(context.Background(), "wkr_other", time.Hour); !ok {
		t.Fatal("seed leadership failed")
	}

	sched, _, _, pool := setupScheduler(t,
		scheduler.WithElector(elector),
		scheduler.WithLeaderTTL(time.Hour),
	)
	ctx := context.Background()

	if err := sched.Schedule(ctx, scheduler.Definition{
		JobID:          "blocked",
		Playbook:       "probe-disk",
		Schedule:       "@every 1h",
		RunImmediately: true,
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop(ctx)

	time.Sleep(100 * time.Millisecond)
	if pool.count() != 0 {
		t.Errorf("runs = %d, non-leader must not fire jobs", pool.count())
	}
}
