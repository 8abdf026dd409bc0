package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/steward"
	"github.com/xraph/steward/backoff"
	"github.com/xraph/steward/cluster"
	"github.com/xraph/steward/hook"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/jobstate"
	"github.com/xraph/steward/playbook"
)

// Submitter queues a playbook run for execution.
// runner.Pool satisfies this interface.
type Submitter interface {
	Submit(ctx context.Context, run *playbook.Run) error
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due jobs.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithElector enables leader election: only the elected replica fires
// due jobs. Without an elector every replica ticks, which is safe only
// in single-replica deployments.
func WithElector(e cluster.Elector) Option {
	return func(s *Scheduler) { s.elector = e }
}

// WithLeaderTTL sets the TTL for the leadership lease.
func WithLeaderTTL(d time.Duration) Option {
	return func(s *Scheduler) { s.leaderTTL = d }
}

// WithBackoff sets the retry strategy applied to failed runs.
func WithBackoff(b backoff.Strategy) Option {
	return func(s *Scheduler) { s.backoff = b }
}

// entry is a live scheduled job.
type entry struct {
	state    *jobstate.JobState
	sched    cronlib.Schedule
	failures int
	inFlight bool
}

// Scheduler drives scheduled jobs from their persisted states. It
// resumes from the job-state store on Start, fires due jobs on a tick
// loop, and writes execution bookkeeping back through the store.
//
// The Scheduler observes run outcomes through the hook registry; it
// registers itself as an extension on Start.
type Scheduler struct {
	states    *jobstate.Store
	playbooks *playbook.Registry
	pool      Submitter
	hooks     *hook.Registry
	elector   cluster.Elector
	backoff   backoff.Strategy
	workerID  id.ID
	logger    *slog.Logger

	tickInterval time.Duration
	leaderTTL    time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	isLeaderMu sync.RWMutex
	isLeader   bool

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// Compile-time checks for the hook interfaces the scheduler implements.
var (
	_ hook.Extension    = (*Scheduler)(nil)
	_ hook.RunCompleted = (*Scheduler)(nil)
	_ hook.RunFailed    = (*Scheduler)(nil)
)

// New creates a Scheduler.
func New(
	states *jobstate.Store,
	playbooks *playbook.Registry,
	pool Submitter,
	hooks *hook.Registry,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		states:       states,
		playbooks:    playbooks,
		pool:         pool,
		hooks:        hooks,
		backoff:      backoff.DefaultStrategy(),
		workerID:     id.NewWorkerID(),
		logger:       logger,
		tickInterval: time.Second,
		leaderTTL:    15 * time.Second,
		entries:      make(map[string]*entry),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements hook.Extension.
func (s *Scheduler) Name() string { return "scheduler" }

// WorkerID returns the scheduler's identity used for leader election.
func (s *Scheduler) WorkerID() id.ID { return s.workerID }

// Schedule validates the definition, persists its state and registers
// the live entry. An existing entry with the same JobID is replaced.
func (s *Scheduler) Schedule(ctx context.Context, def Definition) error {
	if def.JobID == "" {
		return fmt.Errorf("scheduler: job id is required")
	}
	if !s.playbooks.Has(def.Playbook) {
		return fmt.Errorf("scheduler: schedule %s: %w", def.Playbook, steward.ErrPlaybookNotFound)
	}
	sched, err := ParseSchedule(def.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: parse schedule %q: %w", def.Schedule, err)
	}

	now := time.Now().UTC()
	next := sched.Next(now)
	if def.RunImmediately {
		next = now
	}
	st := &jobstate.JobState{
		JobID:     def.JobID,
		Playbook:  def.Playbook,
		Schedule:  def.Schedule,
		Repeat:    def.Repeat,
		Params:    def.Params,
		NextRunAt: &next,
	}

	if err := s.states.Save(ctx, st); err != nil {
		return fmt.Errorf("scheduler: persist %s: %w", def.JobID, err)
	}

	s.mu.Lock()
	s.entries[def.JobID] = &entry{state: st, sched: sched}
	s.mu.Unlock()

	if s.hooks != nil {
		s.hooks.EmitJobScheduled(ctx, st)
	}
	s.logger.Info("job scheduled",
		slog.String("job_id", def.JobID),
		slog.String("playbook", def.Playbook),
		slog.String("schedule", def.Schedule),
		slog.Time("next_run_at", next),
	)
	return nil
}

// Unschedule removes the live entry and deletes the persisted state.
// Unscheduling an unknown job is a no-op.
func (s *Scheduler) Unschedule(ctx context.Context, jobID string) error {
	s.mu.Lock()
	_, known := s.entries[jobID]
	delete(s.entries, jobID)
	s.mu.Unlock()

	if err := s.states.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("scheduler: unschedule %s: %w", jobID, err)
	}
	if known && s.hooks != nil {
		s.hooks.EmitJobUnscheduled(ctx, jobID)
	}
	s.logger.Info("job unscheduled", slog.String("job_id", jobID))
	return nil
}

// Jobs returns a snapshot of the currently scheduled job states.
func (s *Scheduler) Jobs() []*jobstate.JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*jobstate.JobState, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.state.Clone())
	}
	return out
}

// Start resumes persisted jobs and launches the tick loop. Overdue jobs
// fire on the first tick. States referencing playbooks the registry no
// longer knows are logged and removed.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if s.hooks != nil {
		s.hooks.Register(s)
	}

	states, err := s.states.List(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: resume: %w", err)
	}

	resumed := 0
	for _, st := range states {
		if !s.playbooks.Has(st.Playbook) {
			s.logger.Warn("removing state for unknown playbook",
				slog.String("job_id", st.JobID),
				slog.String("playbook", st.Playbook),
			)
			if delErr := s.states.Delete(ctx, st.JobID); delErr != nil {
				s.logger.Error("stale state cleanup failed",
					slog.String("job_id", st.JobID),
					slog.String("error", delErr.Error()),
				)
			}
			continue
		}
		sched, parseErr := ParseSchedule(st.Schedule)
		if parseErr != nil {
			s.logger.Error("resume: bad schedule, skipping job",
				slog.String("job_id", st.JobID),
				slog.String("schedule", st.Schedule),
				slog.String("error", parseErr.Error()),
			)
			continue
		}
		s.mu.Lock()
		s.entries[st.JobID] = &entry{state: st, sched: sched}
		s.mu.Unlock()
		resumed++
	}

	if s.elector != nil {
		s.wg.Add(1)
		go s.leaderLoop()
	} else {
		s.setLeader(true)
	}
	s.wg.Add(1)
	go s.tickLoop()

	s.logger.Info("scheduler started",
		slog.String("worker_id", s.workerID.String()),
		slog.Int("resumed", resumed),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the loops to stop and waits for them to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// ──────────────────────────────────────────────────
// Leadership
// ──────────────────────────────────────────────────

func (s *Scheduler) setLeader(v bool) {
	s.isLeaderMu.Lock()
	s.isLeader = v
	s.isLeaderMu.Unlock()
}

func (s *Scheduler) leader() bool {
	s.isLeaderMu.RLock()
	defer s.isLeaderMu.RUnlock()
	return s.isLeader
}

// leaderLoop continuously attempts to acquire or renew leadership.
func (s *Scheduler) leaderLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.leaderTTL / 2)
	defer ticker.Stop()

	s.tryLeadership()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tryLeadership()
		}
	}
}

func (s *Scheduler) tryLeadership() {
	ctx := context.Background()
	identity := s.workerID.String()

	// Renew first, cheap when already the holder.
	renewed, err := s.elector.Renew(ctx, identity, s.leaderTTL)
	if err != nil {
		s.logger.Warn("leadership renew error", slog.String("error", err.Error()))
		s.setLeader(false)
		return
	}
	if renewed {
		s.setLeader(true)
		return
	}

	acquired, err := s.elector.Acquire(ctx, identity, s.leaderTTL)
	if err != nil {
		s.logger.Warn("leadership acquire error", slog.String("error", err.Error()))
		s.setLeader(false)
		return
	}
	if acquired {
		s.logger.Info("acquired scheduler leadership", slog.String("worker_id", identity))
	}
	s.setLeader(acquired)
}

// ──────────────────────────────────────────────────
// Tick loop
// ──────────────────────────────────────────────────

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	if !s.leader() {
		return
	}

	now := time.Now().UTC()

	s.mu.Lock()
	due := make([]*entry, 0)
	for _, e := range s.entries {
		if e.inFlight {
			continue
		}
		if e.state.NextRunAt != nil && e.state.NextRunAt.After(now) {
			continue
		}
		e.inFlight = true
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.fire(e)
	}
}

func (s *Scheduler) fire(e *entry) {
	ctx := context.Background()
	st := e.state

	// Evaluate the playbook's condition against the job params.
	if err := s.playbooks.Allowed(st.Playbook, st.Params); err != nil {
		if errors.Is(err, steward.ErrConditionFailed) {
			s.logger.Debug("run skipped by condition",
				slog.String("job_id", st.JobID),
				slog.String("playbook", st.Playbook),
			)
			s.advance(ctx, e, time.Now().UTC(), false)
			return
		}
		s.logger.Error("condition evaluation error",
			slog.String("job_id", st.JobID),
			slog.String("error", err.Error()),
		)
		s.advance(ctx, e, time.Now().UTC(), false)
		return
	}

	run := playbook.NewRun(st.Playbook, st.JobID, st.Params)
	if err := s.pool.Submit(ctx, run); err != nil {
		s.logger.Error("submit run error",
			slog.String("job_id", st.JobID),
			slog.String("error", err.Error()),
		)
		s.clearInFlight(st.JobID)
		return
	}

	s.logger.Info("job fired",
		slog.String("job_id", st.JobID),
		slog.String("playbook", st.Playbook),
		slog.String("run_id", run.ID.String()),
	)
}

// ──────────────────────────────────────────────────
// Run outcome hooks
// ──────────────────────────────────────────────────

// OnRunCompleted advances the job's schedule after a successful run.
// Runs without a JobID (ad-hoc triggers) are ignored.
func (s *Scheduler) OnRunCompleted(ctx context.Context, run *playbook.Run, _ time.Duration) error {
	if run.JobID == "" {
		return nil
	}
	s.mu.Lock()
	e, ok := s.entries[run.JobID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	s.advance(ctx, e, time.Now().UTC(), true)
	return nil
}

// OnRunFailed reschedules the job per the backoff strategy.
func (s *Scheduler) OnRunFailed(ctx context.Context, run *playbook.Run, runErr error) error {
	if run.JobID == "" {
		return nil
	}
	s.mu.Lock()
	e, ok := s.entries[run.JobID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	e.failures++
	failures := e.failures
	delay := s.backoff.Delay(failures)
	now := time.Now().UTC()
	next := now.Add(delay)
	e.state.LastRunAt = &now
	e.state.NextRunAt = &next
	e.inFlight = false
	st := e.state.Clone()
	s.mu.Unlock()

	s.logger.Warn("run failed, retrying",
		slog.String("job_id", run.JobID),
		slog.Int("failures", failures),
		slog.Duration("retry_in", delay),
		slog.String("error", runErr.Error()),
	)

	if err := s.states.Save(ctx, st); err != nil {
		s.logger.Error("persist retry state error",
			slog.String("job_id", run.JobID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// advance records a completed (or skipped) occurrence: bumps counters,
// computes the next fire time and persists the state. When the repeat
// budget is spent the job is removed instead.
func (s *Scheduler) advance(ctx context.Context, e *entry, now time.Time, ran bool) {
	s.mu.Lock()
	st := e.state
	if ran {
		st.ExecCount++
		st.LastRunAt = &now
		e.failures = 0
	}
	done := st.Repeat > 0 && st.ExecCount >= st.Repeat
	if !done {
		next := e.sched.Next(now)
		st.NextRunAt = &next
	}
	e.inFlight = false
	jobID := st.JobID
	cp := st.Clone()
	s.mu.Unlock()

	if done {
		s.mu.Lock()
		delete(s.entries, jobID)
		s.mu.Unlock()
		if err := s.states.Delete(ctx, jobID); err != nil {
			s.logger.Error("delete exhausted job error",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		if s.hooks != nil {
			s.hooks.EmitJobUnscheduled(ctx, jobID)
		}
		s.logger.Info("job repeat budget spent, removed",
			slog.String("job_id", jobID),
			slog.Int("exec_count", cp.ExecCount),
		)
		return
	}

	if err := s.states.Save(ctx, cp); err != nil {
		s.logger.Error("persist job state error",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) clearInFlight(jobID string) {
	s.mu.Lock()
	if e, ok := s.entries[jobID]; ok {
		e.inFlight = false
	}
	s.mu.Unlock()
}
