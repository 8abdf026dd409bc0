// Package runner executes playbook runs on a bounded pool of worker
// goroutines.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/steward"
	"github.com/xraph/steward/hook"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/middleware"
	"github.com/xraph/steward/playbook"
)

// Pool manages a set of concurrent worker goroutines that execute
// submitted playbook runs through the middleware chain.
type Pool struct {
	playbooks   *playbook.Registry
	hooks       *hook.Registry
	chain       middleware.Middleware
	concurrency int
	queueDepth  int
	workerID    id.ID
	logger      *slog.Logger

	runCh  chan *playbook.Run
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	activeRuns map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithQueueDepth sets the capacity of the run queue. Submit blocks when
// the queue is full.
func WithQueueDepth(n int) PoolOption {
	return func(p *Pool) { p.queueDepth = n }
}

// WithChain sets the middleware chain runs are executed through.
func WithChain(mws ...middleware.Middleware) PoolOption {
	return func(p *Pool) { p.chain = middleware.Chain(mws...) }
}

// NewPool creates a run pool. The default chain recovers from panics
// and logs run progress.
func NewPool(
	playbooks *playbook.Registry,
	hooks *hook.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		playbooks:   playbooks,
		hooks:       hooks,
		concurrency: 10,
		queueDepth:  64,
		workerID:    id.NewWorkerID(),
		logger:      logger,
		stopCh:      make(chan struct{}),
		activeRuns:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.chain == nil {
		p.chain = middleware.Chain(
			middleware.Logging(logger),
			middleware.Recover(logger),
		)
	}
	p.runCh = make(chan *playbook.Run, p.queueDepth)
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.ID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("run pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.runLoop()
	}

	return nil
}

// Submit queues a run for execution. It blocks while the queue is full
// and returns steward.ErrPoolStopped once the pool has been stopped.
func (p *Pool) Submit(ctx context.Context, run *playbook.Run) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return steward.ErrPoolStopped
	}

	select {
	case p.runCh <- run:
		return nil
	case <-p.stopCh:
		return steward.ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals all workers to stop and waits for them to finish. Runs
// already queued are drained first. If the context has a deadline,
// active runs are cancelled when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("run pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("run pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("run pool shutdown timed out, cancelling active runs")
		p.cancelActiveRuns()
		p.wg.Wait()
	}

	return nil
}

// runLoop is run by each worker goroutine.
func (p *Pool) runLoop() {
	defer p.wg.Done()

	for {
		select {
		case run := <-p.runCh:
			p.execute(run)
		case <-p.stopCh:
			// Drain what is already queued before exiting.
			for {
				select {
				case run := <-p.runCh:
					p.execute(run)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) execute(run *playbook.Run) {
	def, err := p.playbooks.Get(run.Playbook)
	if err != nil {
		p.logger.Error("unknown playbook",
			slog.String("run_id", run.ID.String()),
			slog.String("playbook", run.Playbook),
		)
		if p.hooks != nil {
			p.hooks.EmitRunFailed(context.Background(), run, err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.trackRun(run.ID.String(), cancel)
	defer func() {
		p.untrackRun(run.ID.String())
		cancel()
	}()

	if p.hooks != nil {
		p.hooks.EmitRunStarted(ctx, run)
	}

	start := time.Now()
	execErr := p.chain(ctx, run, func(ctx context.Context) error {
		return def.Func(ctx, run)
	})
	elapsed := time.Since(start)

	if execErr != nil {
		if p.hooks != nil {
			p.hooks.EmitRunFailed(context.Background(), run, execErr)
		}
		return
	}
	if p.hooks != nil {
		p.hooks.EmitRunCompleted(context.Background(), run, elapsed)
	}
}

func (p *Pool) trackRun(runID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeRuns[runID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackRun(runID string) {
	p.activeMu.Lock()
	delete(p.activeRuns, runID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveRuns() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for runID, cancel := range p.activeRuns {
		p.logger.Warn("cancelling active run", slog.String("run_id", runID))
		cancel()
	}
}
