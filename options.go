package steward

import (
	"context"
	"log/slog"
)

// Option configures a Steward.
type Option func(*Steward) error

// StateStore is the minimal job-state store interface held by the
// Steward. It covers lifecycle operations only. The full store type
// (jobstate.Store) is used directly by the scheduler and API layers,
// which don't create import cycles.
type StateStore interface {
	Initialize(ctx context.Context) error
	Close() error
}

// schedRunner is an internal interface for scheduler lifecycle.
type schedRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// poolRunner is an internal interface for runner pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// hookEmitter is an internal interface for lifecycle hook events.
type hookEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Steward is the central coordinator for job-state persistence,
// scheduling and playbook execution.
//
// Create one with New() and functional options. The Steward holds
// references to subsystem components via internal interfaces to avoid
// import cycles; the cmd layer (or the caller's own wiring) connects
// the concrete scheduler and runner pool.
type Steward struct {
	config Config
	logger *slog.Logger
	states StateStore
	sched  schedRunner
	pool   poolRunner
	hooks  hookEmitter

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Steward with the given options.
func New(opts ...Option) (*Steward, error) {
	s := &Steward{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Logger returns the steward's logger.
func (s *Steward) Logger() *slog.Logger { return s.logger }

// States returns the steward's job-state store.
func (s *Steward) States() StateStore { return s.states }

// Config returns a copy of the steward's configuration.
func (s *Steward) Config() Config { return s.config }

// SetScheduler sets the scheduler (called by the wiring layer).
func (s *Steward) SetScheduler(r schedRunner) { s.sched = r }

// SetPool sets the runner pool (called by the wiring layer).
func (s *Steward) SetPool(p poolRunner) { s.pool = p }

// SetHooks sets the hook emitter (called by the wiring layer).
func (s *Steward) SetHooks(h hookEmitter) { s.hooks = h }

// Start initializes the backing document and begins scheduling.
func (s *Steward) Start(ctx context.Context) error {
	if s.states == nil {
		return ErrNoStore
	}
	if err := s.states.Initialize(ctx); err != nil {
		return err
	}
	if s.pool != nil {
		if err := s.pool.Start(ctx); err != nil {
			return err
		}
	}
	if s.sched != nil {
		if err := s.sched.Start(ctx); err != nil {
			return err
		}
	}
	s.started = true
	return nil
}

// Stop gracefully shuts down the steward.
func (s *Steward) Stop(ctx context.Context) error {
	if s.sched != nil && s.started {
		if err := s.sched.Stop(ctx); err != nil {
			s.logger.Error("scheduler stop error", "error", err)
		}
	}
	if s.pool != nil && s.started {
		if err := s.pool.Stop(ctx); err != nil {
			s.logger.Error("pool stop error", "error", err)
		}
	}
	if s.hooks != nil {
		s.hooks.EmitShutdown(ctx)
	}
	if s.states != nil {
		return s.states.Close()
	}
	return nil
}

// WithConcurrency sets the maximum number of concurrent playbook runs.
func WithConcurrency(n int) Option {
	return func(s *Steward) error {
		s.config.Concurrency = n
		return nil
	}
}

// WithDocument sets the name and namespace of the backing document.
func WithDocument(name, namespace string) Option {
	return func(s *Steward) error {
		s.config.DocumentName = name
		s.config.Namespace = namespace
		return nil
	}
}

// WithLogger sets the structured logger for the steward.
func WithLogger(l *slog.Logger) Option {
	return func(s *Steward) error {
		s.logger = l
		return nil
	}
}

// WithStateStore sets the job-state store for the steward.
// The store must implement StateStore at minimum; typically it is a
// *jobstate.Store backed by one of the docstore backends.
func WithStateStore(st StateStore) Option {
	return func(s *Steward) error {
		s.states = st
		return nil
	}
}

// WithConfig replaces the entire configuration.
func WithConfig(c Config) Option {
	return func(s *Steward) error {
		s.config = c
		return nil
	}
}
