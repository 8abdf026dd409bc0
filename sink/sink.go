// Package sink delivers playbook findings to external destinations.
package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/steward/hook"
	"github.com/xraph/steward/playbook"
)

// Sink writes findings somewhere useful: a chat channel, a log stream,
// a ticketing system.
type Sink interface {
	// Name returns a unique human-readable name for the sink.
	Name() string

	// Write delivers one finding. Implementations should honor the
	// context deadline.
	Write(ctx context.Context, f *playbook.Finding) error
}

// Compile-time checks for the hook interfaces Dispatcher implements.
var (
	_ hook.Extension    = (*Dispatcher)(nil)
	_ hook.RunCompleted = (*Dispatcher)(nil)
)

// Dispatcher fans run findings out to all registered sinks. It is a
// hook extension: register it on the hook registry and it delivers the
// findings of every completed run. A failing sink is logged and does
// not block the others.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given sinks.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Name implements hook.Extension.
func (d *Dispatcher) Name() string { return "sink-dispatcher" }

// Sinks returns the registered sinks.
func (d *Dispatcher) Sinks() []Sink { return d.sinks }

// OnRunCompleted implements hook.RunCompleted: every finding goes to
// every sink.
func (d *Dispatcher) OnRunCompleted(ctx context.Context, run *playbook.Run, _ time.Duration) error {
	findings := run.Findings()
	if len(findings) == 0 {
		return nil
	}
	for _, f := range findings {
		for _, s := range d.sinks {
			if err := s.Write(ctx, f); err != nil {
				d.logger.Error("sink write error",
					slog.String("sink", s.Name()),
					slog.String("finding", f.Title),
					slog.String("run_id", run.ID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}
