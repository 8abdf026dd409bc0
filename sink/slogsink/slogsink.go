// Package slogsink logs findings with structured logging. It is the
// default sink when no external destination is configured.
package slogsink

import (
	"context"
	"log/slog"

	"github.com/xraph/steward/playbook"
	"github.com/xraph/steward/sink"
)

// Compile-time check that Sink implements sink.Sink.
var _ sink.Sink = (*Sink)(nil)

// Sink writes each finding as one structured log record. Markdown
// blocks are logged inline, file blocks by name and size.
type Sink struct {
	logger *slog.Logger
}

// New creates a slog-backed sink.
func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger}
}

// Name implements sink.Sink.
func (s *Sink) Name() string { return "slog" }

// Write implements sink.Sink.
func (s *Sink) Write(_ context.Context, f *playbook.Finding) error {
	attrs := []any{
		slog.String("title", f.Title),
		slog.String("source", f.Source),
		slog.Time("created_at", f.CreatedAt),
	}
	for _, b := range f.Blocks {
		switch b.Kind {
		case playbook.KindMarkdown:
			attrs = append(attrs, slog.String("markdown", b.Text))
		case playbook.KindFile:
			attrs = append(attrs, slog.Group("file",
				slog.String("name", b.Filename),
				slog.Int("bytes", len(b.Data)),
			))
		}
	}
	s.logger.Info("finding", attrs...)
	return nil
}
