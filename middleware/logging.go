package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/steward/playbook"
)

// Logging returns middleware that logs run start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, run *playbook.Run, next Handler) error {
		logger.Info("run started",
			slog.String("playbook", run.Playbook),
			slog.String("run_id", run.ID.String()),
			slog.String("job_id", run.JobID),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("run failed",
				slog.String("playbook", run.Playbook),
				slog.String("run_id", run.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("run completed",
				slog.String("playbook", run.Playbook),
				slog.String("run_id", run.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.Int("findings", len(run.Findings())),
			)
		}

		return err
	}
}
