package middleware

import (
	"context"
	"time"

	"github.com/xraph/steward/playbook"
)

// Timeout returns middleware that enforces a per-run execution deadline.
// When the deadline is exceeded the context is cancelled and the
// handler should return context.DeadlineExceeded. A zero limit disables
// the deadline.
func Timeout(limit time.Duration) Middleware {
	return func(ctx context.Context, _ *playbook.Run, next Handler) error {
		if limit > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}
		return next(ctx)
	}
}
