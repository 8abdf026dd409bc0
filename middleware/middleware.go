// Package middleware provides composable middleware for playbook
// execution. Middleware wraps handler calls synchronously and can modify
// execution (recover from panics, enforce deadlines, log, add tracing).
package middleware

import (
	"context"

	"github.com/xraph/steward/playbook"
)

// Handler is the terminal function that executes the playbook logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the run being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, run *playbook.Run, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, run *playbook.Run, next Handler) error {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, run, prev)
			}
		}
		return h(ctx)
	}
}
