// Package middleware implements the execution middleware chain for
// playbook runs.
//
// The runner pool executes every run through a [Middleware] chain built
// with [Chain]. The provided middleware cover the common cross-cutting
// concerns:
//
//   - [Logging] — structured run start/completion logs
//   - [Recover] — converts handler panics to errors
//   - [Timeout] — per-run execution deadline
//   - [Tracing] — OpenTelemetry span per run
//   - [Metrics] — OpenTelemetry duration and count instruments
//
// A typical chain:
//
//	chain := middleware.Chain(
//	    middleware.Logging(logger),
//	    middleware.Metrics(),
//	    middleware.Tracing(),
//	    middleware.Recover(logger),
//	    middleware.Timeout(5*time.Minute),
//	)
package middleware
