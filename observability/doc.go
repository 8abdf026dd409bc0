// Package observability provides an OpenTelemetry metrics extension
// for steward. The MetricsExtension implements lifecycle hooks to
// record system-wide counters for state saves, scheduling, run
// outcomes and snapshots.
//
// For per-run tracing and latency histograms, see the middleware
// package: middleware.Tracing() and middleware.Metrics().
package observability
