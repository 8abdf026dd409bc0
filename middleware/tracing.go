package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/steward/playbook"
)

// tracerName is the instrumentation scope name for steward tracing.
const tracerName = "github.com/xraph/steward"

// Tracing returns middleware that wraps playbook execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: steward.run.id, steward.playbook,
// steward.job.id. On error, the span status is set to codes.Error with
// the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, run *playbook.Run, next Handler) error {
		ctx, span := tracer.Start(ctx, "steward.run.execute",
			trace.WithAttributes(
				attribute.String("steward.run.id", run.ID.String()),
				attribute.String("steward.playbook", run.Playbook),
				attribute.String("steward.job.id", run.JobID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
