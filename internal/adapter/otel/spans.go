package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "gitrelay"

// StartDispatchSpan starts a span for dispatching one request envelope.
func StartDispatchSpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("request.method", method),
			attribute.String("request.path", path),
		),
	)
}

// StartCallbackSpan starts a span for one stream-gateway callback.
func StartCallbackSpan(ctx context.Context, messageID, topic string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "callback",
		trace.WithAttributes(
			attribute.String("callback.message_id", messageID),
			attribute.String("callback.topic", topic),
		),
	)
}

// StartUpstreamSpan starts a span for one upstream API call.
func StartUpstreamSpan(ctx context.Context, method, endpoint string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "upstream",
		trace.WithAttributes(
			attribute.String("upstream.method", method),
			attribute.String("upstream.endpoint", endpoint),
		),
	)
}
