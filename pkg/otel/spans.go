package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StoreSpan wraps fn in a client span for one storage call. system is the db.system
// attribute (postgresql, mongodb, memory).
func StoreSpan(ctx context.Context, system, operation string, fn func(context.Context) error) error {
	ctx, span := Tracer().Start(ctx, "store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
		),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// MQPublishSpan starts a producer span for a broker publish.
func MQPublishSpan(ctx context.Context, routingKey, exchange string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "mq.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination", exchange),
			attribute.String("messaging.rabbitmq.routing_key", routingKey),
		),
	)
}
