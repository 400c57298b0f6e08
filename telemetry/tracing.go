package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/velmie/txoutbox"
)

// ScopeName is the instrumentation scope used when no tracer is supplied.
const ScopeName = "github.com/velmie/txoutbox"

// Span attribute keys.
const (
	AttrMessageID   = attribute.Key("messaging.message.id")
	AttrDestination = attribute.Key("messaging.destination.name")
	AttrTypeTag     = attribute.Key("outbox.type_tag")
	AttrPermanent   = attribute.Key("outbox.failure.permanent")
)

// TracingPublisher starts a producer span around each publish so adapters
// propagate it in message headers.
type TracingPublisher struct {
	next   outbox.Publisher
	tracer trace.Tracer
}

var _ outbox.Publisher = (*TracingPublisher)(nil)

// NewTracingPublisher wraps next. A nil tracer uses the global provider.
func NewTracingPublisher(next outbox.Publisher, tracer trace.Tracer) *TracingPublisher {
	if next == nil {
		panic("outbox telemetry: nil Publisher")
	}
	if tracer == nil {
		tracer = otel.Tracer(ScopeName)
	}

	return &TracingPublisher{next: next, tracer: tracer}
}

// Publish implements outbox.Publisher.
func (p *TracingPublisher) Publish(ctx context.Context, msg outbox.Message) error {
	ctx, span := p.tracer.Start(ctx, "publish "+msg.RoutingKey,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			AttrMessageID.String(msg.ID.String()),
			AttrDestination.String(msg.RoutingKey),
			AttrTypeTag.String(msg.TypeTag),
		),
	)
	defer span.End()

	err := p.next.Publish(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(AttrPermanent.Bool(errors.Is(err, outbox.ErrPermanent)))
	}

	return err
}
