package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/velmie/txoutbox"
)

// DefaultStreamPrefix is prepended to the routing key to name the stream.
const DefaultStreamPrefix = "outbox:"

// ErrClientRequired indicates a nil Redis client.
var ErrClientRequired = errors.New("outbox redis: client is required")

// StreamClient is the subset of goredis.Cmdable used by StreamPublisher.
type StreamClient interface {
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
}

// StreamOption configures a StreamPublisher.
type StreamOption func(*StreamPublisher)

// WithStreamPrefix overrides the stream name prefix.
func WithStreamPrefix(prefix string) StreamOption {
	return func(p *StreamPublisher) {
		p.prefix = prefix
	}
}

// WithMaxLen caps each stream at roughly n entries. Zero disables trimming.
func WithMaxLen(n int64) StreamOption {
	return func(p *StreamPublisher) {
		p.maxLen = n
	}
}

// WithStreamCodec re-encodes payloads with codec before publishing.
func WithStreamCodec(codec outbox.Codec) StreamOption {
	return func(p *StreamPublisher) {
		p.codec = codec
	}
}

// WithStreamPropagator sets the propagator used to write trace fields.
func WithStreamPropagator(propagator propagation.TextMapPropagator) StreamOption {
	return func(p *StreamPublisher) {
		p.propagator = propagator
	}
}

// StreamPublisher appends each message to the stream <prefix><routing key>.
type StreamPublisher struct {
	client     StreamClient
	prefix     string
	maxLen     int64
	codec      outbox.Codec
	propagator propagation.TextMapPropagator
}

var _ outbox.Publisher = (*StreamPublisher)(nil)

// NewStreamPublisher builds a publisher on client.
func NewStreamPublisher(client StreamClient, opts ...StreamOption) (*StreamPublisher, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	p := &StreamPublisher{client: client, prefix: DefaultStreamPrefix}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Publish implements outbox.Publisher.
func (p *StreamPublisher) Publish(ctx context.Context, msg outbox.Message) error {
	body, contentType, err := msg.Encode(p.codec)
	if err != nil {
		return err
	}

	values := []any{
		"id", msg.ID.String(),
		"type", msg.TypeTag,
		"routing_key", msg.RoutingKey,
		"content_type", contentType,
		"payload", body,
	}
	carrier := propagation.MapCarrier{}
	p.textMapPropagator().Inject(ctx, carrier)
	for _, key := range carrier.Keys() {
		values = append(values, key, carrier.Get(key))
	}

	stream := p.Stream(msg.RoutingKey)
	args := &goredis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("outbox redis: xadd %s: %w", stream, err)
	}

	return nil
}

// Stream returns the stream name for routingKey.
func (p *StreamPublisher) Stream(routingKey string) string {
	return p.prefix + routingKey
}

func (p *StreamPublisher) textMapPropagator() propagation.TextMapPropagator {
	if p.propagator != nil {
		return p.propagator
	}

	return otel.GetTextMapPropagator()
}
