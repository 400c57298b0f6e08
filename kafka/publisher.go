// Package kafka publishes outbox messages with segmentio/kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/velmie/txoutbox"
)

// Header keys set on every message.
const (
	HeaderEventID    = "event_id"
	HeaderEventType  = "event_type"
	HeaderRoutingKey = "routing_key"
	HeaderContent    = "content_type"
)

// ErrWriterRequired indicates a nil writer was provided.
var ErrWriterRequired = errors.New("outbox kafka: writer is required")

// Writer is implemented by *kafkago.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

var _ Writer = (*kafkago.Writer)(nil)

// Option configures the publisher.
type Option func(*Publisher)

// WithTopic publishes every message to topic. Without it the routing key is the topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		p.topic = topic
	}
}

// WithCodec re-encodes message payloads with codec before publishing.
func WithCodec(codec outbox.Codec) Option {
	return func(p *Publisher) {
		p.codec = codec
	}
}

// WithPropagator sets the propagator used to write trace headers.
func WithPropagator(propagator propagation.TextMapPropagator) Option {
	return func(p *Publisher) {
		p.propagator = propagator
	}
}

// Publisher writes one Kafka message per outbox message, keyed by record id.
type Publisher struct {
	writer     Writer
	topic      string
	codec      outbox.Codec
	propagator propagation.TextMapPropagator
}

var _ outbox.Publisher = (*Publisher)(nil)

// NewPublisher wraps w. A *kafkago.Writer must leave Topic empty because
// every message names its own topic.
func NewPublisher(w Writer, opts ...Option) (*Publisher, error) {
	if w == nil {
		return nil, ErrWriterRequired
	}
	p := &Publisher{writer: w}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// NewWriter builds a synchronous writer that waits for all in-sync replicas.
func NewWriter(brokers []string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
}

// SplitBrokers parses a comma separated broker list.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}

	return brokers
}

// Publish implements outbox.Publisher.
func (p *Publisher) Publish(ctx context.Context, msg outbox.Message) error {
	body, contentType, err := msg.Encode(p.codec)
	if err != nil {
		return err
	}

	topic := p.topic
	if topic == "" {
		topic = msg.RoutingKey
	}

	carrier := &headerCarrier{headers: []kafkago.Header{
		{Key: HeaderEventID, Value: []byte(msg.ID.String())},
		{Key: HeaderEventType, Value: []byte(msg.TypeTag)},
		{Key: HeaderRoutingKey, Value: []byte(msg.RoutingKey)},
		{Key: HeaderContent, Value: []byte(contentType)},
	}}
	p.textMapPropagator().Inject(ctx, carrier)

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Topic:   topic,
		Key:     []byte(msg.ID.String()),
		Value:   body,
		Headers: carrier.headers,
		Time:    msg.CreatedAt,
	})
	if err != nil {
		if permanent(err) {
			return outbox.Permanent(fmt.Errorf("outbox kafka: write %s: %w", topic, err))
		}

		return fmt.Errorf("outbox kafka: write %s: %w", topic, err)
	}

	return nil
}

func (p *Publisher) textMapPropagator() propagation.TextMapPropagator {
	if p.propagator != nil {
		return p.propagator
	}

	return otel.GetTextMapPropagator()
}

// permanent reports broker errors that retrying the same message cannot fix.
func permanent(err error) bool {
	var writeErrs kafkago.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, writeErr := range writeErrs {
			if writeErr != nil && !permanent(writeErr) {
				return false
			}
		}

		return writeErrs.Count() > 0
	}

	return errors.Is(err, kafkago.MessageSizeTooLarge) ||
		errors.Is(err, kafkago.InvalidTopic) ||
		errors.Is(err, kafkago.TopicAuthorizationFailed)
}

// ValueOf returns the first header value for key.
func ValueOf(headers []kafkago.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}

	return ""
}
