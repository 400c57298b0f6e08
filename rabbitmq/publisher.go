package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/velmie/txoutbox"
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ Channel = (*amqp.Channel)(nil)

// Publisher sends outbox messages to a topic exchange using the message
// routing key and waits for a publisher confirm per message.
type Publisher struct {
	ch       Channel
	confirms chan amqp.Confirmation
	cfg      Config

	// mu serializes publishes so delivery tags map to messages in order.
	mu   sync.Mutex
	sent uint64
}

var _ outbox.Publisher = (*Publisher)(nil)

// NewPublisher puts ch in confirm mode and returns a publisher bound to it.
// The channel must not be shared with other publishers.
func NewPublisher(ch Channel, opts ...Option) (*Publisher, error) {
	if ch == nil {
		return nil, ErrChannelRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	if cfg.DeclareExchange {
		if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("outbox rabbitmq: declare exchange %q: %w", cfg.Exchange, err)
		}
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfirmModeUnavailable, err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))

	return &Publisher{
		ch:       ch,
		confirms: confirms,
		cfg:      cfg,
	}, nil
}

// Publish implements outbox.Publisher.
func (p *Publisher) Publish(ctx context.Context, msg outbox.Message) error {
	body, contentType, err := msg.Encode(p.cfg.Codec)
	if err != nil {
		return err
	}

	headers := amqp.Table{"routing_key": msg.RoutingKey}
	p.propagator().Inject(ctx, tableCarrier(headers))

	publishing := amqp.Publishing{
		Headers:      headers,
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID.String(),
		Timestamp:    msg.CreatedAt,
		Type:         msg.TypeTag,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, p.cfg.Exchange, msg.RoutingKey, false, false, publishing); err != nil {
		return fmt.Errorf("outbox rabbitmq: publish: %w", err)
	}
	p.sent++

	return p.waitForConfirm(ctx, p.sent)
}

// Exchange returns the configured exchange name.
func (p *Publisher) Exchange() string {
	return p.cfg.Exchange
}

// waitForConfirm reads confirmations until the one for tag arrives. Older
// tags belong to publishes that already gave up waiting and are discarded.
func (p *Publisher) waitForConfirm(ctx context.Context, tag uint64) error {
	timer := time.NewTimer(p.cfg.ConfirmTimeout)
	defer timer.Stop()

	for {
		select {
		case confirmed, ok := <-p.confirms:
			if !ok {
				return ErrPublisherClosed
			}
			if confirmed.DeliveryTag < tag {
				p.cfg.Logger.Debug("outbox rabbitmq discarding stale confirmation",
					"delivery_tag", confirmed.DeliveryTag)

				continue
			}
			if !confirmed.Ack {
				return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
			}

			return nil
		case <-timer.C:
			return fmt.Errorf("%w: delivery_tag=%d", ErrConfirmTimeout, tag)
		case <-ctx.Done():
			return fmt.Errorf("outbox rabbitmq: wait for confirm: %w", ctx.Err())
		}
	}
}

func (p *Publisher) propagator() propagation.TextMapPropagator {
	if p.cfg.Propagator != nil {
		return p.cfg.Propagator
	}

	return otel.GetTextMapPropagator()
}
