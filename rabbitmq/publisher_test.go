package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/velmie/txoutbox"
)

type fakeChannel struct {
	mu          sync.Mutex
	confirmErr  error
	declareErr  error
	publishErr  error
	confirms    chan amqp.Confirmation
	declared    []string
	published   []amqp.Publishing
	keys        []string
	exchanges   []string
	nack        bool
	silent      bool
	deliveryTag uint64
}

func (f *fakeChannel) Confirm(bool) error {
	return f.confirmErr
}

func (f *fakeChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	f.confirms = confirm

	return confirm
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)

	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.publishErr != nil {
		return f.publishErr
	}
	f.exchanges = append(f.exchanges, exchange)
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	f.deliveryTag++
	if !f.silent {
		f.confirms <- amqp.Confirmation{DeliveryTag: f.deliveryTag, Ack: !f.nack}
	}

	return nil
}

func testMessage(t *testing.T) outbox.Message {
	t.Helper()
	id, err := outbox.UUIDv7Generator{}.New()
	require.NoError(t, err)

	return outbox.Message{
		ID:          id,
		TypeTag:     "OrderCreated",
		RoutingKey:  "order.created",
		ContentType: outbox.ContentTypeJSON,
		CreatedAt:   time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		Payload:     map[string]any{"orderId": 42},
		Raw:         []byte(`{"orderId":42}`),
	}
}

func TestPublisherPublishesWithMetadata(t *testing.T) {
	ch := &fakeChannel{}
	pub, err := NewPublisher(ch, WithDeclareExchange(true))
	require.NoError(t, err)
	require.Equal(t, []string{"app.events:topic"}, ch.declared)

	msg := testMessage(t)
	require.NoError(t, pub.Publish(context.Background(), msg))

	require.Len(t, ch.published, 1)
	published := ch.published[0]
	require.Equal(t, "app.events", ch.exchanges[0])
	require.Equal(t, "order.created", ch.keys[0])
	require.Equal(t, msg.ID.String(), published.MessageId)
	require.Equal(t, "OrderCreated", published.Type)
	require.Equal(t, outbox.ContentTypeJSON, published.ContentType)
	require.Equal(t, amqp.Persistent, published.DeliveryMode)
	require.True(t, published.Timestamp.Equal(msg.CreatedAt))
	require.JSONEq(t, `{"orderId":42}`, string(published.Body))
	require.Equal(t, "order.created", published.Headers["routing_key"])
}

func TestPublisherInjectsTraceHeaders(t *testing.T) {
	ch := &fakeChannel{}
	pub, err := NewPublisher(ch, WithPropagator(propagation.TraceContext{}))
	require.NoError(t, err)

	provider := sdktrace.NewTracerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	ctx, span := provider.Tracer("test").Start(context.Background(), "dispatch")
	defer span.End()

	require.NoError(t, pub.Publish(ctx, testMessage(t)))

	traceparent, ok := ch.published[0].Headers["traceparent"].(string)
	require.True(t, ok)
	require.Contains(t, traceparent, span.SpanContext().TraceID().String())
}

func TestPublisherReencodesWithCodec(t *testing.T) {
	ch := &fakeChannel{}
	pub, err := NewPublisher(ch, WithCodec(upperCodec{}))
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), testMessage(t)))
	require.Equal(t, "text/upper", ch.published[0].ContentType)
	require.Equal(t, "ENCODED", string(ch.published[0].Body))
}

func TestPublisherNackIsTransient(t *testing.T) {
	ch := &fakeChannel{nack: true}
	pub, err := NewPublisher(ch)
	require.NoError(t, err)

	err = pub.Publish(context.Background(), testMessage(t))
	require.ErrorIs(t, err, ErrPublishNacked)
	require.NotErrorIs(t, err, outbox.ErrPermanent)
}

func TestPublisherConfirmTimeout(t *testing.T) {
	ch := &fakeChannel{silent: true}
	pub, err := NewPublisher(ch, WithConfirmTimeout(10*time.Millisecond))
	require.NoError(t, err)

	err = pub.Publish(context.Background(), testMessage(t))
	require.ErrorIs(t, err, ErrConfirmTimeout)
}

func TestPublisherDiscardsStaleConfirmations(t *testing.T) {
	ch := &fakeChannel{silent: true}
	pub, err := NewPublisher(ch, WithConfirmTimeout(10*time.Millisecond))
	require.NoError(t, err)

	require.ErrorIs(t, pub.Publish(context.Background(), testMessage(t)), ErrConfirmTimeout)

	// The late confirmation for the first message must not satisfy the second.
	ch.confirms <- amqp.Confirmation{DeliveryTag: 1, Ack: true}
	ch.silent = false
	require.NoError(t, pub.Publish(context.Background(), testMessage(t)))
	require.Empty(t, ch.confirms)
}

func TestPublisherCancelledWhileWaiting(t *testing.T) {
	ch := &fakeChannel{silent: true}
	pub, err := NewPublisher(ch)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pub.Publish(ctx, testMessage(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestPublisherPublishError(t *testing.T) {
	errBroker := errors.New("channel closed")
	ch := &fakeChannel{publishErr: errBroker}
	pub, err := NewPublisher(ch)
	require.NoError(t, err)

	require.ErrorIs(t, pub.Publish(context.Background(), testMessage(t)), errBroker)
	require.Zero(t, pub.sent)
}

func TestPublisherClosedConfirmStream(t *testing.T) {
	ch := &fakeChannel{silent: true}
	pub, err := NewPublisher(ch)
	require.NoError(t, err)
	close(ch.confirms)

	require.ErrorIs(t, pub.Publish(context.Background(), testMessage(t)), ErrPublisherClosed)
}

func TestNewPublisherErrors(t *testing.T) {
	_, err := NewPublisher(nil)
	require.ErrorIs(t, err, ErrChannelRequired)

	errConfirm := errors.New("not supported")
	_, err = NewPublisher(&fakeChannel{confirmErr: errConfirm})
	require.ErrorIs(t, err, ErrConfirmModeUnavailable)
	require.ErrorIs(t, err, errConfirm)

	errDeclare := errors.New("access refused")
	_, err = NewPublisher(&fakeChannel{declareErr: errDeclare}, WithDeclareExchange(true), WithExchange("orders"))
	require.ErrorIs(t, err, errDeclare)
}

func TestPublisherExchangeOverride(t *testing.T) {
	pub, err := NewPublisher(&fakeChannel{}, WithExchange("orders"))
	require.NoError(t, err)
	require.Equal(t, "orders", pub.Exchange())
}

type upperCodec struct{}

func (upperCodec) Marshal(any) ([]byte, error) { return []byte("ENCODED"), nil }

func (upperCodec) Unmarshal([]byte, any) error { return nil }

func (upperCodec) ContentType() string { return "text/upper" }
