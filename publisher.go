package outbox

import (
	"context"
	"fmt"
	"time"
)

// Message is a decoded record handed to a Publisher.
type Message struct {
	ID          ID
	TypeTag     string
	RoutingKey  string
	ContentType string
	CreatedAt   time.Time
	// Payload is the value produced by the registry decoder for TypeTag.
	Payload any
	// Raw is the stored payload bytes.
	Raw []byte
}

// Publisher pushes messages to an external broker.
// A nil error means the broker accepted the message.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg Message) error

// Publish implements Publisher.
func (fn PublisherFunc) Publish(ctx context.Context, msg Message) error {
	return fn(ctx, msg)
}

// Permanent marks err as a failure that retrying cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

func newMessage(record Record, payload any) Message {
	contentType := record.ContentType
	if contentType == "" {
		contentType = ContentTypeJSON
	}

	return Message{
		ID:          record.ID,
		TypeTag:     record.TypeTag,
		RoutingKey:  record.RoutingKey,
		ContentType: contentType,
		CreatedAt:   record.CreatedAt,
		Payload:     payload,
		Raw:         record.Payload,
	}
}

// Encode returns the body and content type an adapter should put on the wire.
// A nil codec, or one matching the stored content type, reuses Raw. Otherwise
// the decoded Payload is re-encoded; encoding failures are permanent.
func (m Message) Encode(codec Codec) ([]byte, string, error) {
	if codec == nil || (codec.ContentType() == m.ContentType && len(m.Raw) > 0) {
		return m.Raw, m.ContentType, nil
	}

	body, err := codec.Marshal(m.Payload)
	if err != nil {
		return nil, "", Permanent(fmt.Errorf("outbox: encode message %s: %w", m.ID, err))
	}

	return body, codec.ContentType(), nil
}
