package outbox

import (
	"encoding/json"
	"time"
)

// Record is the durable representation of one captured occurrence.
type Record struct {
	// ID equals the occurrence ID.
	ID ID
	// TypeTag resolves the payload decoder at dispatch time (e.g., "OrderCreated").
	TypeTag string
	// RoutingKey classifies the event for the broker (e.g., "order.created").
	RoutingKey string
	// Payload is the serialized occurrence.
	Payload []byte
	// ContentType declares the payload encoding.
	ContentType string
	// CreatedAt is the occurrence time, not the capture time.
	CreatedAt time.Time
	// State is the delivery state.
	State DeliveryState
	// DeliveredAt is set only when State is StateDelivered.
	DeliveredAt time.Time
	// Attempts counts failed dispatch attempts. It never changes State.
	Attempts int
}

// Validate checks required fields and, for JSON records, payload validity.
func (r Record) Validate() error {
	if r.ID == NilID {
		return ErrInvalidID
	}
	if r.TypeTag == "" {
		return ErrTypeTagRequired
	}
	if r.RoutingKey == "" {
		return ErrRoutingKeyRequired
	}
	if len(r.Payload) == 0 {
		return ErrPayloadRequired
	}
	if r.CreatedAt.IsZero() {
		return ErrCreatedAtRequired
	}
	if (r.ContentType == "" || r.ContentType == ContentTypeJSON) && !json.Valid(r.Payload) {
		return ErrInvalidPayload
	}

	return nil
}

// Delivered reports whether the record was delivered.
func (r Record) Delivered() bool {
	return r.State == StateDelivered
}

// PayloadPatch replaces the payload of a pending record.
type PayloadPatch struct {
	ID      ID
	Payload []byte
}

// Failure captures a dispatch error for a record.
type Failure struct {
	ID     ID
	Err    error
	Action FailureAction
}
