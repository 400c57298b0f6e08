package outbox

import (
	"fmt"
	"time"
)

// Occurrence is a domain fact raised by an aggregate and not yet durably recorded.
type Occurrence interface {
	// OccurrenceID returns the globally unique occurrence identifier.
	OccurrenceID() ID
	// OccurredAt returns the logical time of the occurrence.
	OccurredAt() time.Time
	// RoutingKey returns the dotted broker classifier (e.g., "order.created").
	RoutingKey() string
	// TypeTag returns the registry key used to decode the payload.
	TypeTag() string
}

// IdentityPatcher is implemented by occurrences that embed the identifier of
// their aggregate. PatchIdentity copies the aggregate's current identifier into
// the occurrence and reports whether the occurrence changed.
type IdentityPatcher interface {
	Occurrence
	PatchIdentity(agg Aggregate) bool
}

// OccurrenceBase carries the identity and timestamp shared by every occurrence kind.
// Embed it in concrete occurrence types.
type OccurrenceBase struct {
	EventID    ID        `json:"eventId"`
	OccurredOn time.Time `json:"occurredOn"`
}

// NewOccurrenceBase stamps a new occurrence with a fresh ID and the current time.
func NewOccurrenceBase(gen IDGenerator, clock Clock) (OccurrenceBase, error) {
	if gen == nil {
		gen = UUIDv7Generator{}
	}
	id, err := gen.New()
	if err != nil {
		return OccurrenceBase{}, fmt.Errorf("outbox: new occurrence: %w", err)
	}

	return OccurrenceBase{
		EventID:    id,
		OccurredOn: clockOrSystem(clock).Now(),
	}, nil
}

// OccurrenceID implements Occurrence.
func (b OccurrenceBase) OccurrenceID() ID {
	return b.EventID
}

// OccurredAt implements Occurrence.
func (b OccurrenceBase) OccurredAt() time.Time {
	return b.OccurredOn
}
