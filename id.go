package outbox

import (
	"fmt"

	"github.com/google/uuid"
)

// ID identifies an occurrence and the record captured for it.
// Records reuse the occurrence ID so re-capturing the same occurrence can never
// produce a second row.
type ID = uuid.UUID

// NilID is the zero ID.
var NilID ID

// ParseID parses a UUID string (canonical or 32 hex) into an ID.
func ParseID(value string) (ID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return NilID, fmt.Errorf("%w: %q", ErrInvalidID, value)
	}

	return id, nil
}

// IDGenerator creates new identifiers.
type IDGenerator interface {
	// New returns a new identifier.
	New() (ID, error)
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() (ID, error)

// New implements IDGenerator.
func (fn IDGeneratorFunc) New() (ID, error) {
	return fn()
}

// UUIDv7Generator produces time-ordered UUID v7 identifiers.
type UUIDv7Generator struct{}

// New creates a new UUID v7 identifier.
func (UUIDv7Generator) New() (ID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return NilID, fmt.Errorf("outbox: generate id failed: %w", err)
	}

	return id, nil
}
