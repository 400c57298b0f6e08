package outbox

import (
	"context"
	"errors"
)

// FailureAction defines how a failed record is classified.
// Both actions leave the record pending; the classification drives logging and metrics.
type FailureAction int

const (
	// FailureTransient marks a failure that a later cycle may overcome.
	FailureTransient FailureAction = iota
	// FailurePermanent marks a failure that retrying cannot fix (unknown tag, bad payload).
	FailurePermanent
)

// String returns the action name.
func (a FailureAction) String() string {
	if a == FailurePermanent {
		return "permanent"
	}

	return "transient"
}

// FailureClassifier decides whether a failure is transient or permanent.
type FailureClassifier func(ctx context.Context, record Record, err error) FailureAction

// FailureHandler is called when a record fails to dispatch.
type FailureHandler func(ctx context.Context, record Record, err error)

// DefaultFailureClassifier treats unknown tags, decode errors and errors
// wrapping ErrPermanent as permanent. Everything else is transient.
func DefaultFailureClassifier(_ context.Context, _ Record, err error) FailureAction {
	switch {
	case errors.Is(err, ErrPermanent),
		errors.Is(err, ErrUnknownTypeTag),
		errors.Is(err, ErrDecodeFailed):
		return FailurePermanent
	default:
		return FailureTransient
	}
}
