package outbox

import "context"

// CycleGuard serializes dispatch cycles across instances.
// It narrows duplicate delivery windows; correctness never depends on it.
type CycleGuard interface {
	// TryAcquire attempts to take the guard without blocking.
	// When acquired is true the caller must invoke release after the cycle.
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}
