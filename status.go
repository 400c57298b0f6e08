package outbox

// DeliveryState represents the lifecycle state of an outbox record.
type DeliveryState int16

const (
	// StatePending indicates the record has not been delivered to the broker yet.
	StatePending DeliveryState = 0
	// StateDelivered indicates the broker accepted the record.
	StateDelivered DeliveryState = 1
)

// String returns the state name.
func (s DeliveryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// Processed reports whether the state maps to processed = true in storage.
func (s DeliveryState) Processed() bool {
	return s == StateDelivered
}
