package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/velmie/txoutbox"
)

const (
	// TagOrderCreated is the type tag stored with OrderCreated records.
	TagOrderCreated = "OrderCreated"
	// RoutingKeyOrderCreated is the broker routing key for OrderCreated.
	RoutingKeyOrderCreated = "order.created"
)

// OrderCreated is raised when an order is placed.
type OrderCreated struct {
	outbox.OccurrenceBase
	// OrderID is zero until patch-back copies the assigned id.
	OrderID       int64           `json:"orderId"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	OrderDate     time.Time       `json:"orderDate"`
}

var _ outbox.IdentityPatcher = (*OrderCreated)(nil)

// TypeTag implements outbox.Occurrence.
func (*OrderCreated) TypeTag() string {
	return TagOrderCreated
}

// RoutingKey implements outbox.Occurrence.
func (*OrderCreated) RoutingKey() string {
	return RoutingKeyOrderCreated
}

// PatchIdentity implements outbox.IdentityPatcher.
func (e *OrderCreated) PatchIdentity(agg outbox.Aggregate) bool {
	order, ok := agg.(*Order)
	if !ok || order.ID == 0 {
		return false
	}
	e.OrderID = order.ID

	return true
}

// Kinds lists every occurrence kind this context raises.
func Kinds() []outbox.Occurrence {
	return []outbox.Occurrence{&OrderCreated{}}
}

// RegisterEvents adds decoders for the kinds in Kinds.
func RegisterEvents(registry *outbox.Registry) error {
	return outbox.Register[OrderCreated](registry, TagOrderCreated)
}
