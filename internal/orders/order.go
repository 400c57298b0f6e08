// Package orders is the demo business context: an Order aggregate whose
// creation raises OrderCreated before the database assigns the order id.
package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velmie/txoutbox"
)

// Product is a catalog entry.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// Item is one order line priced from the product catalog.
type Item struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Total returns price times quantity.
func (i Item) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is the aggregate. ID stays zero until the row is inserted.
type Order struct {
	ID            int64           `json:"id"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	OrderDate     time.Time       `json:"orderDate"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Items         []Item          `json:"items"`

	events outbox.Recorder
}

var _ outbox.ProvisionalAggregate = (*Order)(nil)

// NewOrder validates the input, computes the total and raises OrderCreated
// with a placeholder order id.
func NewOrder(customerName, customerEmail string, items []Item, gen outbox.IDGenerator, clock outbox.Clock) (*Order, error) {
	customerName = strings.TrimSpace(customerName)
	customerEmail = strings.TrimSpace(customerEmail)
	switch {
	case customerName == "":
		return nil, ErrCustomerNameRequired
	case customerEmail == "":
		return nil, ErrCustomerEmailRequired
	case len(items) == 0:
		return nil, ErrItemsRequired
	}

	total := decimal.Zero
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		total = total.Add(item.Total())
	}

	base, err := outbox.NewOccurrenceBase(gen, clock)
	if err != nil {
		return nil, err
	}

	order := &Order{
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		OrderDate:     base.OccurredOn.UTC(),
		TotalAmount:   total,
		Items:         items,
	}
	order.events.Raise(&OrderCreated{
		OccurrenceBase: base,
		CustomerName:   order.CustomerName,
		CustomerEmail:  order.CustomerEmail,
		TotalAmount:    order.TotalAmount,
		OrderDate:      order.OrderDate,
	})

	return order, nil
}

// AssignID records the store-generated identifier.
func (o *Order) AssignID(id int64) {
	o.ID = id
}

// DrainOccurrences implements outbox.Aggregate.
func (o *Order) DrainOccurrences() []outbox.Occurrence {
	return o.events.DrainOccurrences()
}

// RestoreOccurrences implements outbox.OccurrenceRestorer.
func (o *Order) RestoreOccurrences(occurrences []outbox.Occurrence) {
	o.events.RestoreOccurrences(occurrences)
}

// IdentityAssigned implements outbox.ProvisionalAggregate.
func (o *Order) IdentityAssigned() bool {
	return o.ID != 0
}
