package orders

import "errors"

var (
	ErrCustomerNameRequired  = errors.New("orders: customer name is required")
	ErrCustomerEmailRequired = errors.New("orders: customer email is required")
	ErrItemsRequired         = errors.New("orders: at least one item is required")
	ErrInvalidQuantity       = errors.New("orders: item quantity must be positive")
	ErrProductNotFound       = errors.New("orders: one or more products not found")
	ErrNotFound              = errors.New("orders: order not found")
)

// validationError reports whether err is caused by bad input.
func validationError(err error) bool {
	return errors.Is(err, ErrCustomerNameRequired) ||
		errors.Is(err, ErrCustomerEmailRequired) ||
		errors.Is(err, ErrItemsRequired) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrProductNotFound)
}
