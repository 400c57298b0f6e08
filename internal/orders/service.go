package orders

import (
	"context"
	"fmt"
	"slices"

	"github.com/velmie/txoutbox"
)

// Repository persists orders inside a transaction of type T.
type Repository[T any] interface {
	// Products returns the catalog entries for the ids that exist.
	Products(ctx context.Context, tx T, ids []int64) (map[int64]Product, error)
	// Insert writes the order and its items and assigns its id.
	Insert(ctx context.Context, tx T, order *Order) error
	// Find loads an order outside any unit of work.
	Find(ctx context.Context, id int64) (*Order, error)
}

// CreateOrder is the input for placing an order.
type CreateOrder struct {
	CustomerName  string
	CustomerEmail string
	Items         []ItemRequest
}

// ItemRequest asks for quantity units of a product.
type ItemRequest struct {
	ProductID int64
	Quantity  int
}

// Service places and reads orders.
type Service[T any] struct {
	uow    *outbox.UnitOfWork[T]
	repo   Repository[T]
	ids    outbox.IDGenerator
	clock  outbox.Clock
	logger outbox.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	ids    outbox.IDGenerator
	clock  outbox.Clock
	logger outbox.Logger
}

// WithIDGenerator overrides occurrence id generation.
func WithIDGenerator(gen outbox.IDGenerator) ServiceOption {
	return func(c *serviceConfig) {
		c.ids = gen
	}
}

// WithClock overrides the order clock.
func WithClock(clock outbox.Clock) ServiceOption {
	return func(c *serviceConfig) {
		c.clock = clock
	}
}

// WithLogger sets the service logger.
func WithLogger(logger outbox.Logger) ServiceOption {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

// NewService wires a service to a unit of work and a repository sharing T.
func NewService[T any](uow *outbox.UnitOfWork[T], repo Repository[T], opts ...ServiceOption) *Service[T] {
	var cfg serviceConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ids == nil {
		cfg.ids = outbox.UUIDv7Generator{}
	}
	if cfg.clock == nil {
		cfg.clock = outbox.SystemClock{}
	}
	if cfg.logger == nil {
		cfg.logger = outbox.NopLogger{}
	}

	return &Service[T]{
		uow:    uow,
		repo:   repo,
		ids:    cfg.ids,
		clock:  cfg.clock,
		logger: cfg.logger,
	}
}

// Create prices the requested items, builds the order and commits it together
// with its OrderCreated record. The id assigned by the insert reaches the
// record through patch-back.
func (s *Service[T]) Create(ctx context.Context, req CreateOrder) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrItemsRequired
	}

	var order *Order
	err := s.uow.Do(ctx, func(ctx context.Context, work *outbox.Work[T]) error {
		products, err := s.repo.Products(ctx, work.Tx(), productIDs(req.Items))
		if err != nil {
			return err
		}

		items := make([]Item, 0, len(req.Items))
		for _, requested := range req.Items {
			product, ok := products[requested.ProductID]
			if !ok {
				return fmt.Errorf("%w: %d", ErrProductNotFound, requested.ProductID)
			}
			items = append(items, Item{
				ProductID: requested.ProductID,
				Quantity:  requested.Quantity,
				Price:     product.Price,
			})
		}

		order, err = NewOrder(req.CustomerName, req.CustomerEmail, items, s.ids, s.clock)
		if err != nil {
			return err
		}

		work.Track(order)
		work.Flush(func(ctx context.Context, tx T) error {
			return s.repo.Insert(ctx, tx, order)
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created", "order_id", order.ID, "customer_name", order.CustomerName)

	return order, nil
}

// Get loads an order by id.
func (s *Service[T]) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Find(ctx, id)
}

func productIDs(items []ItemRequest) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	slices.Sort(ids)

	return slices.Compact(ids)
}
