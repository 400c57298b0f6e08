package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PgxQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type PgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores orders with pgx. Numeric columns travel as text
// so decimal values keep their exact scale.
type PostgresRepository struct {
	db PgxQuerier
}

var _ Repository[pgx.Tx] = (*PostgresRepository)(nil)

// NewPostgresRepository reads through db outside units of work.
func NewPostgresRepository(db PgxQuerier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Products implements Repository.
func (r *PostgresRepository) Products(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]Product, error) {
	rows, err := tx.Query(ctx, "SELECT id, name, price::text FROM products WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("orders: select products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]Product, len(ids))
	for rows.Next() {
		var (
			p     Product
			price string
		)
		if err := rows.Scan(&p.ID, &p.Name, &price); err != nil {
			return nil, fmt.Errorf("orders: scan product: %w", err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("orders: parse price of product %d: %w", p.ID, err)
		}
		products[p.ID] = p
	}

	return products, rows.Err()
}

// Insert implements Repository. The serial id is assigned to order.
func (r *PostgresRepository) Insert(ctx context.Context, tx pgx.Tx, order *Order) error {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO orders (customer_name, customer_email, order_date, total_amount)
VALUES ($1, $2, $3, $4::numeric) RETURNING id`,
		order.CustomerName, order.CustomerEmail, order.OrderDate.UTC(), order.TotalAmount.String()).Scan(&id)
	if err != nil {
		return fmt.Errorf("orders: insert order: %w", err)
	}
	order.AssignID(id)

	batch := &pgx.Batch{}
	for _, item := range order.Items {
		batch.Queue("INSERT INTO order_items (order_id, product_id, quantity, price) VALUES ($1, $2, $3, $4::numeric)",
			id, item.ProductID, item.Quantity, item.Price.String())
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("orders: insert items: %w", err)
	}

	return nil
}

// Find implements Repository.
func (r *PostgresRepository) Find(ctx context.Context, id int64) (*Order, error) {
	var (
		order = &Order{}
		total string
	)
	err := r.db.QueryRow(ctx,
		"SELECT id, customer_name, customer_email, order_date, total_amount::text FROM orders WHERE id = $1", id).
		Scan(&order.ID, &order.CustomerName, &order.CustomerEmail, &order.OrderDate, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("orders: select order: %w", err)
	}
	order.OrderDate = order.OrderDate.UTC()
	if order.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("orders: parse total of order %d: %w", id, err)
	}

	rows, err := r.db.Query(ctx,
		"SELECT product_id, quantity, price::text FROM order_items WHERE order_id = $1 ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("orders: select items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item  Item
			price string
		)
		if err := rows.Scan(&item.ProductID, &item.Quantity, &price); err != nil {
			return nil, fmt.Errorf("orders: scan item: %w", err)
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("orders: parse item price: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	return order, rows.Err()
}
