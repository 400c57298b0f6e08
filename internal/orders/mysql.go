package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLQuerier is satisfied by *sql.DB and *sql.Tx.
type SQLQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQLRepository stores orders with database/sql.
type MySQLRepository struct {
	db SQLQuerier
}

var _ Repository[*sql.Tx] = (*MySQLRepository)(nil)

// NewMySQLRepository reads through db outside units of work.
func NewMySQLRepository(db SQLQuerier) *MySQLRepository {
	return &MySQLRepository{db: db}
}

// Products implements Repository.
func (r *MySQLRepository) Products(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]Product, error) {
	if len(ids) == 0 {
		return map[int64]Product{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT id, name, price FROM products WHERE id IN (" +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orders: select products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price); err != nil {
			return nil, fmt.Errorf("orders: scan product: %w", err)
		}
		products[p.ID] = p
	}

	return products, rows.Err()
}

// Insert implements Repository. The auto-increment id is assigned to order.
func (r *MySQLRepository) Insert(ctx context.Context, tx *sql.Tx, order *Order) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO orders (customer_name, customer_email, order_date, total_amount) VALUES (?, ?, ?, ?)",
		order.CustomerName, order.CustomerEmail, order.OrderDate.UTC(), order.TotalAmount)
	if err != nil {
		return fmt.Errorf("orders: insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("orders: read order id: %w", err)
	}
	order.AssignID(id)

	for _, item := range order.Items {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, product_id, quantity, price) VALUES (?, ?, ?, ?)",
			id, item.ProductID, item.Quantity, item.Price)
		if err != nil {
			return fmt.Errorf("orders: insert item: %w", err)
		}
	}

	return nil
}

// Find implements Repository.
func (r *MySQLRepository) Find(ctx context.Context, id int64) (*Order, error) {
	order := &Order{}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, customer_name, customer_email, order_date, total_amount FROM orders WHERE id = ?", id).
		Scan(&order.ID, &order.CustomerName, &order.CustomerEmail, &order.OrderDate, &order.TotalAmount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("orders: select order: %w", err)
	}
	order.OrderDate = order.OrderDate.UTC()

	rows, err := r.db.QueryContext(ctx,
		"SELECT product_id, quantity, price FROM order_items WHERE order_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("orders: select items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("orders: scan item: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	return order, rows.Err()
}
