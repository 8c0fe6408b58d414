package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type Order struct {
	OrderID              string    `json:"order_id"`
	Status               string    `json:"status"`
	ProductName          string    `json:"product_name"`
	Quantity             int       `json:"quantity"`
	TotalAmount          float64   `json:"total_amount"`
	ExpectedDeliveryDate string    `json:"expected_delivery_date"`
	CreatedAt            time.Time `json:"created_at"`
}

const orderColumns = `
	order_id, status, product_name, quantity, total_amount,
	to_char(expected_delivery_date, 'YYYY-MM-DD'), created_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.OrderID, &o.Status, &o.ProductName, &o.Quantity,
		&o.TotalAmount, &o.ExpectedDeliveryDate, &o.CreatedAt)
	return o, err
}

// OrdersByContact returns all orders for a contact, newest first.
func (s *Store) OrdersByContact(ctx context.Context, contact string) ([]Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE contact = $1 ORDER BY created_at DESC`,
		contact,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// LatestOrder returns the contact's most recent order, or ErrNotFound.
func (s *Store) LatestOrder(ctx context.Context, contact string) (*Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE contact = $1 ORDER BY created_at DESC LIMIT 1`,
		contact,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest order: %w", err)
	}
	return &o, nil
}

// OrdersByStatus filters a contact's orders by status.
func (s *Store) OrdersByStatus(ctx context.Context, contact, status string) ([]Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE contact = $1 AND status = $2 ORDER BY created_at DESC`,
		contact, status,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders by status: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
