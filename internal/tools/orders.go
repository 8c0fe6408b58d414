// Package tools holds the function tools exposed to the AI backend.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scriba-ai/scriba/internal/store"
)

// OrderSource is the slice of the store the order tools need.
type OrderSource interface {
	OrdersByContact(ctx context.Context, contact string) ([]store.Order, error)
	LatestOrder(ctx context.Context, contact string) (*store.Order, error)
	OrdersByStatus(ctx context.Context, contact, status string) ([]store.Order, error)
}

// ordersResult is the list shape every order query returns.
type ordersResult struct {
	Orders     []store.Order `json:"orders"`
	TotalCount int           `json:"total_count"`
}

func listResult(orders []store.Order) ordersResult {
	if orders == nil {
		orders = []store.Order{}
	}
	return ordersResult{Orders: orders, TotalCount: len(orders)}
}

var phoneProperty = map[string]any{
	"type":        "string",
	"description": "User's phone number in international format (e.g., +393404570180)",
}

type orderArgs struct {
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"`
}

func decodeArgs(raw json.RawMessage) (orderArgs, error) {
	var args orderArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("decode arguments: %w", err)
	}
	if args.PhoneNumber == "" {
		return args, errors.New("phone_number is required")
	}
	return args, nil
}

// UserOrders lists every order on file for a contact.
type UserOrders struct {
	Source OrderSource
}

func (t *UserOrders) Name() string { return "get_user_orders" }

func (t *UserOrders) Description() string {
	return "Get all orders for a user. Returns a list of all orders with details including status, delivery date, products, and amounts."
}

func (t *UserOrders) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"phone_number": phoneProperty,
		},
		"required": []string{"phone_number"},
	}
}

func (t *UserOrders) Execute(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	orders, err := t.Source.OrdersByContact(ctx, args.PhoneNumber)
	if err != nil {
		return nil, err
	}
	return listResult(orders), nil
}

// LatestOrder returns a contact's most recent order plus the days left
// until its expected delivery.
type LatestOrder struct {
	Source OrderSource

	now func() time.Time
}

func NewLatestOrder(source OrderSource) *LatestOrder {
	return &LatestOrder{Source: source, now: time.Now}
}

func (t *LatestOrder) Name() string { return "get_latest_order" }

func (t *LatestOrder) Description() string {
	return "Get the most recent order for a user with delivery information. Use this when the user asks about their latest/most recent order or expected delivery date."
}

func (t *LatestOrder) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"phone_number": phoneProperty,
		},
		"required": []string{"phone_number"},
	}
}

func (t *LatestOrder) Execute(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}

	order, err := t.Source.LatestOrder(ctx, args.PhoneNumber)
	if errors.Is(err, store.ErrNotFound) {
		return map[string]string{"message": "No orders found for this user"}, nil
	}
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"order_id":               order.OrderID,
		"status":                 order.Status,
		"expected_delivery_date": order.ExpectedDeliveryDate,
		"product_name":           order.ProductName,
	}
	if delivery, err := time.Parse("2006-01-02", order.ExpectedDeliveryDate); err == nil {
		// Negative once the date has passed.
		result["days_until_delivery"] = int(delivery.Sub(t.now()).Hours() / 24)
	}
	return result, nil
}

// OrdersByStatus filters a contact's orders by fulfilment status.
type OrdersByStatus struct {
	Source OrderSource
}

func (t *OrdersByStatus) Name() string { return "search_orders_by_status" }

func (t *OrdersByStatus) Description() string {
	return "Search and filter orders by status (processing, shipped, or delivered). Use this when user asks about orders with specific status."
}

func (t *OrdersByStatus) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"phone_number": phoneProperty,
			"status": map[string]any{
				"type":        "string",
				"description": "Order status to filter by: 'processing', 'shipped', or 'delivered'",
			},
		},
		"required": []string{"phone_number", "status"},
	}
}

func (t *OrdersByStatus) Execute(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	if args.Status == "" {
		return nil, errors.New("status is required")
	}
	orders, err := t.Source.OrdersByStatus(ctx, args.PhoneNumber, args.Status)
	if err != nil {
		return nil, err
	}
	return listResult(orders), nil
}
