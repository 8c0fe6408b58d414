package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/scriba-ai/scriba/internal/store"
)

type fakeOrderSource struct {
	orders []store.Order
}

func (f *fakeOrderSource) OrdersByContact(_ context.Context, _ string) ([]store.Order, error) {
	return f.orders, nil
}

func (f *fakeOrderSource) LatestOrder(_ context.Context, _ string) (*store.Order, error) {
	if len(f.orders) == 0 {
		return nil, store.ErrNotFound
	}
	return &f.orders[0], nil
}

func (f *fakeOrderSource) OrdersByStatus(_ context.Context, _, status string) ([]store.Order, error) {
	var out []store.Order
	for _, o := range f.orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func TestUserOrders_EmptyListIsNotNull(t *testing.T) {
	tool := &UserOrders{Source: &fakeOrderSource{}}

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"phone_number":"+391234"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"orders":[],"total_count":0}` {
		t.Errorf("unexpected result %s", b)
	}
}

func TestUserOrders_RequiresPhoneNumber(t *testing.T) {
	tool := &UserOrders{Source: &fakeOrderSource{}}

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing phone_number")
	}
	if _, err := tool.Execute(context.Background(), json.RawMessage(`not json`)); err == nil {
		t.Fatal("expected error for malformed arguments")
	}
}

func TestLatestOrder_DaysUntilDelivery(t *testing.T) {
	source := &fakeOrderSource{orders: []store.Order{{
		OrderID:              "ORD-001",
		Status:               "shipped",
		ProductName:          "Espresso Machine",
		ExpectedDeliveryDate: "2026-09-05",
	}}}
	tool := NewLatestOrder(source)
	tool.now = func() time.Time {
		return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	}

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"phone_number":"+391234"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", result)
	}
	if m["order_id"] != "ORD-001" {
		t.Errorf("expected order ORD-001, got %v", m["order_id"])
	}
	if m["days_until_delivery"] != 3 {
		t.Errorf("expected 3 days until delivery, got %v", m["days_until_delivery"])
	}
}

func TestLatestOrder_NoOrders(t *testing.T) {
	tool := NewLatestOrder(&fakeOrderSource{})

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"phone_number":"+391234"}`))
	if err != nil {
		t.Fatalf("no orders must not be an error: %v", err)
	}

	m, ok := result.(map[string]string)
	if !ok || m["message"] == "" {
		t.Errorf("expected a message for the empty case, got %v", result)
	}
}

func TestOrdersByStatus_Filters(t *testing.T) {
	source := &fakeOrderSource{orders: []store.Order{
		{OrderID: "ORD-001", Status: "shipped"},
		{OrderID: "ORD-002", Status: "processing"},
		{OrderID: "ORD-003", Status: "shipped"},
	}}
	tool := &OrdersByStatus{Source: source}

	result, err := tool.Execute(context.Background(),
		json.RawMessage(`{"phone_number":"+391234","status":"shipped"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list, ok := result.(ordersResult)
	if !ok {
		t.Fatalf("unexpected result type %T", result)
	}
	if list.TotalCount != 2 {
		t.Errorf("expected 2 shipped orders, got %d", list.TotalCount)
	}
}

func TestOrdersByStatus_RequiresStatus(t *testing.T) {
	tool := &OrdersByStatus{Source: &fakeOrderSource{}}

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"phone_number":"+391234"}`))
	if err == nil {
		t.Fatal("expected error for missing status")
	}
	if errors.Is(err, store.ErrNotFound) {
		t.Fatal("validation error must not masquerade as not-found")
	}
}
