package orders

import (
	"errors"
	"fmt"
	"time"
)

// OrderStatus enumerates the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// transitions is the closed transition table. Completed orders keep
// their stock; they can only move on to refunded.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted: {OrderStatusRefunded},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ParseOrderStatus validates a raw status string.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("orders: unknown status %q", s)
}

// ErrInvalidTransition indicates a forbidden status change, such as
// cancelling a completed order.
var ErrInvalidTransition = errors.New("invalid order status transition")

// ErrNotFound indicates a missing order.
var ErrNotFound = errors.New("order not found")

// Order is one sale. Totals are always derived from the items; they
// are recomputed whenever item composition changes, never hand-set.
type Order struct {
	ID             int64       `json:"id"`
	OrderNumber    string      `json:"order_number"`
	CustomerID     *int64      `json:"customer_id,omitempty"`
	CustomerName   *string     `json:"customer_name,omitempty"`
	CashierID      int64       `json:"cashier_id"`
	Status         OrderStatus `json:"status"`
	Subtotal       float64     `json:"subtotal"`
	DiscountAmount float64     `json:"discount_amount"`
	TaxAmount      float64     `json:"tax_amount"`
	TotalAmount    float64     `json:"total_amount"`
	Notes          string      `json:"notes"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Items          []OrderItem `json:"items,omitempty"`
}

// OrderItem is one line of an order. UnitPrice is a snapshot taken at
// sale time and never follows later catalog price changes.
type OrderItem struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Discount    float64 `json:"discount"`
	TotalPrice  float64 `json:"total_price"`
}
