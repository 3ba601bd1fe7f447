package orders

import "time"

// CreateOrderItemRequest is one requested line of a new order.
// UnitPrice overrides the catalog price when set; omitted lines are
// priced from the catalog at creation time.
type CreateOrderItemRequest struct {
	ProductID int64    `json:"product_id" validate:"required,gt=0"`
	Quantity  int      `json:"quantity" validate:"required,gt=0"`
	UnitPrice *float64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	Discount  float64  `json:"discount" validate:"gte=0,lte=100"`
}

// CreateOrderRequest opens a new order with at least one line.
type CreateOrderRequest struct {
	CustomerID     *int64                   `json:"customer_id" validate:"omitempty,gt=0"`
	DiscountAmount float64                  `json:"discount_amount" validate:"gte=0"`
	Notes          string                   `json:"notes" validate:"max=1000"`
	Items          []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ListOrdersRequest filters the order listing. From is inclusive, To
// is exclusive.
type ListOrdersRequest struct {
	Status     string `validate:"omitempty,oneof=pending completed cancelled refunded"`
	CustomerID int64  `validate:"gte=0"`
	Search     string `validate:"max=120"`
	From       *time.Time
	To         *time.Time
	Limit      int `validate:"gte=0,lte=500"`
	Offset     int `validate:"gte=0"`
}
