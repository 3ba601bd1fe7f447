package stock

import (
	"errors"
	"fmt"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementSale records stock leaving through an order.
	MovementSale MovementType = "sale"
	// MovementRestock records replenishment from a supplier.
	MovementRestock MovementType = "restock"
	// MovementAdjustment records a manual correction.
	MovementAdjustment MovementType = "adjustment"
	// MovementReturn records stock coming back from a cancelled order.
	MovementReturn MovementType = "return"
)

// ParseMovementType validates a raw movement type string.
func ParseMovementType(s string) (MovementType, error) {
	switch MovementType(s) {
	case MovementSale, MovementRestock, MovementAdjustment, MovementReturn:
		return MovementType(s), nil
	}
	return "", fmt.Errorf("stock: unknown movement type %q", s)
}

// Movement is an immutable audit record of one stock change. NewStock
// always equals PreviousStock + Quantity, and PreviousStock equals the
// product's stock at the instant before the movement, so movements
// chain per product.
type Movement struct {
	ID            int64        `json:"id"`
	ProductID     int64        `json:"product_id"`
	ProductName   string       `json:"product_name,omitempty"`
	Type          MovementType `json:"movement_type"`
	Quantity      int          `json:"quantity"`
	PreviousStock int          `json:"previous_stock"`
	NewStock      int          `json:"new_stock"`
	Reference     string       `json:"reference"`
	CreatedBy     int64        `json:"created_by,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// RecordInput describes one stock change to post.
type RecordInput struct {
	ProductID int64
	Type      MovementType
	Delta     int
	Reference string
	ActorID   int64
}

// AdjustmentInput describes a manual stock adjustment. Type defaults
// to MovementAdjustment; pass MovementRestock for supplier deliveries.
type AdjustmentInput struct {
	ProductID int64
	Quantity  int
	Reason    string
	Code      string
	Type      MovementType
	ActorID   int64
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID int64
	Limit     int
}

// ErrNegativeStock is returned when a movement would take stock below
// zero and negative stock is disabled.
var ErrNegativeStock = errors.New("stock: movement would make stock negative")

// ErrInvalidQuantity indicates a zero delta.
var ErrInvalidQuantity = errors.New("stock: quantity must be non zero")

// ErrProductNotFound indicates the product row is missing.
var ErrProductNotFound = errors.New("stock: product not found")
