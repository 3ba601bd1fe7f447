package catalog

import "time"

// Category groups products for browsing and reporting.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Product represents a sellable item. StockQuantity is owned by the
// stock ledger: nothing in this package writes it.
type Product struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Barcode           *string   `json:"barcode,omitempty"`
	CategoryID        *int64    `json:"category_id,omitempty"`
	CategoryName      *string   `json:"category_name,omitempty"`
	Price             float64   `json:"price"`
	CostPrice         float64   `json:"cost_price"`
	StockQuantity     int       `json:"stock_quantity"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsLowStock reports whether the product needs replenishment.
func (p Product) IsLowStock() bool {
	return p.StockQuantity <= p.LowStockThreshold
}
