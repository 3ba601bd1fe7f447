package catalog

type CreateCategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

type CreateProductRequest struct {
	Name              string  `json:"name" validate:"required,max=200"`
	Barcode           *string `json:"barcode,omitempty" validate:"omitempty,max=100"`
	CategoryID        *int64  `json:"category_id,omitempty" validate:"omitempty,gt=0"`
	Price             float64 `json:"price" validate:"required,gte=0"`
	CostPrice         float64 `json:"cost_price" validate:"gte=0"`
	StockQuantity     int     `json:"stock_quantity" validate:"gte=0"`
	LowStockThreshold *int    `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
}

type UpdateProductRequest struct {
	Name              *string  `json:"name,omitempty" validate:"omitempty,max=200"`
	Barcode           *string  `json:"barcode,omitempty" validate:"omitempty,max=100"`
	CategoryID        *int64   `json:"category_id,omitempty" validate:"omitempty,gt=0"`
	Price             *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	CostPrice         *float64 `json:"cost_price,omitempty" validate:"omitempty,gte=0"`
	LowStockThreshold *int     `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	IsActive          *bool    `json:"is_active,omitempty"`
}

type ListProductsRequest struct {
	Search     string
	CategoryID *int64
	Barcode    string
	LowStock   bool
	ActiveOnly bool
	Limit      int
	Offset     int
}
