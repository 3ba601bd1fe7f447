package catalog

import (
	"context"
	"errors"
	"strings"
)

// ServiceConfig groups catalog defaults from configuration.
type ServiceConfig struct {
	DefaultLowStockThreshold int
}

type Service struct {
	repo Repository
	cfg  ServiceConfig
}

func NewService(repo Repository, cfg ServiceConfig) *Service {
	if cfg.DefaultLowStockThreshold <= 0 {
		cfg.DefaultLowStockThreshold = 10
	}
	return &Service{repo: repo, cfg: cfg}
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req CreateCategoryRequest) (Category, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Category{}, errors.New("category name is required")
	}
	return s.repo.CreateCategory(ctx, Category{Name: strings.TrimSpace(req.Name), Description: req.Description})
}

func (s *Service) UpdateCategory(ctx context.Context, id int64, req CreateCategoryRequest) (Category, error) {
	if id <= 0 {
		return Category{}, errors.New("invalid category ID")
	}
	if strings.TrimSpace(req.Name) == "" {
		return Category{}, errors.New("category name is required")
	}
	if err := s.repo.UpdateCategory(ctx, id, Category{Name: strings.TrimSpace(req.Name), Description: req.Description}); err != nil {
		return Category{}, err
	}
	return s.repo.GetCategory(ctx, id)
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid category ID")
	}
	return s.repo.DeleteCategory(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, req ListProductsRequest) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, req)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, errors.New("invalid product ID")
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (Product, error) {
	if strings.TrimSpace(barcode) == "" {
		return Product{}, errors.New("barcode is required")
	}
	return s.repo.GetProductByBarcode(ctx, barcode)
}

func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (Product, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Product{}, errors.New("product name is required")
	}
	threshold := s.cfg.DefaultLowStockThreshold
	if req.LowStockThreshold != nil {
		threshold = *req.LowStockThreshold
	}
	p := Product{
		Name:              strings.TrimSpace(req.Name),
		Barcode:           req.Barcode,
		CategoryID:        req.CategoryID,
		Price:             req.Price,
		CostPrice:         req.CostPrice,
		StockQuantity:     req.StockQuantity,
		LowStockThreshold: threshold,
		IsActive:          true,
	}
	return s.repo.CreateProduct(ctx, p)
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req UpdateProductRequest) (Product, error) {
	if id <= 0 {
		return Product{}, errors.New("invalid product ID")
	}
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Barcode != nil {
		updates["barcode"] = *req.Barcode
	}
	if req.CategoryID != nil {
		updates["category_id"] = *req.CategoryID
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.CostPrice != nil {
		updates["cost_price"] = *req.CostPrice
	}
	if req.LowStockThreshold != nil {
		updates["low_stock_threshold"] = *req.LowStockThreshold
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) > 0 {
		if err := s.repo.UpdateProduct(ctx, id, updates); err != nil {
			return Product{}, err
		}
	}
	return s.repo.GetProduct(ctx, id)
}

// DeactivateProduct soft-deletes: the product disappears from sale
// listings but keeps its history.
func (s *Service) DeactivateProduct(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid product ID")
	}
	return s.repo.UpdateProduct(ctx, id, map[string]interface{}{"is_active": false})
}

// DeleteProduct hard-deletes. Rejected with ErrProductReferenced while
// order items point at the product.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid product ID")
	}
	return s.repo.DeleteProduct(ctx, id)
}
