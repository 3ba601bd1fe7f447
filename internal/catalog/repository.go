package catalog

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a unique constraint violation (barcode, category name).
	ErrAlreadyExists = errors.New("record already exists")
	// ErrProductReferenced is returned when deleting a product that order items still reference.
	ErrProductReferenced = errors.New("product is referenced by order items")
)

type Repository interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)
	UpdateCategory(ctx context.Context, id int64, c Category) error
	DeleteCategory(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, req ListProductsRequest) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, id int64, updates map[string]interface{}) error
	DeleteProduct(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *repository) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, created_at FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	return c, err
}

func (r *repository) CreateCategory(ctx context.Context, c Category) (Category, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, description, created_at) VALUES ($1, $2, NOW()) RETURNING id, created_at`, c.Name, c.Description).
		Scan(&c.ID, &c.CreatedAt)
	if isUniqueViolation(err) {
		return Category{}, ErrAlreadyExists
	}
	return c, err
}

func (r *repository) UpdateCategory(ctx context.Context, id int64, c Category) error {
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET name = $1, description = $2 WHERE id = $3`, c.Name, c.Description, id)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteCategory(ctx context.Context, id int64) error {
	// products.category_id is ON DELETE SET NULL, so this never cascades.
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const productColumns = `p.id, p.name, p.barcode, p.category_id, c.name, p.price, p.cost_price, p.stock_quantity, p.low_stock_threshold, p.is_active, p.created_at, p.updated_at`

func (r *repository) ListProducts(ctx context.Context, req ListProductsRequest) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products p LEFT JOIN categories c ON p.category_id = c.id WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM products p WHERE 1=1`
	var conditions string
	args := []interface{}{}
	argCount := 0

	if req.ActiveOnly {
		conditions += ` AND p.is_active = TRUE`
	}
	if req.Search != "" {
		argCount++
		conditions += ` AND p.name ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+req.Search+"%")
	}
	if req.CategoryID != nil {
		argCount++
		conditions += ` AND p.category_id = $` + strconv.Itoa(argCount)
		args = append(args, *req.CategoryID)
	}
	if req.Barcode != "" {
		argCount++
		conditions += ` AND p.barcode = $` + strconv.Itoa(argCount)
		args = append(args, req.Barcode)
	}
	if req.LowStock {
		conditions += ` AND p.stock_quantity <= p.low_stock_threshold`
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery+conditions, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += conditions + ` ORDER BY p.name`
	if req.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, req.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, req.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products p LEFT JOIN categories c ON p.category_id = c.id WHERE p.id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *repository) GetProductByBarcode(ctx context.Context, barcode string) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products p LEFT JOIN categories c ON p.category_id = c.id WHERE p.barcode = $1`, barcode)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO products (name, barcode, category_id, price, cost_price, stock_quantity, low_stock_threshold, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
		p.Name, p.Barcode, p.CategoryID, p.Price, p.CostPrice, p.StockQuantity, p.LowStockThreshold, p.IsActive, now).Scan(&p.ID)
	if isUniqueViolation(err) {
		return Product{}, ErrAlreadyExists
	}
	if err != nil {
		return Product{}, err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

// UpdateProduct patches product fields. stock_quantity is deliberately
// not accepted here; stock changes go through the ledger.
func (r *repository) UpdateProduct(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := `UPDATE products SET updated_at = NOW()`
	args := []interface{}{}
	argCount := 0

	for _, col := range []string{"name", "barcode", "category_id", "price", "cost_price", "low_stock_threshold", "is_active"} {
		if v, ok := updates[col]; ok {
			argCount++
			query += `, ` + col + ` = $` + strconv.Itoa(argCount)
			args = append(args, v)
		}
	}

	argCount++
	query += ` WHERE id = $` + strconv.Itoa(argCount)
	args = append(args, id)

	tag, err := r.pool.Exec(ctx, query, args...)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrProductReferenced
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.CategoryID, &p.CategoryName, &p.Price, &p.CostPrice, &p.StockQuantity, &p.LowStockThreshold, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
