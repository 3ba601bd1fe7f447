package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SalesSnapshot summarizes completed sales over a window.
type SalesSnapshot struct {
	Revenue    float64 `json:"revenue"`
	OrderCount int     `json:"order_count"`
}

// MethodTotal is revenue taken through one payment method.
type MethodTotal struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
	Count  int     `json:"count"`
}

// RecentOrder is one row of the dashboard's latest-orders panel.
type RecentOrder struct {
	ID          int64     `json:"id"`
	OrderNumber string    `json:"order_number"`
	Status      string    `json:"status"`
	TotalAmount float64   `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// RepositoryPort abstracts the dashboard queries for the service.
type RepositoryPort interface {
	SalesSince(ctx context.Context, since time.Time) (SalesSnapshot, error)
	PaymentsSince(ctx context.Context, since time.Time) ([]MethodTotal, error)
	ProductCounts(ctx context.Context) (active int, lowStock int, err error)
	RecentOrders(ctx context.Context, limit int) ([]RecentOrder, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SalesSince sums completed orders created at or after since. COALESCE
// keeps an empty day reading as zero rather than NULL.
func (r *Repository) SalesSince(ctx context.Context, since time.Time) (SalesSnapshot, error) {
	var s SalesSnapshot
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0), COUNT(*)
		FROM orders
		WHERE status = 'completed' AND created_at >= $1`, since).
		Scan(&s.Revenue, &s.OrderCount)
	if err != nil {
		return SalesSnapshot{}, fmt.Errorf("sales snapshot: %w", err)
	}
	return s, nil
}

func (r *Repository) PaymentsSince(ctx context.Context, since time.Time) ([]MethodTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT method, COALESCE(SUM(amount), 0), COUNT(*)
		FROM payments
		WHERE status = 'completed' AND created_at >= $1
		GROUP BY method
		ORDER BY method`, since)
	if err != nil {
		return nil, fmt.Errorf("payment totals: %w", err)
	}
	defer rows.Close()

	totals := []MethodTotal{}
	for rows.Next() {
		var t MethodTotal
		if err := rows.Scan(&t.Method, &t.Amount, &t.Count); err != nil {
			return nil, fmt.Errorf("scan payment total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (r *Repository) ProductCounts(ctx context.Context) (int, int, error) {
	var active, lowStock int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE is_active AND stock_quantity <= low_stock_threshold)
		FROM products`).Scan(&active, &lowStock)
	if err != nil {
		return 0, 0, fmt.Errorf("product counts: %w", err)
	}
	return active, lowStock, nil
}

func (r *Repository) RecentOrders(ctx context.Context, limit int) ([]RecentOrder, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_number, status, total_amount, created_at
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	defer rows.Close()

	out := []RecentOrder{}
	for rows.Next() {
		var o RecentOrder
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.Status, &o.TotalAmount, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recent order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
