package stock

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRecorder exposes the per-transaction operations the ledger needs.
// Other modules (order creation, cancellation) obtain one bound to
// their own transaction so movements commit atomically with them.
type TxRecorder interface {
	GetStockForUpdate(ctx context.Context, productID int64) (int, error)
	SetStock(ctx context.Context, productID int64, qty int) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NewTxRecorder binds a recorder to an existing transaction.
func NewTxRecorder(tx pgx.Tx) TxRecorder {
	return &txRecorder{tx: tx}
}

type txRecorder struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRecorder) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRecorder{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ListMovements returns movements newest first, optionally filtered by product.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT sm.id, sm.product_id, p.name, sm.movement_type, sm.quantity, sm.previous_stock, sm.new_stock, sm.reference, COALESCE(sm.created_by, 0), sm.created_at
FROM stock_movements sm
JOIN products p ON sm.product_id = p.id`
	args := []interface{}{}
	if filter.ProductID != 0 {
		query += ` WHERE sm.product_id = $1`
		args = append(args, filter.ProductID)
	}
	query += ` ORDER BY sm.created_at DESC, sm.id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.ProductName, &m.Type, &m.Quantity, &m.PreviousStock, &m.NewStock, &m.Reference, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRecorder) GetStockForUpdate(ctx context.Context, productID int64) (int, error) {
	var qty int
	err := r.tx.QueryRow(ctx, `SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	return qty, err
}

func (r *txRecorder) SetStock(ctx context.Context, productID int64, qty int) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET stock_quantity = $2, updated_at = NOW() WHERE id = $1`, productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *txRecorder) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, movement_type, quantity, previous_stock, new_stock, reference, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id`,
		m.ProductID, string(m.Type), m.Quantity, m.PreviousStock, m.NewStock, m.Reference, nullInt(m.CreatedBy)).Scan(&id)
	return id, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

