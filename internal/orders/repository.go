package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/stock"
)

// ErrDuplicateNumber indicates an order_number collision, which the
// service resolves by regenerating the number in a fresh transaction.
var ErrDuplicateNumber = errors.New("duplicate order number")

// ErrProductUnavailable indicates a missing or deactivated product on
// an order line.
var ErrProductUnavailable = errors.New("product unavailable")

// SaleProduct is the catalog snapshot taken when pricing a line.
type SaleProduct struct {
	ID       int64
	Name     string
	Price    float64
	IsActive bool
}

// TxRepository is the transactional write surface for one order. Stock
// returns a recorder bound to the same transaction so sale and return
// movements commit or roll back together with the order rows.
type TxRepository interface {
	InsertOrder(ctx context.Context, o *Order) error
	InsertItem(ctx context.Context, it *OrderItem) error
	UpdateTotals(ctx context.Context, orderID int64, t Totals, discount float64) error
	UpdateStatus(ctx context.Context, orderID int64, from, to OrderStatus) error
	GetForUpdate(ctx context.Context, orderID int64) (*Order, error)
	GetItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	GetProductForSale(ctx context.Context, productID int64) (*SaleProduct, error)
	Stock() stock.TxRecorder
}

// RepositoryPort is the read and transaction surface the service uses.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(TxRepository) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	List(ctx context.Context, f ListOrdersRequest) ([]Order, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txRepository{tx: tx, stock: stock.NewTxRecorder(tx)}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const orderColumns = `
	o.id, o.order_number, o.customer_id, c.name, o.cashier_id, o.status,
	o.subtotal, o.discount_amount, o.tax_amount, o.total_amount, o.notes,
	o.created_at, o.updated_at
`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName, &o.CashierID, &o.Status,
		&o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.TotalAmount, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		LEFT JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1`, id))
	if err != nil {
		return nil, err
	}
	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *Repository) GetByNumber(ctx context.Context, number string) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		LEFT JOIN customers c ON c.id = o.customer_id
		WHERE o.order_number = $1`, number))
	if err != nil {
		return nil, err
	}
	items, err := r.listItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *Repository) List(ctx context.Context, f ListOrdersRequest) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, "o.status = $"+strconv.Itoa(len(args)))
	}
	if f.CustomerID > 0 {
		args = append(args, f.CustomerID)
		where = append(where, "o.customer_id = $"+strconv.Itoa(len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, "o.order_number ILIKE $"+strconv.Itoa(len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, "o.created_at >= $"+strconv.Itoa(len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where = append(where, "o.created_at < $"+strconv.Itoa(len(args)))
	}

	q := `SELECT ` + orderColumns + `
		FROM orders o
		LEFT JOIN customers c ON c.id = o.customer_id`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY o.created_at DESC, o.id DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	q += " LIMIT $" + strconv.Itoa(len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := make([]Order, 0, limit)
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName, &o.CashierID, &o.Status,
			&o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.TotalAmount, &o.Notes,
			&o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repository) listItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	return listItems(ctx, r.pool, orderID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q querier, orderID int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, p.name, i.quantity, i.unit_price, i.discount, i.total_price
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1
		ORDER BY i.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.Discount, &it.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx    pgx.Tx
	stock stock.TxRecorder
}

func (t *txRepository) Stock() stock.TxRecorder { return t.stock }

func (t *txRepository) InsertOrder(ctx context.Context, o *Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (order_number, customer_id, cashier_id, status, subtotal, discount_amount, tax_amount, total_amount, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING id, created_at, updated_at`,
		o.OrderNumber, o.CustomerID, o.CashierID, o.Status,
		o.Subtotal, o.DiscountAmount, o.TaxAmount, o.TotalAmount, o.Notes,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateNumber
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *txRepository) InsertItem(ctx context.Context, it *OrderItem) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price, discount, total_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		it.OrderID, it.ProductID, it.Quantity, it.UnitPrice, it.Discount, it.TotalPrice,
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateTotals(ctx context.Context, orderID int64, totals Totals, discount float64) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET subtotal = $2, tax_amount = $3, total_amount = $4, discount_amount = $5, updated_at = now()
		WHERE id = $1`,
		orderID, totals.Subtotal, totals.Tax, totals.Total, discount)
	if err != nil {
		return fmt.Errorf("update order totals: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus moves an order between statuses. The WHERE clause pins
// the expected current status so a concurrent transition loses cleanly.
func (t *txRepository) UpdateStatus(ctx context.Context, orderID int64, from, to OrderStatus) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`,
		orderID, from, to)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (t *txRepository) GetForUpdate(ctx context.Context, orderID int64) (*Order, error) {
	var o Order
	err := t.tx.QueryRow(ctx, `
		SELECT id, order_number, customer_id, cashier_id, status,
		       subtotal, discount_amount, tax_amount, total_amount, notes,
		       created_at, updated_at
		FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.CashierID, &o.Status,
		&o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.TotalAmount, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return &o, nil
}

func (t *txRepository) GetItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	return listItems(ctx, t.tx, orderID)
}

// GetProductForSale locks the product row and snapshots the fields a
// line needs. The lock also covers the stock update that follows.
func (t *txRepository) GetProductForSale(ctx context.Context, productID int64) (*SaleProduct, error) {
	var p SaleProduct
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, price, is_active
		FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&p.ID, &p.Name, &p.Price, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductUnavailable
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return &p, nil
}
