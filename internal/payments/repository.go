package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/orders"
)

// PayableOrder is the slice of an order the reconciler needs.
type PayableOrder struct {
	ID          int64
	OrderNumber string
	Status      orders.OrderStatus
	TotalAmount float64
}

// TxPayments is the transactional surface used while settling money.
type TxPayments interface {
	InsertPayment(ctx context.Context, p *Payment) error
	GetByCheckoutIDForUpdate(ctx context.Context, checkoutRequestID string) (*Payment, error)
	GetForUpdate(ctx context.Context, id int64) (*Payment, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status, receipt ReceiptUpdate) error
	GetOrderForUpdate(ctx context.Context, orderID int64) (*PayableOrder, error)
	SumCompleted(ctx context.Context, orderID int64) (float64, error)
	CompleteOrder(ctx context.Context, orderID int64) error
}

// ReceiptUpdate carries settlement details written alongside a status
// change. Zero-value fields are left untouched.
type ReceiptUpdate struct {
	Amount             float64
	MpesaReceiptNumber string
	ResultDescription  string
	TransactionDate    *time.Time
}

// RepositoryPort abstracts payment persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(TxPayments) error) error
	Get(ctx context.Context, id int64) (*Payment, error)
	GetOrder(ctx context.Context, orderID int64) (*PayableOrder, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Payment, error)
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]Payment, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(TxPayments) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txPayments{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const paymentColumns = `
	id, order_id, method, status, amount, amount_tendered, change_amount,
	COALESCE(phone_number, ''), COALESCE(mpesa_receipt_number, ''),
	COALESCE(checkout_request_id, ''), COALESCE(merchant_request_id, ''),
	COALESCE(result_description, ''), transaction_date,
	COALESCE(created_by, 0), created_at, updated_at
`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Method, &p.Status, &p.Amount, &p.AmountTendered, &p.ChangeAmount,
		&p.PhoneNumber, &p.MpesaReceiptNumber,
		&p.CheckoutRequestID, &p.MerchantRequestID,
		&p.ResultDescription, &p.TransactionDate,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *Repository) GetOrder(ctx context.Context, orderID int64) (*PayableOrder, error) {
	var o PayableOrder
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_number, status, total_amount FROM orders WHERE id = $1`, orderID).
		Scan(&o.ID, &o.OrderNumber, &o.Status, &o.TotalAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, orders.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

// ListStalePending returns pending M-Pesa payments whose push went out
// longer ago than olderThan. The reconciliation job queries Daraja for
// their real outcome.
func (r *Repository) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE method = 'mpesa' AND status = 'pending' AND created_at < now() - $1::interval
		ORDER BY created_at LIMIT $2`,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]Payment, error) {
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(
			&p.ID, &p.OrderID, &p.Method, &p.Status, &p.Amount, &p.AmountTendered, &p.ChangeAmount,
			&p.PhoneNumber, &p.MpesaReceiptNumber,
			&p.CheckoutRequestID, &p.MerchantRequestID,
			&p.ResultDescription, &p.TransactionDate,
			&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type txPayments struct {
	tx pgx.Tx
}

func (t *txPayments) InsertPayment(ctx context.Context, p *Payment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO payments (order_id, method, status, amount, amount_tendered, change_amount,
			phone_number, checkout_request_id, merchant_request_id, result_description,
			created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, 0), now(), now())
		RETURNING id, created_at, updated_at`,
		p.OrderID, p.Method, p.Status, p.Amount, p.AmountTendered, p.ChangeAmount,
		p.PhoneNumber, p.CheckoutRequestID, p.MerchantRequestID, p.ResultDescription,
		p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByCheckoutIDForUpdate locks the payment matching a Daraja
// checkout request so concurrent callback deliveries serialize.
func (t *txPayments) GetByCheckoutIDForUpdate(ctx context.Context, checkoutRequestID string) (*Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE checkout_request_id = $1 FOR UPDATE`,
		checkoutRequestID))
}

func (t *txPayments) GetForUpdate(ctx context.Context, id int64) (*Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

// UpdateStatus moves a payment between statuses, pinning the expected
// current status so a lost race surfaces as ErrAlreadySettled.
func (t *txPayments) UpdateStatus(ctx context.Context, id int64, from, to Status, receipt ReceiptUpdate) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE payments SET status = $3,
			amount = CASE WHEN $4::numeric > 0 THEN $4 ELSE amount END,
			mpesa_receipt_number = COALESCE(NULLIF($5, ''), mpesa_receipt_number),
			result_description = COALESCE(NULLIF($6, ''), result_description),
			transaction_date = COALESCE($7, transaction_date),
			updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, from, to, receipt.Amount, receipt.MpesaReceiptNumber, receipt.ResultDescription, receipt.TransactionDate)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAlreadySettled
	}
	return nil
}

func (t *txPayments) GetOrderForUpdate(ctx context.Context, orderID int64) (*PayableOrder, error) {
	var o PayableOrder
	err := t.tx.QueryRow(ctx,
		`SELECT id, order_number, status, total_amount FROM orders WHERE id = $1 FOR UPDATE`, orderID).
		Scan(&o.ID, &o.OrderNumber, &o.Status, &o.TotalAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, orders.ErrNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return &o, nil
}

func (t *txPayments) SumCompleted(ctx context.Context, orderID int64) (float64, error) {
	var sum float64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE order_id = $1 AND status = 'completed'`,
		orderID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	return sum, nil
}

func (t *txPayments) CompleteOrder(ctx context.Context, orderID int64) error {
	ct, err := t.tx.Exec(ctx,
		`UPDATE orders SET status = 'completed', updated_at = now() WHERE id = $1 AND status = 'pending'`,
		orderID)
	if err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrInvalidTransition
	}
	return nil
}
