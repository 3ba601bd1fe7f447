package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/shared"
)

// RepositoryPort abstracts repository usage for the ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRecorder) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LedgerConfig groups optional settings.
type LedgerConfig struct {
	// AllowNegativeStock permits overselling. The store historically
	// ran this way; flip via ALLOW_NEGATIVE_STOCK to enforce a floor.
	AllowNegativeStock bool
}

// Ledger is the sole mutation path for product stock. Every change
// reads the current quantity, writes the new one, and appends a
// movement, all in one transaction.
type Ledger struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	allowNeg    bool
}

// NewLedger builds a Ledger.
func NewLedger(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cfg LedgerConfig) *Ledger {
	return &Ledger{repo: repo, audit: audit, idempotency: idem, allowNeg: cfg.AllowNegativeStock}
}

// RecordIn posts a movement using a recorder bound to the caller's
// transaction. Order creation and cancellation use this so stock
// changes commit or roll back with the order itself.
func (l *Ledger) RecordIn(ctx context.Context, rec TxRecorder, input RecordInput) (Movement, error) {
	if input.Delta == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if input.ProductID <= 0 {
		return Movement{}, ErrProductNotFound
	}
	prev, err := rec.GetStockForUpdate(ctx, input.ProductID)
	if err != nil {
		return Movement{}, err
	}
	next := prev + input.Delta
	if !l.allowNeg && next < 0 {
		return Movement{}, fmt.Errorf("%w: product %d has %d on hand", ErrNegativeStock, input.ProductID, prev)
	}
	if err := rec.SetStock(ctx, input.ProductID, next); err != nil {
		return Movement{}, err
	}
	m := Movement{
		ProductID:     input.ProductID,
		Type:          input.Type,
		Quantity:      input.Delta,
		PreviousStock: prev,
		NewStock:      next,
		Reference:     input.Reference,
		CreatedBy:     input.ActorID,
	}
	id, err := rec.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	m.ID = id
	return m, nil
}

// Record posts a movement in its own transaction.
func (l *Ledger) Record(ctx context.Context, input RecordInput) (Movement, error) {
	var m Movement
	err := l.repo.WithTx(ctx, func(ctx context.Context, rec TxRecorder) error {
		var err error
		m, err = l.RecordIn(ctx, rec, input)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	return m, nil
}

// Adjust posts a manual correction. A client-supplied code makes the
// call idempotent against retries.
func (l *Ledger) Adjust(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.Quantity == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	movementType := input.Type
	if movementType == "" {
		movementType = MovementAdjustment
	}
	if movementType != MovementAdjustment && movementType != MovementRestock {
		return Movement{}, fmt.Errorf("stock: %s movements are posted by the order engine", movementType)
	}

	insertedKey := false
	if l.idempotency != nil && input.Code != "" {
		key := fmt.Sprintf("adjust:%s:%d", input.Code, input.ProductID)
		if err := l.idempotency.CheckAndInsert(ctx, key, "stock"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}

	m, err := l.Record(ctx, RecordInput{
		ProductID: input.ProductID,
		Type:      movementType,
		Delta:     input.Quantity,
		Reference: input.Reason,
		ActorID:   input.ActorID,
	})
	if err != nil {
		if insertedKey {
			_ = l.idempotency.Delete(ctx, fmt.Sprintf("adjust:%s:%d", input.Code, input.ProductID))
		}
		return Movement{}, err
	}

	if l.audit != nil {
		_ = l.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("stock:%s", movementType),
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%d", m.ID),
			Meta: map[string]any{
				"product_id": input.ProductID,
				"quantity":   input.Quantity,
				"reason":     input.Reason,
			},
		})
	}
	return m, nil
}

// ListMovements lists the audit trail.
func (l *Ledger) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ProductID < 0 {
		return nil, errors.New("stock: invalid product filter")
	}
	return l.repo.ListMovements(ctx, filter)
}
