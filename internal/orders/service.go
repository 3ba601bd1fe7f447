package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/shared"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/stock"
)

// maxNumberAttempts bounds order number regeneration. A unique
// violation aborts the whole transaction, so each attempt starts a
// fresh one with a fresh number.
const maxNumberAttempts = 5

// ErrEmptyOrder indicates an order with no valid lines.
var ErrEmptyOrder = errors.New("order has no items")

// ErrExcessiveDiscount indicates an order-level discount larger than
// subtotal plus tax, which would drive the total negative.
var ErrExcessiveDiscount = errors.New("discount exceeds order total")

// ServiceConfig carries store policy for the order engine.
type ServiceConfig struct {
	// TaxRate is the fraction of the subtotal charged as tax.
	TaxRate float64
}

// Service implements order creation, cancellation and reads. Stock
// side effects go through the ledger inside the order's own
// transaction; an order never commits with its movements missing.
type Service struct {
	repo   RepositoryPort
	ledger *stock.Ledger
	audit  stock.AuditPort
	cfg    ServiceConfig
	now    func() time.Time
}

// NewService builds a Service.
func NewService(repo RepositoryPort, ledger *stock.Ledger, audit stock.AuditPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, ledger: ledger, audit: audit, cfg: cfg, now: time.Now}
}

// Create opens a new pending order. Lines without an explicit unit
// price are snapshotted from the catalog at this moment, and each line
// posts a sale movement.
func (s *Service) Create(ctx context.Context, op shared.Operator, req CreateOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	var created *Order
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number, err := NewOrderNumber(s.now())
		if err != nil {
			return nil, err
		}

		err = s.repo.WithTx(ctx, func(tr TxRepository) error {
			items := make([]OrderItem, 0, len(req.Items))
			for _, line := range req.Items {
				p, err := tr.GetProductForSale(ctx, line.ProductID)
				if err != nil {
					return err
				}
				if !p.IsActive {
					return fmt.Errorf("%w: product %d is inactive", ErrProductUnavailable, p.ID)
				}
				unitPrice := p.Price
				if line.UnitPrice != nil {
					unitPrice = *line.UnitPrice
				}
				items = append(items, OrderItem{
					ProductID:   p.ID,
					ProductName: p.Name,
					Quantity:    line.Quantity,
					UnitPrice:   unitPrice,
					Discount:    line.Discount,
					TotalPrice:  LineTotal(unitPrice, line.Quantity, line.Discount),
				})
			}

			totals := ComputeTotals(items, s.cfg.TaxRate, req.DiscountAmount)
			if totals.Total < 0 {
				return fmt.Errorf("%w: discount %.2f against %.2f", ErrExcessiveDiscount,
					req.DiscountAmount, Round2(totals.Subtotal+totals.Tax))
			}
			order := &Order{
				OrderNumber:    number,
				CustomerID:     req.CustomerID,
				CashierID:      op.ID,
				Status:         OrderStatusPending,
				Subtotal:       totals.Subtotal,
				DiscountAmount: req.DiscountAmount,
				TaxAmount:      totals.Tax,
				TotalAmount:    totals.Total,
				Notes:          req.Notes,
			}
			if err := tr.InsertOrder(ctx, order); err != nil {
				return err
			}
			for i := range items {
				items[i].OrderID = order.ID
				if err := tr.InsertItem(ctx, &items[i]); err != nil {
					return err
				}
				_, err := s.ledger.RecordIn(ctx, tr.Stock(), stock.RecordInput{
					ProductID: items[i].ProductID,
					Type:      stock.MovementSale,
					Delta:     -items[i].Quantity,
					Reference: number,
					ActorID:   op.ID,
				})
				if err != nil {
					return err
				}
			}
			order.Items = items
			created = order
			return nil
		})
		if errors.Is(err, ErrDuplicateNumber) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.recordAudit(ctx, op.ID, "order:create", created.ID, map[string]any{
			"order_number": created.OrderNumber,
			"total_amount": created.TotalAmount,
			"items":        len(created.Items),
		})
		return created, nil
	}
	return nil, fmt.Errorf("order number: exhausted %d attempts: %w", maxNumberAttempts, ErrDuplicateNumber)
}

// Cancel voids a pending order and returns its stock. Completed orders
// cannot be cancelled; their goods have left the store.
func (s *Service) Cancel(ctx context.Context, op shared.Operator, orderID int64) (*Order, error) {
	err := s.repo.WithTx(ctx, func(tr TxRepository) error {
		order, err := tr.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, OrderStatusCancelled) {
			return fmt.Errorf("%w: %s order cannot be cancelled", ErrInvalidTransition, order.Status)
		}
		items, err := tr.GetItems(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			_, err := s.ledger.RecordIn(ctx, tr.Stock(), stock.RecordInput{
				ProductID: it.ProductID,
				Type:      stock.MovementReturn,
				Delta:     it.Quantity,
				Reference: order.OrderNumber,
				ActorID:   op.ID,
			})
			if err != nil {
				return err
			}
		}
		return tr.UpdateStatus(ctx, orderID, order.Status, OrderStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, op.ID, "order:cancel", orderID, nil)
	return s.repo.Get(ctx, orderID)
}

// RecalculateTotals rederives totals from the stored lines. Running it
// twice in a row is a no-op.
func (s *Service) RecalculateTotals(ctx context.Context, orderID int64) (*Order, error) {
	err := s.repo.WithTx(ctx, func(tr TxRepository) error {
		order, err := tr.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		items, err := tr.GetItems(ctx, orderID)
		if err != nil {
			return err
		}
		totals := ComputeTotals(items, s.cfg.TaxRate, order.DiscountAmount)
		return tr.UpdateTotals(ctx, orderID, totals, order.DiscountAmount)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

// Get fetches one order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber fetches one order by its public number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List lists orders matching the filter, newest first.
func (s *Service) List(ctx context.Context, f ListOrdersRequest) ([]Order, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}
