package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/orders"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/payments/daraja"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/platform/httpx"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/shared"
)

// Gateway is the slice of the Daraja client the service uses. Tests
// substitute a fake.
type Gateway interface {
	STKPush(ctx context.Context, phone string, amount int, accountRef, description string) (*daraja.STKPushResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*daraja.QueryResponse, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service settles money against orders. An order completes exactly
// when its completed payments cover the total; partial or failed
// tenders leave it pending.
type Service struct {
	repo    RepositoryPort
	gateway Gateway
	audit   AuditPort
	reports ReportInvalidator
	logger  *slog.Logger
}

// ReportInvalidator drops cached dashboards once an order settles, so
// the next read reflects the new revenue. Optional.
type ReportInvalidator interface {
	InvalidateToday(ctx context.Context) error
}

// NewService builds a Service. reports may be nil.
func NewService(repo RepositoryPort, gateway Gateway, audit AuditPort, reports ReportInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, gateway: gateway, audit: audit, reports: reports, logger: logger}
}

func (s *Service) invalidateReports(ctx context.Context) {
	if s.reports == nil {
		return
	}
	if err := s.reports.InvalidateToday(ctx); err != nil {
		s.logger.Warn("invalidate dashboard cache", slog.Any("error", err))
	}
}

// PayCash records a cash tender. Only the outstanding balance counts
// toward the order; any excess comes straight back as change. An
// under-tender records a partial payment and leaves the order pending.
func (s *Service) PayCash(ctx context.Context, op shared.Operator, req CashPaymentRequest) (*CashResult, error) {
	var result CashResult
	err := s.repo.WithTx(ctx, func(tp TxPayments) error {
		order, err := tp.GetOrderForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if order.Status != orders.OrderStatusPending {
			return fmt.Errorf("%w: order %s is %s", ErrOrderNotPayable, order.OrderNumber, order.Status)
		}

		paid, err := tp.SumCompleted(ctx, req.OrderID)
		if err != nil {
			return err
		}
		// A fully discounted or already covered order has nothing due;
		// the tender comes straight back as change.
		outstanding := math.Max(0, orders.Round2(order.TotalAmount-paid))

		applied := math.Min(req.AmountTendered, outstanding)
		change := math.Max(0, orders.Round2(req.AmountTendered-outstanding))

		p := &Payment{
			OrderID:        req.OrderID,
			Method:         MethodCash,
			Status:         StatusCompleted,
			Amount:         orders.Round2(applied),
			AmountTendered: req.AmountTendered,
			ChangeAmount:   change,
			CreatedBy:      op.ID,
		}
		if err := tp.InsertPayment(ctx, p); err != nil {
			return err
		}

		remaining := orders.Round2(outstanding - applied)
		result = CashResult{Payment: p, ChangeDue: change, Outstanding: remaining}
		if remaining <= 0 {
			if err := tp.CompleteOrder(ctx, req.OrderID); err != nil {
				return err
			}
			result.OrderCompleted = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.OrderCompleted {
		s.invalidateReports(ctx)
	}
	s.recordAudit(ctx, op.ID, "payment:cash", result.Payment.ID, map[string]any{
		"order_id":        req.OrderID,
		"amount":          result.Payment.Amount,
		"change":          result.ChangeDue,
		"order_completed": result.OrderCompleted,
	})
	return &result, nil
}

// InitiateSTK pushes an M-Pesa prompt for the order's outstanding
// balance. The gateway call happens outside any transaction; a pending
// payment row is written only once Daraja accepts the push.
func (s *Service) InitiateSTK(ctx context.Context, op shared.Operator, req STKPushRequest) (*Payment, error) {
	order, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != orders.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %s is %s", ErrOrderNotPayable, order.OrderNumber, order.Status)
	}

	phone := daraja.NormalizePhone(req.PhoneNumber)
	amount := int(math.Ceil(order.TotalAmount))

	resp, err := s.gateway.STKPush(ctx, phone, amount, order.OrderNumber, "Payment for order "+order.OrderNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrGateway, err)
	}
	if resp.ResponseCode != "0" {
		return nil, fmt.Errorf("%w: %s (%s)", ErrPushRejected, resp.ResponseDescription, resp.ResponseCode)
	}

	p := &Payment{
		OrderID:           req.OrderID,
		Method:            MethodMpesa,
		Status:            StatusPending,
		Amount:            float64(amount),
		PhoneNumber:       phone,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CreatedBy:         op.ID,
	}
	err = s.repo.WithTx(ctx, func(tp TxPayments) error {
		return tp.InsertPayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, op.ID, "payment:stk_push", p.ID, map[string]any{
		"order_id":            req.OrderID,
		"checkout_request_id": p.CheckoutRequestID,
		"amount":              p.Amount,
	})
	return p, nil
}

// ConfirmCallback applies an asynchronous Daraja result. Unknown
// checkout ids and repeated deliveries are ignored; the handler always
// acknowledges so Safaricom stops retrying.
func (s *Service) ConfirmCallback(ctx context.Context, cb daraja.STKCallback) error {
	if cb.CheckoutRequestID == "" {
		s.logger.Warn("mpesa callback missing checkout_request_id")
		return nil
	}

	orderCompleted := false
	err := s.repo.WithTx(ctx, func(tp TxPayments) error {
		p, err := tp.GetByCheckoutIDForUpdate(ctx, cb.CheckoutRequestID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.logger.Warn("mpesa callback for unknown payment",
					slog.String("checkout_request_id", cb.CheckoutRequestID))
				return nil
			}
			return err
		}
		if p.Status != StatusPending {
			// Duplicate delivery; already settled.
			return nil
		}

		if cb.ResultCode != 0 {
			return tp.UpdateStatus(ctx, p.ID, StatusPending, StatusFailed, ReceiptUpdate{
				ResultDescription: cb.ResultDesc,
			})
		}

		receipt := cb.ParseReceipt()
		update := ReceiptUpdate{
			Amount:             receipt.Amount,
			MpesaReceiptNumber: receipt.MpesaReceiptNumber,
			ResultDescription:  cb.ResultDesc,
		}
		if !receipt.TransactionDate.IsZero() {
			t := receipt.TransactionDate
			update.TransactionDate = &t
		}
		if err := tp.UpdateStatus(ctx, p.ID, StatusPending, StatusCompleted, update); err != nil {
			return err
		}
		orderCompleted, err = s.reconcileOrder(ctx, tp, p.OrderID)
		return err
	})
	if err != nil {
		return err
	}

	if orderCompleted {
		s.invalidateReports(ctx)
	}
	s.recordAudit(ctx, 0, "payment:callback", 0, map[string]any{
		"checkout_request_id": cb.CheckoutRequestID,
		"result_code":         cb.ResultCode,
	})
	return nil
}

// reconcileOrder completes the order once completed payments cover the
// total. Called with the order's payments already settled in tp.
// Reports whether this call completed the order.
func (s *Service) reconcileOrder(ctx context.Context, tp TxPayments, orderID int64) (bool, error) {
	order, err := tp.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.Status != orders.OrderStatusPending {
		return false, nil
	}
	paid, err := tp.SumCompleted(ctx, orderID)
	if err != nil {
		return false, err
	}
	if paid >= order.TotalAmount {
		if err := tp.CompleteOrder(ctx, orderID); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// QueryStatus asks Daraja directly for the state of a push.
func (s *Service) QueryStatus(ctx context.Context, checkoutRequestID string) (*daraja.QueryResponse, error) {
	resp, err := s.gateway.QueryStatus(ctx, checkoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrGateway, err)
	}
	return resp, nil
}

// ReconcileStale sweeps pending M-Pesa payments whose callback never
// arrived, resolving each against a Daraja status query. Returns how
// many payments were settled either way.
func (s *Service) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := s.repo.ListStalePending(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range stale {
		resp, err := s.gateway.QueryStatus(ctx, p.CheckoutRequestID)
		if err != nil {
			s.logger.Warn("stale payment query failed",
				slog.Int64("payment_id", p.ID), slog.Any("error", err))
			continue
		}

		cb := daraja.STKCallback{
			CheckoutRequestID: p.CheckoutRequestID,
			ResultDesc:        resp.ResultDesc,
			ResultCode:        1,
		}
		if resp.ResultCode == "0" {
			cb.ResultCode = 0
		}
		if err := s.ConfirmCallback(ctx, cb); err != nil {
			s.logger.Error("stale payment reconcile failed",
				slog.Int64("payment_id", p.ID), slog.Any("error", err))
			continue
		}
		settled++
	}
	return settled, nil
}

// Get fetches one payment.
func (s *Service) Get(ctx context.Context, id int64) (*Payment, error) {
	return s.repo.Get(ctx, id)
}

// ListByOrder lists the payments taken against an order.
func (s *Service) ListByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, paymentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment",
		EntityID: fmt.Sprintf("%d", paymentID),
		Meta:     meta,
	})
}
