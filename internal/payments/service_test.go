package payments

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/orders"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/payments/daraja"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockPayRepo struct {
	mu       sync.Mutex
	orders   map[int64]*PayableOrder
	payments map[int64]*Payment
	nextID   int64
}

func newMockPayRepo() *mockPayRepo {
	return &mockPayRepo{
		orders:   make(map[int64]*PayableOrder),
		payments: make(map[int64]*Payment),
		nextID:   1,
	}
}

func (m *mockPayRepo) addOrder(id int64, number string, total float64) {
	m.orders[id] = &PayableOrder{ID: id, OrderNumber: number, Status: orders.OrderStatusPending, TotalAmount: total}
}

func (m *mockPayRepo) WithTx(ctx context.Context, fn func(TxPayments) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&mockPayTx{repo: m})
}

func (m *mockPayRepo) Get(ctx context.Context, id int64) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPayRepo) GetOrder(ctx context.Context, orderID int64) (*PayableOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockPayRepo) ListByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Payment{}
	for _, p := range m.payments {
		if p.OrderID == orderID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockPayRepo) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Payment{}
	cutoff := time.Now().Add(-olderThan)
	for _, p := range m.payments {
		if p.Method == MethodMpesa && p.Status == StatusPending && p.CreatedAt.Before(cutoff) {
			out = append(out, *p)
		}
	}
	return out, nil
}

type mockPayTx struct {
	repo *mockPayRepo
}

func (t *mockPayTx) InsertPayment(ctx context.Context, p *Payment) error {
	p.ID = t.repo.nextID
	t.repo.nextID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	t.repo.payments[p.ID] = &cp
	return nil
}

func (t *mockPayTx) GetByCheckoutIDForUpdate(ctx context.Context, checkoutRequestID string) (*Payment, error) {
	for _, p := range t.repo.payments {
		if p.CheckoutRequestID == checkoutRequestID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (t *mockPayTx) GetForUpdate(ctx context.Context, id int64) (*Payment, error) {
	p, ok := t.repo.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *mockPayTx) UpdateStatus(ctx context.Context, id int64, from, to Status, receipt ReceiptUpdate) error {
	p, ok := t.repo.payments[id]
	if !ok || p.Status != from {
		return ErrAlreadySettled
	}
	p.Status = to
	if receipt.Amount > 0 {
		p.Amount = receipt.Amount
	}
	if receipt.MpesaReceiptNumber != "" {
		p.MpesaReceiptNumber = receipt.MpesaReceiptNumber
	}
	if receipt.ResultDescription != "" {
		p.ResultDescription = receipt.ResultDescription
	}
	if receipt.TransactionDate != nil {
		p.TransactionDate = receipt.TransactionDate
	}
	return nil
}

func (t *mockPayTx) GetOrderForUpdate(ctx context.Context, orderID int64) (*PayableOrder, error) {
	o, ok := t.repo.orders[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *mockPayTx) SumCompleted(ctx context.Context, orderID int64) (float64, error) {
	var sum float64
	for _, p := range t.repo.payments {
		if p.OrderID == orderID && p.Status == StatusCompleted {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (t *mockPayTx) CompleteOrder(ctx context.Context, orderID int64) error {
	o, ok := t.repo.orders[orderID]
	if !ok || o.Status != orders.OrderStatusPending {
		return orders.ErrInvalidTransition
	}
	o.Status = orders.OrderStatusCompleted
	return nil
}

type mockGateway struct {
	pushResp  *daraja.STKPushResponse
	pushErr   error
	queryResp *daraja.QueryResponse
	queryErr  error
	pushCalls int
}

func (g *mockGateway) STKPush(ctx context.Context, phone string, amount int, accountRef, description string) (*daraja.STKPushResponse, error) {
	g.pushCalls++
	return g.pushResp, g.pushErr
}

func (g *mockGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*daraja.QueryResponse, error) {
	return g.queryResp, g.queryErr
}

// ============================================================================
// TESTS
// ============================================================================

var till = shared.Operator{ID: 4, Name: "Till Two"}

func newPaymentsService(repo *mockPayRepo, gw Gateway) *Service {
	return NewService(repo, gw, nil, nil, slog.Default())
}

func TestPayCashExactCompletesOrder(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 707.60)
	svc := newPaymentsService(repo, &mockGateway{})

	res, err := svc.PayCash(context.Background(), till, CashPaymentRequest{OrderID: 1, AmountTendered: 707.60})
	require.NoError(t, err)

	assert.True(t, res.OrderCompleted)
	assert.Equal(t, 0.00, res.ChangeDue)
	assert.InDelta(t, 707.60, res.Payment.Amount, 0.001)
	assert.Equal(t, StatusCompleted, res.Payment.Status)
	assert.Equal(t, orders.OrderStatusCompleted, repo.orders[1].Status)
}

func TestPayCashOverTenderReturnsChange(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 707.60)
	svc := newPaymentsService(repo, &mockGateway{})

	res, err := svc.PayCash(context.Background(), till, CashPaymentRequest{OrderID: 1, AmountTendered: 800.00})
	require.NoError(t, err)

	assert.InDelta(t, 92.40, res.ChangeDue, 0.001)
	assert.InDelta(t, 707.60, res.Payment.Amount, 0.001)
	assert.InDelta(t, 800.00, res.Payment.AmountTendered, 0.001)
	assert.True(t, res.OrderCompleted)
}

func TestPayCashUnderTenderLeavesOrderPending(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 500.00)
	svc := newPaymentsService(repo, &mockGateway{})

	res, err := svc.PayCash(context.Background(), till, CashPaymentRequest{OrderID: 1, AmountTendered: 300.00})
	require.NoError(t, err)

	assert.False(t, res.OrderCompleted)
	assert.Equal(t, 0.00, res.ChangeDue)
	assert.InDelta(t, 300.00, res.Payment.Amount, 0.001)
	assert.InDelta(t, 200.00, res.Outstanding, 0.001)
	assert.Equal(t, orders.OrderStatusPending, repo.orders[1].Status)

	// Second tender settles the balance.
	res, err = svc.PayCash(context.Background(), till, CashPaymentRequest{OrderID: 1, AmountTendered: 250.00})
	require.NoError(t, err)
	assert.True(t, res.OrderCompleted)
	assert.InDelta(t, 50.00, res.ChangeDue, 0.001)
	assert.InDelta(t, 200.00, res.Payment.Amount, 0.001)
	assert.Equal(t, orders.OrderStatusCompleted, repo.orders[1].Status)
}

func TestPayCashZeroTotalOrderCompletes(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 0.00)
	svc := newPaymentsService(repo, &mockGateway{})

	res, err := svc.PayCash(context.Background(), till, CashPaymentRequest{OrderID: 1, AmountTendered: 0})
	require.NoError(t, err)
	require.NotNil(t, res.Payment)

	assert.True(t, res.OrderCompleted)
	assert.Equal(t, 0.00, res.Payment.Amount)
	assert.Equal(t, 0.00, res.ChangeDue)
	assert.Equal(t, StatusCompleted, res.Payment.Status)
	assert.Equal(t, orders.OrderStatusCompleted, repo.orders[1].Status)
}

func TestPayCashNothingDueReturnsFullTender(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 500.00)
	svc := newPaymentsService(repo, &mockGateway{})

	// Order already covered by a prior tender but never settled.
	_, err := svc.PayCash(context.Background(), till, CashPaymentRequest{OrderID: 1, AmountTendered: 500.00})
	require.NoError(t, err)
	repo.orders[1].Status = orders.OrderStatusPending

	res, err := svc.PayCash(context.Background(), till, CashPaymentRequest{OrderID: 1, AmountTendered: 200.00})
	require.NoError(t, err)
	require.NotNil(t, res.Payment)

	assert.True(t, res.OrderCompleted)
	assert.Equal(t, 0.00, res.Payment.Amount)
	assert.InDelta(t, 200.00, res.ChangeDue, 0.001)
	assert.Equal(t, orders.OrderStatusCompleted, repo.orders[1].Status)
}

func TestPayCashRejectsSettledOrder(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 100.00)
	repo.orders[1].Status = orders.OrderStatusCompleted
	svc := newPaymentsService(repo, &mockGateway{})

	_, err := svc.PayCash(context.Background(), till, CashPaymentRequest{OrderID: 1, AmountTendered: 100.00})
	require.ErrorIs(t, err, ErrOrderNotPayable)
}

func TestInitiateSTKRecordsPendingPayment(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 707.60)
	gw := &mockGateway{pushResp: &daraja.STKPushResponse{
		ResponseCode:      "0",
		CheckoutRequestID: "ws_CO_1",
		MerchantRequestID: "mr_1",
	}}
	svc := newPaymentsService(repo, gw)

	p, err := svc.InitiateSTK(context.Background(), till, STKPushRequest{OrderID: 1, PhoneNumber: "0712345678"})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "ws_CO_1", p.CheckoutRequestID)
	assert.Equal(t, "254712345678", p.PhoneNumber)
	assert.InDelta(t, 708.00, p.Amount, 0.001)
	assert.Equal(t, orders.OrderStatusPending, repo.orders[1].Status)
}

func TestInitiateSTKRejectedPushWritesNothing(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 500.00)
	gw := &mockGateway{pushResp: &daraja.STKPushResponse{
		ResponseCode:        "1",
		ResponseDescription: "Insufficient balance on shortcode",
	}}
	svc := newPaymentsService(repo, gw)

	_, err := svc.InitiateSTK(context.Background(), till, STKPushRequest{OrderID: 1, PhoneNumber: "0712345678"})
	require.ErrorIs(t, err, ErrPushRejected)
	assert.Empty(t, repo.payments)
}

func seedPendingMpesa(repo *mockPayRepo, orderID int64, checkoutID string, amount float64) *Payment {
	p := &Payment{
		ID:                repo.nextID,
		OrderID:           orderID,
		Method:            MethodMpesa,
		Status:            StatusPending,
		Amount:            amount,
		CheckoutRequestID: checkoutID,
		CreatedAt:         time.Now().Add(-10 * time.Minute),
	}
	repo.payments[p.ID] = p
	repo.nextID++
	return p
}

func successCallback(checkoutID, receipt string, amount float64) daraja.STKCallback {
	return daraja.STKCallback{
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		CallbackMetadata: &daraja.CallbackMeta{Item: []daraja.MetadataItem{
			{Name: "Amount", Value: amount},
			{Name: "MpesaReceiptNumber", Value: receipt},
			{Name: "TransactionDate", Value: float64(20250314092653)},
			{Name: "PhoneNumber", Value: float64(254712345678)},
		}},
	}
}

func TestConfirmCallbackCompletesPaymentAndOrder(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 708.00)
	seedPendingMpesa(repo, 1, "ws_CO_1", 708.00)
	svc := newPaymentsService(repo, &mockGateway{})

	err := svc.ConfirmCallback(context.Background(), successCallback("ws_CO_1", "SAF12345", 708.00))
	require.NoError(t, err)

	p := repo.payments[1]
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, "SAF12345", p.MpesaReceiptNumber)
	require.NotNil(t, p.TransactionDate)
	assert.Equal(t, 2025, p.TransactionDate.Year())
	assert.Equal(t, orders.OrderStatusCompleted, repo.orders[1].Status)
}

func TestConfirmCallbackDuplicateDeliveryIsIdempotent(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 708.00)
	seedPendingMpesa(repo, 1, "ws_CO_1", 708.00)
	svc := newPaymentsService(repo, &mockGateway{})

	cb := successCallback("ws_CO_1", "SAF12345", 708.00)
	require.NoError(t, svc.ConfirmCallback(context.Background(), cb))
	require.NoError(t, svc.ConfirmCallback(context.Background(), cb))
	require.NoError(t, svc.ConfirmCallback(context.Background(), cb))

	assert.Equal(t, StatusCompleted, repo.payments[1].Status)
	assert.Equal(t, orders.OrderStatusCompleted, repo.orders[1].Status)
	assert.Len(t, repo.payments, 1)
}

func TestConfirmCallbackUnknownCheckoutIgnored(t *testing.T) {
	repo := newMockPayRepo()
	svc := newPaymentsService(repo, &mockGateway{})

	err := svc.ConfirmCallback(context.Background(), successCallback("ws_CO_missing", "SAF1", 10))
	require.NoError(t, err)
	assert.Empty(t, repo.payments)
}

func TestConfirmCallbackFailureMarksPaymentFailed(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 708.00)
	seedPendingMpesa(repo, 1, "ws_CO_1", 708.00)
	svc := newPaymentsService(repo, &mockGateway{})

	err := svc.ConfirmCallback(context.Background(), daraja.STKCallback{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	})
	require.NoError(t, err)

	p := repo.payments[1]
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, "Request cancelled by user", p.ResultDescription)
	assert.Equal(t, orders.OrderStatusPending, repo.orders[1].Status)
}

type mockInvalidator struct {
	calls int
}

func (m *mockInvalidator) InvalidateToday(ctx context.Context) error {
	m.calls++
	return nil
}

func TestPayCashCompletionInvalidatesDashboard(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 500.00)
	inv := &mockInvalidator{}
	svc := NewService(repo, &mockGateway{}, nil, inv, slog.Default())

	// A partial tender leaves the order open and the cache alone.
	_, err := svc.PayCash(context.Background(), till, CashPaymentRequest{OrderID: 1, AmountTendered: 200.00})
	require.NoError(t, err)
	assert.Equal(t, 0, inv.calls)

	_, err = svc.PayCash(context.Background(), till, CashPaymentRequest{OrderID: 1, AmountTendered: 300.00})
	require.NoError(t, err)
	assert.Equal(t, 1, inv.calls)
}

func TestConfirmCallbackCompletionInvalidatesDashboard(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 708.00)
	seedPendingMpesa(repo, 1, "ws_CO_1", 708.00)
	inv := &mockInvalidator{}
	svc := NewService(repo, &mockGateway{}, nil, inv, slog.Default())

	cb := successCallback("ws_CO_1", "SAF12345", 708.00)
	require.NoError(t, svc.ConfirmCallback(context.Background(), cb))
	assert.Equal(t, 1, inv.calls)

	// Redelivery of the same callback must not flush the cache again.
	require.NoError(t, svc.ConfirmCallback(context.Background(), cb))
	assert.Equal(t, 1, inv.calls)
}

func TestReconcileStaleSettlesViaQuery(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 708.00)
	seedPendingMpesa(repo, 1, "ws_CO_1", 708.00)
	gw := &mockGateway{queryResp: &daraja.QueryResponse{ResultCode: "0", ResultDesc: "Processed"}}
	svc := newPaymentsService(repo, gw)

	settled, err := svc.ReconcileStale(context.Background(), 5*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, StatusCompleted, repo.payments[1].Status)
	assert.Equal(t, orders.OrderStatusCompleted, repo.orders[1].Status)
}

func TestReconcileStaleMarksCancelledFailed(t *testing.T) {
	repo := newMockPayRepo()
	repo.addOrder(1, "MNG1", 708.00)
	seedPendingMpesa(repo, 1, "ws_CO_1", 708.00)
	gw := &mockGateway{queryResp: &daraja.QueryResponse{ResultCode: "1032", ResultDesc: "Request cancelled by user"}}
	svc := newPaymentsService(repo, gw)

	settled, err := svc.ReconcileStale(context.Background(), 5*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, StatusFailed, repo.payments[1].Status)
	assert.Equal(t, orders.OrderStatusPending, repo.orders[1].Status)
}

func TestPaymentStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusCompleted))
	assert.True(t, CanTransition(StatusPending, StatusFailed))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusCompleted, StatusRefunded))
	assert.False(t, CanTransition(StatusCancelled, StatusCompleted))
	assert.False(t, CanTransition(StatusFailed, StatusCompleted))
	assert.False(t, CanTransition(StatusCompleted, StatusPending))
	assert.False(t, CanTransition(StatusRefunded, StatusCompleted))
}
