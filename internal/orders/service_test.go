package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/shared"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/stock"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockProduct struct {
	name   string
	price  float64
	active bool
	stock  int
}

type mockRepository struct {
	mu sync.Mutex

	orders      map[int64]*Order
	byNumber    map[string]int64
	items       map[int64][]OrderItem
	products    map[int64]*mockProduct
	movements   []stock.Movement
	nextOrderID int64
	nextItemID  int64
	nextMoveID  int64

	// Error injection
	duplicateInserts int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		orders:      make(map[int64]*Order),
		byNumber:    make(map[string]int64),
		items:       make(map[int64][]OrderItem),
		products:    make(map[int64]*mockProduct),
		nextOrderID: 1,
		nextItemID:  1,
		nextMoveID:  1,
	}
}

func (m *mockRepository) addProduct(id int64, name string, price float64, qty int) {
	m.products[id] = &mockProduct{name: name, price: price, active: true, stock: qty}
}

type repoState struct {
	orders    map[int64]*Order
	byNumber  map[string]int64
	items     map[int64][]OrderItem
	products  map[int64]*mockProduct
	movements []stock.Movement
	nextOrder int64
	nextItem  int64
	nextMove  int64
}

func (m *mockRepository) snapshot() repoState {
	s := repoState{
		orders:    make(map[int64]*Order, len(m.orders)),
		byNumber:  make(map[string]int64, len(m.byNumber)),
		items:     make(map[int64][]OrderItem, len(m.items)),
		products:  make(map[int64]*mockProduct, len(m.products)),
		movements: append([]stock.Movement(nil), m.movements...),
		nextOrder: m.nextOrderID,
		nextItem:  m.nextItemID,
		nextMove:  m.nextMoveID,
	}
	for id, o := range m.orders {
		cp := *o
		s.orders[id] = &cp
	}
	for n, id := range m.byNumber {
		s.byNumber[n] = id
	}
	for id, its := range m.items {
		s.items[id] = append([]OrderItem(nil), its...)
	}
	for id, p := range m.products {
		cp := *p
		s.products[id] = &cp
	}
	return s
}

func (m *mockRepository) restore(s repoState) {
	m.orders = s.orders
	m.byNumber = s.byNumber
	m.items = s.items
	m.products = s.products
	m.movements = s.movements
	m.nextOrderID = s.nextOrder
	m.nextItemID = s.nextItem
	m.nextMoveID = s.nextMove
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.snapshot()
	if err := fn(&mockTx{repo: m}); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = append([]OrderItem(nil), m.items[id]...)
	return &cp, nil
}

func (m *mockRepository) GetByNumber(ctx context.Context, number string) (*Order, error) {
	m.mu.Lock()
	id, ok := m.byNumber[number]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *mockRepository) List(ctx context.Context, f ListOrdersRequest) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Order{}
	for _, o := range m.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

type mockTx struct {
	repo *mockRepository
}

func (t *mockTx) Stock() stock.TxRecorder { return &mockRecorder{repo: t.repo} }

func (t *mockTx) InsertOrder(ctx context.Context, o *Order) error {
	if t.repo.duplicateInserts > 0 {
		t.repo.duplicateInserts--
		return ErrDuplicateNumber
	}
	if _, exists := t.repo.byNumber[o.OrderNumber]; exists {
		return ErrDuplicateNumber
	}
	o.ID = t.repo.nextOrderID
	t.repo.nextOrderID++
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	cp.Items = nil
	t.repo.orders[o.ID] = &cp
	t.repo.byNumber[o.OrderNumber] = o.ID
	return nil
}

func (t *mockTx) InsertItem(ctx context.Context, it *OrderItem) error {
	it.ID = t.repo.nextItemID
	t.repo.nextItemID++
	t.repo.items[it.OrderID] = append(t.repo.items[it.OrderID], *it)
	return nil
}

func (t *mockTx) UpdateTotals(ctx context.Context, orderID int64, totals Totals, discount float64) error {
	o, ok := t.repo.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Subtotal = totals.Subtotal
	o.TaxAmount = totals.Tax
	o.TotalAmount = totals.Total
	o.DiscountAmount = discount
	return nil
}

func (t *mockTx) UpdateStatus(ctx context.Context, orderID int64, from, to OrderStatus) error {
	o, ok := t.repo.orders[orderID]
	if !ok || o.Status != from {
		return ErrInvalidTransition
	}
	o.Status = to
	return nil
}

func (t *mockTx) GetForUpdate(ctx context.Context, orderID int64) (*Order, error) {
	o, ok := t.repo.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *mockTx) GetItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	return append([]OrderItem(nil), t.repo.items[orderID]...), nil
}

func (t *mockTx) GetProductForSale(ctx context.Context, productID int64) (*SaleProduct, error) {
	p, ok := t.repo.products[productID]
	if !ok {
		return nil, ErrProductUnavailable
	}
	return &SaleProduct{ID: productID, Name: p.name, Price: p.price, IsActive: p.active}, nil
}

type mockRecorder struct {
	repo *mockRepository
}

func (r *mockRecorder) GetStockForUpdate(ctx context.Context, productID int64) (int, error) {
	p, ok := r.repo.products[productID]
	if !ok {
		return 0, stock.ErrProductNotFound
	}
	return p.stock, nil
}

func (r *mockRecorder) SetStock(ctx context.Context, productID int64, qty int) error {
	p, ok := r.repo.products[productID]
	if !ok {
		return stock.ErrProductNotFound
	}
	p.stock = qty
	return nil
}

func (r *mockRecorder) InsertMovement(ctx context.Context, m stock.Movement) (int64, error) {
	id := r.repo.nextMoveID
	r.repo.nextMoveID++
	m.ID = id
	r.repo.movements = append(r.repo.movements, m)
	return id, nil
}

// ============================================================================
// TESTS
// ============================================================================

func newTestService(repo *mockRepository, allowNegative bool) *Service {
	ledger := stock.NewLedger(nil, nil, nil, stock.LedgerConfig{AllowNegativeStock: allowNegative})
	return NewService(repo, ledger, nil, ServiceConfig{TaxRate: 0.16})
}

var cashier = shared.Operator{ID: 7, Name: "Till One"}

func TestCreateOrderComputesTotals(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Rice 2kg", 150.00, 50)
	repo.addProduct(2, "Cooking Oil 1L", 80.00, 30)
	svc := newTestService(repo, true)

	order, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{
			{ProductID: 1, Quantity: 3},
			{ProductID: 2, Quantity: 2},
		},
	})
	require.NoError(t, err)

	assert.InDelta(t, 610.00, order.Subtotal, 0.001)
	assert.InDelta(t, 97.60, order.TaxAmount, 0.001)
	assert.InDelta(t, 707.60, order.TotalAmount, 0.001)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, cashier.ID, order.CashierID)
	require.Len(t, order.Items, 2)
	assert.InDelta(t, 450.00, order.Items[0].TotalPrice, 0.001)
	assert.InDelta(t, 160.00, order.Items[1].TotalPrice, 0.001)

	assert.Equal(t, 47, repo.products[1].stock)
	assert.Equal(t, 28, repo.products[2].stock)
	require.Len(t, repo.movements, 2)
	assert.Equal(t, stock.MovementSale, repo.movements[0].Type)
	assert.Equal(t, -3, repo.movements[0].Quantity)
	assert.Equal(t, 50, repo.movements[0].PreviousStock)
	assert.Equal(t, 47, repo.movements[0].NewStock)
	assert.Equal(t, order.OrderNumber, repo.movements[0].Reference)
}

func TestCreateOrderAppliesLineDiscount(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Soap", 100.00, 10)
	svc := newTestService(repo, true)

	order, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{{ProductID: 1, Quantity: 2, Discount: 25}},
	})
	require.NoError(t, err)

	assert.InDelta(t, 150.00, order.Subtotal, 0.001)
	assert.InDelta(t, 24.00, order.TaxAmount, 0.001)
	assert.InDelta(t, 174.00, order.TotalAmount, 0.001)
}

func TestCreateOrderAppliesOrderDiscount(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Bread", 60.00, 10)
	svc := newTestService(repo, true)

	order, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		DiscountAmount: 10.00,
		Items:          []CreateOrderItemRequest{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)

	assert.InDelta(t, 60.00, order.Subtotal, 0.001)
	assert.InDelta(t, 9.60, order.TaxAmount, 0.001)
	assert.InDelta(t, 59.60, order.TotalAmount, 0.001)
}

func TestCreateOrderHonoursClientUnitPrice(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Rice 2kg", 150.00, 50)
	svc := newTestService(repo, true)

	// A negotiated price on the line overrides the catalog price.
	negotiated := 120.00
	order, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{{ProductID: 1, Quantity: 2, UnitPrice: &negotiated}},
	})
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	assert.InDelta(t, 120.00, order.Items[0].UnitPrice, 0.001)
	assert.InDelta(t, 240.00, order.Items[0].TotalPrice, 0.001)
	assert.InDelta(t, 240.00, order.Subtotal, 0.001)
	assert.InDelta(t, 278.40, order.TotalAmount, 0.001)
}

func TestCreateOrderSnapshotsCatalogPriceByDefault(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Rice 2kg", 150.00, 50)
	svc := newTestService(repo, true)

	order, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	assert.InDelta(t, 150.00, order.Items[0].UnitPrice, 0.001)
}

func TestCreateOrderRejectsExcessiveDiscount(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Bread", 60.00, 10)
	svc := newTestService(repo, true)

	_, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		DiscountAmount: 100.00,
		Items:          []CreateOrderItemRequest{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrExcessiveDiscount)

	// The rejected order must leave nothing behind.
	assert.Empty(t, repo.orders)
	assert.Equal(t, 10, repo.products[1].stock)
	assert.Empty(t, repo.movements)
}

func TestCreateOrderRollsBackWhenStockRunsOut(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Milk 500ml", 55.00, 10)
	repo.addProduct(2, "Sugar 1kg", 120.00, 1)
	svc := newTestService(repo, false)

	_, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 5},
		},
	})
	require.ErrorIs(t, err, stock.ErrNegativeStock)

	assert.Empty(t, repo.orders)
	assert.Empty(t, repo.movements)
	assert.Equal(t, 10, repo.products[1].stock)
	assert.Equal(t, 1, repo.products[2].stock)
}

func TestCreateOrderOversellsWhenAllowed(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Eggs Tray", 390.00, 1)
	svc := newTestService(repo, true)

	_, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{{ProductID: 1, Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, -2, repo.products[1].stock)
}

func TestCreateOrderRejectsInactiveProduct(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Old Stock", 10.00, 5)
	repo.products[1].active = false
	svc := newTestService(repo, true)

	_, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrProductUnavailable)
}

func TestCreateOrderRetriesNumberCollisions(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Tea Leaves", 95.00, 20)
	repo.duplicateInserts = 2
	svc := newTestService(repo, true)

	order, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, order.OrderNumber)
	// Failed attempts must not leave stock movements behind.
	assert.Len(t, repo.movements, 1)
	assert.Equal(t, 19, repo.products[1].stock)
}

func TestCreateOrderGivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Tea Leaves", 95.00, 20)
	repo.duplicateInserts = 10
	svc := newTestService(repo, true)

	_, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrDuplicateNumber)
	assert.Empty(t, repo.orders)
}

func TestConcurrentOrdersGetUniqueNumbers(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Water 1L", 50.00, 100000)
	svc := newTestService(repo, true)

	const n = 1000
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
				Items: []CreateOrderItemRequest{{ProductID: 1, Quantity: 1}},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, repo.orders, n)
	seen := make(map[string]bool, n)
	for _, o := range repo.orders {
		require.False(t, seen[o.OrderNumber], "duplicate order number %s", o.OrderNumber)
		seen[o.OrderNumber] = true
	}
}

func TestCancelPendingOrderReturnsStock(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Flour 2kg", 180.00, 10)
	svc := newTestService(repo, true)

	order, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{{ProductID: 1, Quantity: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, 6, repo.products[1].stock)

	cancelled, err := svc.Cancel(context.Background(), cashier, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, repo.products[1].stock)

	require.Len(t, repo.movements, 2)
	ret := repo.movements[1]
	assert.Equal(t, stock.MovementReturn, ret.Type)
	assert.Equal(t, 4, ret.Quantity)
	assert.Equal(t, order.OrderNumber, ret.Reference)
}

func TestCancelCompletedOrderFails(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Flour 2kg", 180.00, 10)
	svc := newTestService(repo, true)

	order, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)
	repo.orders[order.ID].Status = OrderStatusCompleted

	_, err = svc.Cancel(context.Background(), cashier, order.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 9, repo.products[1].stock)
}

func TestRecalculateTotalsIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	repo.addProduct(1, "Rice 2kg", 150.00, 50)
	repo.addProduct(2, "Cooking Oil 1L", 80.00, 30)
	svc := newTestService(repo, true)

	order, err := svc.Create(context.Background(), cashier, CreateOrderRequest{
		Items: []CreateOrderItemRequest{
			{ProductID: 1, Quantity: 3},
			{ProductID: 2, Quantity: 2},
		},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := svc.RecalculateTotals(context.Background(), order.ID)
		require.NoError(t, err, "pass %d", i)
		assert.InDelta(t, 610.00, got.Subtotal, 0.001)
		assert.InDelta(t, 97.60, got.TaxAmount, 0.001)
		assert.InDelta(t, 707.60, got.TotalAmount, 0.001)
	}
}

func TestOrderNumberFormat(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	number, err := NewOrderNumber(at)
	require.NoError(t, err)
	assert.Len(t, number, 22)
	assert.Equal(t, "MNG20250314092653", number[:17])
	for _, c := range number[17:] {
		assert.True(t, c >= '0' && c <= '9', "suffix must be digits, got %s", number)
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderStatusPending, OrderStatusCompleted, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusCompleted, OrderStatusRefunded, true},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusCompleted, false},
		{OrderStatusRefunded, OrderStatusPending, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_to_%s", tc.from, tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to))
		})
	}
}
