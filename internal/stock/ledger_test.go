package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRecorder struct {
	stocks    map[int64]int
	movements []Movement
	nextID    int64
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{stocks: make(map[int64]int), nextID: 1}
}

func (m *mockRecorder) GetStockForUpdate(ctx context.Context, productID int64) (int, error) {
	qty, ok := m.stocks[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	return qty, nil
}

func (m *mockRecorder) SetStock(ctx context.Context, productID int64, qty int) error {
	if _, ok := m.stocks[productID]; !ok {
		return ErrProductNotFound
	}
	m.stocks[productID] = qty
	return nil
}

func (m *mockRecorder) InsertMovement(ctx context.Context, mv Movement) (int64, error) {
	id := m.nextID
	m.nextID++
	mv.ID = id
	m.movements = append(m.movements, mv)
	return id, nil
}

type mockLedgerRepo struct {
	rec *mockRecorder
}

func (m *mockLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRecorder) error) error {
	return fn(ctx, m.rec)
}

func (m *mockLedgerRepo) ListMovements(ctx context.Context, f MovementFilter) ([]Movement, error) {
	return m.rec.movements, nil
}

func TestRecordInChainsPreviousAndNewStock(t *testing.T) {
	rec := newMockRecorder()
	rec.stocks[1] = 20
	ledger := NewLedger(nil, nil, nil, LedgerConfig{AllowNegativeStock: true})

	m1, err := ledger.RecordIn(context.Background(), rec, RecordInput{
		ProductID: 1, Type: MovementSale, Delta: -6, Reference: "MNG1", ActorID: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, m1.PreviousStock)
	assert.Equal(t, 14, m1.NewStock)
	assert.Equal(t, -6, m1.Quantity)
	assert.Equal(t, 14, rec.stocks[1])

	m2, err := ledger.RecordIn(context.Background(), rec, RecordInput{
		ProductID: 1, Type: MovementRestock, Delta: 10, Reference: "GRN-7", ActorID: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 14, m2.PreviousStock)
	assert.Equal(t, 24, m2.NewStock)
	assert.Equal(t, 24, rec.stocks[1])
}

func TestRecordInRejectsZeroDelta(t *testing.T) {
	rec := newMockRecorder()
	rec.stocks[1] = 5
	ledger := NewLedger(nil, nil, nil, LedgerConfig{AllowNegativeStock: true})

	_, err := ledger.RecordIn(context.Background(), rec, RecordInput{ProductID: 1, Type: MovementSale, Delta: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRecordInNegativeStockGuard(t *testing.T) {
	rec := newMockRecorder()
	rec.stocks[1] = 3
	ledger := NewLedger(nil, nil, nil, LedgerConfig{AllowNegativeStock: false})

	_, err := ledger.RecordIn(context.Background(), rec, RecordInput{ProductID: 1, Type: MovementSale, Delta: -5})
	require.ErrorIs(t, err, ErrNegativeStock)
	assert.Equal(t, 3, rec.stocks[1])
	assert.Empty(t, rec.movements)
}

func TestRecordInAllowsOversellWhenConfigured(t *testing.T) {
	rec := newMockRecorder()
	rec.stocks[1] = 3
	ledger := NewLedger(nil, nil, nil, LedgerConfig{AllowNegativeStock: true})

	m, err := ledger.RecordIn(context.Background(), rec, RecordInput{ProductID: 1, Type: MovementSale, Delta: -5})
	require.NoError(t, err)
	assert.Equal(t, -2, m.NewStock)
	assert.Equal(t, -2, rec.stocks[1])
}

func TestRecordInUnknownProduct(t *testing.T) {
	rec := newMockRecorder()
	ledger := NewLedger(nil, nil, nil, LedgerConfig{AllowNegativeStock: true})

	_, err := ledger.RecordIn(context.Background(), rec, RecordInput{ProductID: 99, Type: MovementSale, Delta: -1})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestAdjustDefaultsToAdjustmentType(t *testing.T) {
	rec := newMockRecorder()
	rec.stocks[1] = 10
	repo := &mockLedgerRepo{rec: rec}
	ledger := NewLedger(repo, nil, nil, LedgerConfig{AllowNegativeStock: true})

	m, err := ledger.Adjust(context.Background(), AdjustmentInput{
		ProductID: 1, Quantity: -4, Reason: "breakage", ActorID: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, MovementAdjustment, m.Type)
	assert.Equal(t, 6, rec.stocks[1])
}

func TestAdjustRejectsSaleType(t *testing.T) {
	rec := newMockRecorder()
	rec.stocks[1] = 10
	repo := &mockLedgerRepo{rec: rec}
	ledger := NewLedger(repo, nil, nil, LedgerConfig{AllowNegativeStock: true})

	_, err := ledger.Adjust(context.Background(), AdjustmentInput{
		ProductID: 1, Quantity: -1, Type: MovementSale,
	})
	require.Error(t, err)
	assert.Equal(t, 10, rec.stocks[1])
}

func TestParseMovementType(t *testing.T) {
	for _, valid := range []string{"sale", "restock", "adjustment", "return"} {
		mt, err := ParseMovementType(valid)
		require.NoError(t, err)
		assert.Equal(t, MovementType(valid), mt)
	}
	_, err := ParseMovementType("transfer")
	require.Error(t, err)
}
