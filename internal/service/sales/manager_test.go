package sales

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/domain/errs"
	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/metrics"
	"github.com/stockbook/stockbook/internal/repository/memory"
	"github.com/stockbook/stockbook/internal/service/sequence"
	"github.com/stockbook/stockbook/internal/service/stock"
)

var clerk = models.Actor{ID: "u-1", Name: "Clerk"}

func newManager(t *testing.T, onHand int, discount float64, mode stock.GuardMode) (*Manager, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store := memory.New(nil)
	require.NoError(t, store.SaveItem(ctx, models.Item{
		ItemNumber:      1,
		ItemName:        "Widget",
		Stock:           onHand,
		OpeningStock:    onHand,
		DiscountPercent: discount,
		UnitPrice:       100,
	}))
	require.NoError(t, store.SaveCustomer(ctx, models.Customer{ID: "c-1", CustomerID: "CUS0001", FullName: "Jane Buyer"}))

	m := NewManager(store, stock.NewLedger(store, mode, nil), sequence.NewAllocator(store, nil), nil)
	m.now = func() time.Time { return time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC) }
	return m, store
}

func saleInput(qty int, price float64, discount bool) CreateInput {
	return CreateInput{
		ItemNumber:    1,
		CustomerID:    "c-1",
		SaleDate:      time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		Quantity:      qty,
		UnitPrice:     price,
		ApplyDiscount: discount,
	}
}

func stockOf(t *testing.T, store *memory.Store) int {
	t.Helper()
	item, err := store.GetItem(context.Background(), 1)
	require.NoError(t, err)
	return item.Stock
}

func TestCreateWithoutDiscount(t *testing.T) {
	m, store := newManager(t, 10, 10, stock.GuardReadCheck)

	sale, err := m.Create(context.Background(), saleInput(3, 50, false), clerk)
	require.NoError(t, err)
	assert.Equal(t, "SALE0001", sale.SaleID)
	assert.Equal(t, 50.0, sale.UnitPrice)
	assert.Equal(t, 0.0, sale.DiscountPercent)
	assert.Equal(t, 150.0, sale.Total)
	assert.Equal(t, "Jane Buyer", sale.CustomerName)
	assert.Equal(t, "Widget", sale.ItemName)
	assert.Equal(t, 7, stockOf(t, store))
}

func TestCreateWithDiscount(t *testing.T) {
	m, store := newManager(t, 7, 10, stock.GuardReadCheck)

	sale, err := m.Create(context.Background(), saleInput(2, 100, true), clerk)
	require.NoError(t, err)
	assert.Equal(t, 90.0, sale.UnitPrice)
	assert.Equal(t, 10.0, sale.DiscountPercent)
	assert.Equal(t, 180.0, sale.Total)
	assert.Equal(t, 5, stockOf(t, store))
}

func TestFinalUnitPrice(t *testing.T) {
	assert.Equal(t, 100.0, FinalUnitPrice(100, 10, false))
	assert.Equal(t, 90.0, FinalUnitPrice(100, 10, true))
	assert.Equal(t, 100.0, FinalUnitPrice(100, 0, true))
	assert.InDelta(t, 6.66333, FinalUnitPrice(9.99, 33.3, true), 1e-9)
	assert.Equal(t, 0.0, FinalUnitPrice(100, 100, true))
}

func TestCreateDiscountKeepsSubCentUnitPrice(t *testing.T) {
	m, store := newManager(t, 200, 15, stock.GuardReadCheck)

	sale, err := m.Create(context.Background(), saleInput(100, 9.99, true), clerk)
	require.NoError(t, err)
	assert.InDelta(t, 8.4915, sale.UnitPrice, 1e-9)
	assert.Equal(t, 849.15, sale.Total)
	assert.Equal(t, 100, stockOf(t, store))

	stored, err := store.GetSale(context.Background(), sale.SaleID)
	require.NoError(t, err)
	assert.Equal(t, 849.15, stored.Total)
}

func TestCreateAvailabilityBoundary(t *testing.T) {
	t.Run("exact stock succeeds", func(t *testing.T) {
		m, store := newManager(t, 4, 0, stock.GuardReadCheck)
		_, err := m.Create(context.Background(), saleInput(4, 1, false), clerk)
		require.NoError(t, err)
		assert.Equal(t, 0, stockOf(t, store))
	})

	t.Run("one over fails", func(t *testing.T) {
		m, store := newManager(t, 4, 0, stock.GuardReadCheck)
		_, err := m.Create(context.Background(), saleInput(5, 1, false), clerk)

		var ise *errs.InsufficientStockError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, 4, ise.Available)
		assert.Equal(t, 5, ise.Requested)
		assert.Equal(t, 4, stockOf(t, store))

		next, err := store.NextSequence(context.Background(), sequence.SaleCounter)
		require.NoError(t, err)
		assert.Equal(t, int64(1), next, "rejected sale must not consume an id")
	})
}

func TestCreateDistinguishesMissingReferences(t *testing.T) {
	m, _ := newManager(t, 5, 0, stock.GuardReadCheck)
	ctx := context.Background()

	in := saleInput(1, 1, false)
	in.ItemNumber = 42
	_, err := m.Create(ctx, in, clerk)
	var nf *errs.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "item", nf.Entity)

	in = saleInput(1, 1, false)
	in.CustomerID = "c-404"
	_, err = m.Create(ctx, in, clerk)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "customer", nf.Entity)
}

func TestCreateValidation(t *testing.T) {
	m, store := newManager(t, 5, 0, stock.GuardReadCheck)

	_, err := m.Create(context.Background(), saleInput(0, 10, false), clerk)
	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "quantity", ve.Field)

	in := saleInput(1, 10, false)
	in.CustomerID = ""
	_, err = m.Create(context.Background(), in, clerk)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "customerId", ve.Field)
	assert.Equal(t, 5, stockOf(t, store))
}

func TestUpdateReconcilesStock(t *testing.T) {
	m, store := newManager(t, 10, 0, stock.GuardReadCheck)
	ctx := context.Background()

	sale, err := m.Create(ctx, saleInput(3, 20, false), clerk)
	require.NoError(t, err)
	require.Equal(t, 7, stockOf(t, store))

	updated, err := m.Update(ctx, sale.SaleID, UpdateInput{Quantity: 5, UnitPrice: 20}, clerk)
	require.NoError(t, err)
	assert.Equal(t, 100.0, updated.Total)
	assert.Equal(t, 5, stockOf(t, store))

	_, err = m.Update(ctx, sale.SaleID, UpdateInput{Quantity: 1, UnitPrice: 15}, clerk)
	require.NoError(t, err)
	assert.Equal(t, 9, stockOf(t, store))
}

func TestUpdateBeyondStockLeavesStateUnchanged(t *testing.T) {
	m, store := newManager(t, 5, 0, stock.GuardReadCheck)
	ctx := context.Background()

	sale, err := m.Create(ctx, saleInput(3, 20, false), clerk)
	require.NoError(t, err)
	require.Equal(t, 2, stockOf(t, store))

	_, err = m.Update(ctx, sale.SaleID, UpdateInput{Quantity: 6, UnitPrice: 20}, clerk)
	var ise *errs.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 2, ise.Available)
	assert.Equal(t, 3, ise.Requested)

	assert.Equal(t, 2, stockOf(t, store))
	stored, err := m.Get(ctx, sale.SaleID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Quantity)
	assert.Equal(t, 60.0, stored.Total)
}

func TestUpdateUsingExactRemainingStock(t *testing.T) {
	m, store := newManager(t, 5, 0, stock.GuardReadCheck)
	ctx := context.Background()

	sale, err := m.Create(ctx, saleInput(3, 20, false), clerk)
	require.NoError(t, err)

	_, err = m.Update(ctx, sale.SaleID, UpdateInput{Quantity: 5, UnitPrice: 20}, clerk)
	require.NoError(t, err)
	assert.Equal(t, 0, stockOf(t, store))
}

func TestDeleteRestoresStock(t *testing.T) {
	m, store := newManager(t, 10, 0, stock.GuardReadCheck)
	ctx := context.Background()

	sale, err := m.Create(ctx, saleInput(4, 20, false), clerk)
	require.NoError(t, err)

	id, err := m.Delete(ctx, sale.SaleID, clerk)
	require.NoError(t, err)
	assert.Equal(t, sale.SaleID, id)
	assert.Equal(t, 10, stockOf(t, store))

	_, err = m.Delete(ctx, sale.SaleID, clerk)
	var nf *errs.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 10, stockOf(t, store))
}

func TestDeleteToleratesMissingItem(t *testing.T) {
	m, store := newManager(t, 10, 0, stock.GuardReadCheck)
	ctx := context.Background()

	sale, err := m.Create(ctx, saleInput(4, 20, false), clerk)
	require.NoError(t, err)
	store.DeleteItem(ctx, 1)

	_, err = m.Delete(ctx, sale.SaleID, clerk)
	require.NoError(t, err)
}

func TestInsertFailureLeavesStockUntouched(t *testing.T) {
	m, store := newManager(t, 10, 0, stock.GuardReadCheck)
	store.FailOn("InsertSale", errors.New("write timeout"))

	_, err := m.Create(context.Background(), saleInput(4, 20, false), clerk)

	var pe *errs.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "insert sale", pe.Step)
	assert.True(t, pe.RolledBack)
	assert.Equal(t, 10, stockOf(t, store))
}

func TestRolledBackUpdateIsNotCountedAsStockOut(t *testing.T) {
	m, store := newManager(t, 10, 0, stock.GuardReadCheck)
	ctx := context.Background()
	units := func() float64 { return testutil.ToFloat64(metrics.StockAdjustments.WithLabelValues("out")) }

	before := units()
	sale, err := m.Create(ctx, saleInput(2, 20, false), clerk)
	require.NoError(t, err)
	assert.Equal(t, before+2, units())

	store.FailOn("ReplaceSale", errors.New("write timeout"))
	_, err = m.Update(ctx, sale.SaleID, UpdateInput{Quantity: 6, UnitPrice: 20}, clerk)
	var pe *errs.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.RolledBack)
	assert.Equal(t, 8, stockOf(t, store))
	assert.Equal(t, before+2, units())
}

func TestAtomicGuardNeverOversells(t *testing.T) {
	m, store := newManager(t, 5, 0, stock.GuardAtomic)
	ctx := context.Background()
	const buyers = 12

	results := make(chan error, buyers)
	var wg sync.WaitGroup
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Create(ctx, saleInput(1, 10, false), clerk)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	sold := 0
	for err := range results {
		if err == nil {
			sold++
			continue
		}
		var ise *errs.InsufficientStockError
		var ce *errs.ConflictError
		assert.True(t, errors.As(err, &ise) || errors.As(err, &ce), "unexpected error %v", err)
	}
	assert.Equal(t, 5, sold)
	assert.Equal(t, 0, stockOf(t, store))

	list, err := m.List(ctx, models.SaleFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 5)
}
