package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/domain/errs"
	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/repository"
	"github.com/stockbook/stockbook/internal/repository/memory"
)

func seededStore(t *testing.T, stock int) *memory.Store {
	t.Helper()
	store := memory.New(nil)
	require.NoError(t, store.SaveItem(context.Background(), models.Item{
		ItemNumber:   1,
		ItemName:     "Widget",
		Stock:        stock,
		OpeningStock: stock,
		UnitPrice:    10,
	}))
	return store
}

func applyInTx(t *testing.T, store *memory.Store, fn func(ctx context.Context, tx repository.Tx) error) error {
	t.Helper()
	return store.WithTx(context.Background(), fn)
}

func TestParseGuardMode(t *testing.T) {
	mode, err := ParseGuardMode("")
	require.NoError(t, err)
	assert.Equal(t, GuardReadCheck, mode)

	mode, err = ParseGuardMode("atomic")
	require.NoError(t, err)
	assert.Equal(t, GuardAtomic, mode)

	_, err = ParseGuardMode("pessimistic")
	require.Error(t, err)
}

func TestApplyDeltaAdjustsStock(t *testing.T) {
	store := seededStore(t, 5)
	ledger := NewLedger(store, GuardReadCheck, nil)

	var got int
	err := applyInTx(t, store, func(ctx context.Context, tx repository.Tx) error {
		var err error
		got, err = ledger.ApplyDelta(ctx, tx, 1, 7)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 12, got)

	item, err := store.GetItem(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 12, item.Stock)
}

func TestApplyDeltaUnknownItem(t *testing.T) {
	store := seededStore(t, 5)
	ledger := NewLedger(store, GuardReadCheck, nil)

	err := applyInTx(t, store, func(ctx context.Context, tx repository.Tx) error {
		_, err := ledger.ApplyDelta(ctx, tx, 99, 1)
		return err
	})
	var nf *errs.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "item", nf.Entity)
	assert.Equal(t, "99", nf.Key)
}

func TestReadCheckModeAllowsNegativeSaleDelta(t *testing.T) {
	store := seededStore(t, 2)
	ledger := NewLedger(store, GuardReadCheck, nil)

	err := applyInTx(t, store, func(ctx context.Context, tx repository.Tx) error {
		_, err := ledger.ApplySaleDelta(ctx, tx, 1, -3)
		return err
	})
	require.NoError(t, err)

	item, _ := store.GetItem(context.Background(), 1)
	assert.Equal(t, -1, item.Stock)
}

func TestAtomicModeRejectsOverdraw(t *testing.T) {
	store := seededStore(t, 2)
	ledger := NewLedger(store, GuardAtomic, nil)

	err := applyInTx(t, store, func(ctx context.Context, tx repository.Tx) error {
		_, err := ledger.ApplySaleDelta(ctx, tx, 1, -3)
		return err
	})
	var ce *errs.ConflictError
	require.True(t, errors.As(err, &ce), "got %v", err)

	item, _ := store.GetItem(context.Background(), 1)
	assert.Equal(t, 2, item.Stock)
}

func TestAtomicModeDoesNotGuardPurchaseReversal(t *testing.T) {
	store := seededStore(t, 1)
	ledger := NewLedger(store, GuardAtomic, nil)

	err := applyInTx(t, store, func(ctx context.Context, tx repository.Tx) error {
		_, err := ledger.ApplyDelta(ctx, tx, 1, -4)
		return err
	})
	require.NoError(t, err)

	item, _ := store.GetItem(context.Background(), 1)
	assert.Equal(t, -3, item.Stock)
}

func TestCheckAvailability(t *testing.T) {
	store := seededStore(t, 4)
	ledger := NewLedger(store, GuardReadCheck, nil)
	ctx := context.Background()

	item, err := ledger.CheckAvailability(ctx, store, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, "Widget", item.ItemName)

	_, err = ledger.CheckAvailability(ctx, store, 1, 5)
	var ise *errs.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, 4, ise.Available)
	assert.Equal(t, 5, ise.Requested)

	_, err = ledger.CheckAvailability(ctx, store, 2, 1)
	var nf *errs.NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestAuditReportsDrift(t *testing.T) {
	store := seededStore(t, 3)
	ctx := context.Background()
	require.NoError(t, store.SaveItem(ctx, models.Item{ItemNumber: 2, ItemName: "Gadget", Stock: 9}))

	err := store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.InsertPurchase(ctx, models.Purchase{PurchaseID: "PUR0001", ItemNumber: 1, Quantity: 4, PurchaseDate: time.Now()}); err != nil {
			return err
		}
		_, err := tx.AdjustStock(ctx, 1, 4, false)
		return err
	})
	require.NoError(t, err)

	drifts, err := NewLedger(store, GuardReadCheck, nil).Audit(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, 2, drifts[0].ItemNumber)
	assert.Equal(t, 0, drifts[0].Expected)
	assert.Equal(t, 9, drifts[0].Diff())
}
