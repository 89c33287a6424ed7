package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/stockbook/stockbook/internal/domain/errs"
	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/repository/memory"
	"github.com/stockbook/stockbook/internal/service/purchases"
	"github.com/stockbook/stockbook/internal/service/sequence"
	"github.com/stockbook/stockbook/internal/service/stock"
)

// TestStockMatchesHistory drives random purchase and sale lifecycles against
// one item and checks stock always equals opening stock plus purchased minus sold.
func TestStockMatchesHistory(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := memory.New(nil)
		opening := rapid.IntRange(0, 20).Draw(rt, "opening")
		require.NoError(rt, store.SaveItem(ctx, models.Item{ItemNumber: 7, ItemName: "Bolt", Stock: opening, OpeningStock: opening}))
		require.NoError(rt, store.SaveVendor(ctx, models.Vendor{ID: "v"}))
		require.NoError(rt, store.SaveCustomer(ctx, models.Customer{ID: "c"}))

		ledger := stock.NewLedger(store, stock.GuardReadCheck, nil)
		ids := sequence.NewAllocator(store, nil)
		buy := purchases.NewManager(store, ledger, ids, nil)
		sell := NewManager(store, ledger, ids, nil)
		date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		var purchaseIDs, saleIDs []string
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for range steps {
			qty := rapid.IntRange(1, 9).Draw(rt, "qty")
			switch rapid.IntRange(0, 5).Draw(rt, "op") {
			case 0:
				p, err := buy.Create(ctx, purchases.CreateInput{ItemNumber: 7, VendorID: "v", PurchaseDate: date, Quantity: qty, UnitPrice: 2}, models.Actor{})
				require.NoError(rt, err)
				purchaseIDs = append(purchaseIDs, p.PurchaseID)
			case 1:
				s, err := sell.Create(ctx, CreateInput{ItemNumber: 7, CustomerID: "c", SaleDate: date, Quantity: qty, UnitPrice: 3}, models.Actor{})
				if !insufficient(rt, err) {
					saleIDs = append(saleIDs, s.SaleID)
				}
			case 2:
				if len(purchaseIDs) > 0 {
					id := rapid.SampledFrom(purchaseIDs).Draw(rt, "purchase")
					_, err := buy.Update(ctx, id, purchases.UpdateInput{Quantity: qty, UnitPrice: 2}, models.Actor{})
					require.NoError(rt, err)
				}
			case 3:
				if len(saleIDs) > 0 {
					id := rapid.SampledFrom(saleIDs).Draw(rt, "sale")
					_, err := sell.Update(ctx, id, UpdateInput{Quantity: qty, UnitPrice: 3}, models.Actor{})
					insufficient(rt, err)
				}
			case 4:
				if len(purchaseIDs) > 0 {
					i := rapid.IntRange(0, len(purchaseIDs)-1).Draw(rt, "purchaseIndex")
					_, err := buy.Delete(ctx, purchaseIDs[i], models.Actor{})
					require.NoError(rt, err)
					purchaseIDs = append(purchaseIDs[:i], purchaseIDs[i+1:]...)
				}
			case 5:
				if len(saleIDs) > 0 {
					i := rapid.IntRange(0, len(saleIDs)-1).Draw(rt, "saleIndex")
					_, err := sell.Delete(ctx, saleIDs[i], models.Actor{})
					require.NoError(rt, err)
					saleIDs = append(saleIDs[:i], saleIDs[i+1:]...)
				}
			}

			drifts, err := ledger.Audit(ctx)
			require.NoError(rt, err)
			require.Empty(rt, drifts)
		}
	})
}

func insufficient(rt *rapid.T, err error) bool {
	if err == nil {
		return false
	}
	var ise *errs.InsufficientStockError
	require.True(rt, errors.As(err, &ise), "unexpected error: %v", err)
	return true
}
