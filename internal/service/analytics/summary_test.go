package analytics

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/repository"
	"github.com/stockbook/stockbook/internal/repository/memory"
)

func purchase(id string, item int, qty int, price float64) models.Purchase {
	return models.Purchase{PurchaseID: id, ItemNumber: item, ItemName: "item", Quantity: qty, UnitPrice: price}
}

func sale(id string, item int, qty int, price float64) models.Sale {
	return models.Sale{SaleID: id, ItemNumber: item, ItemName: "item", Quantity: qty, UnitPrice: price}
}

func TestSummarizeAveragePurchaseCost(t *testing.T) {
	purchases := []models.Purchase{
		purchase("PUR0001", 1, 10, 5),
		purchase("PUR0002", 1, 10, 7),
	}
	sales := []models.Sale{
		sale("SALE0001", 1, 4, 10),
		sale("SALE0002", 1, 2, 13),
	}

	got := slices.Collect(Summarize(purchases, sales))
	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, 20, s.PurchasedQty)
	assert.Equal(t, 120.0, s.TotalPurchaseCost)
	assert.Equal(t, 6.0, s.AvgPurchasePrice)
	assert.Equal(t, 6, s.SoldQty)
	assert.Equal(t, 66.0, s.TotalSaleRevenue)
	assert.Equal(t, 11.0, s.AvgSalePrice)
	assert.Equal(t, 36.0, s.CostOfSoldItems)
	assert.Equal(t, 30.0, s.Profit)
	assert.InDelta(t, 83.33, s.ProfitPercentage, 0.001)
}

func TestSummarizeZeroDivisionGuards(t *testing.T) {
	t.Run("purchased but never sold", func(t *testing.T) {
		got := slices.Collect(Summarize([]models.Purchase{purchase("PUR0001", 3, 2, 4)}, nil))
		require.Len(t, got, 1)
		assert.Equal(t, 0.0, got[0].AvgSalePrice)
		assert.Equal(t, 0.0, got[0].CostOfSoldItems)
		assert.Equal(t, 0.0, got[0].Profit)
		assert.Equal(t, 0.0, got[0].ProfitPercentage)
	})

	t.Run("sold without purchases in window", func(t *testing.T) {
		got := slices.Collect(Summarize(nil, []models.Sale{sale("SALE0001", 4, 3, 2)}))
		require.Len(t, got, 1)
		assert.Equal(t, 0.0, got[0].AvgPurchasePrice)
		assert.Equal(t, 6.0, got[0].Profit)
		assert.Equal(t, 0.0, got[0].ProfitPercentage)
	})
}

func TestSummarizeOrdersByItemAndRestarts(t *testing.T) {
	seq := Summarize(
		[]models.Purchase{purchase("PUR0001", 9, 1, 1), purchase("PUR0002", 2, 1, 1)},
		[]models.Sale{sale("SALE0001", 5, 1, 1)},
	)

	var first []int
	for s := range seq {
		first = append(first, s.ItemNumber)
	}
	assert.Equal(t, []int{2, 5, 9}, first)

	var again []int
	for s := range seq {
		again = append(again, s.ItemNumber)
		break
	}
	assert.Equal(t, []int{2}, again)
	assert.Len(t, slices.Collect(seq), 3)
}

func TestDashboardUsesRecentWindow(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }
	seed(t, store, day)

	svc := NewService(store, nil)
	svc.now = func() time.Time { return day(30) }

	dash, err := svc.Dashboard(ctx, models.Window{Limit: 2})
	require.NoError(t, err)
	require.Len(t, dash.RecentPurchases, 2)
	assert.Equal(t, "PUR0003", dash.RecentPurchases[0].PurchaseID)
	assert.Equal(t, "PUR0002", dash.RecentPurchases[1].PurchaseID)
	require.Len(t, dash.RecentSales, 1)

	assert.Equal(t, 50.0, dash.TotalCost)
	assert.Equal(t, 45.0, dash.TotalRevenue)
	assert.Equal(t, -5.0, dash.Profit)
	assert.Len(t, dash.Items, 1)
	assert.Equal(t, day(30), dash.GeneratedAt)
}

func TestDashboardDefaultsWindow(t *testing.T) {
	store := memory.New(nil)
	seed(t, store, func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) })

	dash, err := NewService(store, nil).Dashboard(context.Background(), models.Window{})
	require.NoError(t, err)
	assert.Len(t, dash.RecentPurchases, 3)
}

type failingHistory struct{}

func (failingHistory) ListPurchases(context.Context, models.PurchaseFilter) ([]models.Purchase, error) {
	return nil, errors.New("db down")
}

func (failingHistory) ListSales(context.Context, models.SaleFilter) ([]models.Sale, error) {
	return nil, nil
}

func TestDashboardPropagatesLoadErrors(t *testing.T) {
	_, err := NewService(failingHistory{}, nil).Dashboard(context.Background(), models.Window{Limit: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load recent purchases")
}

func seed(t *testing.T, store *memory.Store, day func(int) time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveItem(ctx, models.Item{ItemNumber: 1, ItemName: "Widget"}))
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for i, p := range []models.Purchase{
			purchase("PUR0001", 1, 1, 100),
			purchase("PUR0002", 1, 2, 10),
			purchase("PUR0003", 1, 3, 10),
		} {
			p.PurchaseDate = day(i + 1)
			if err := tx.InsertPurchase(ctx, p); err != nil {
				return err
			}
		}
		s := sale("SALE0001", 1, 3, 15)
		s.SaleDate = day(4)
		return tx.InsertSale(ctx, s)
	}))
}
