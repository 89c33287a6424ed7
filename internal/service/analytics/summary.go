// Package analytics derives profit and loss figures from transaction history.
// It only reads.
package analytics

import (
	"iter"
	"maps"
	"slices"

	"github.com/stockbook/stockbook/internal/domain/models"
)

type itemTotals struct {
	name         string
	purchasedQty int
	purchaseCost float64
	soldQty      int
	revenue      float64
}

// Summarize groups purchases and sales by item and yields one summary per item
// that appears in either list, ordered by item number. Cost of sold units uses
// the average purchase price within the same window. The sequence recomputes
// from the inputs on every iteration.
func Summarize(purchases []models.Purchase, sales []models.Sale) iter.Seq[models.ItemSummary] {
	return func(yield func(models.ItemSummary) bool) {
		totals := make(map[int]*itemTotals)
		get := func(itemNumber int, name string) *itemTotals {
			t, ok := totals[itemNumber]
			if !ok {
				t = &itemTotals{name: name}
				totals[itemNumber] = t
			}
			if t.name == "" {
				t.name = name
			}
			return t
		}

		for _, p := range purchases {
			t := get(p.ItemNumber, p.ItemName)
			t.purchasedQty += p.Quantity
			t.purchaseCost += float64(p.Quantity) * p.UnitPrice
		}
		for _, s := range sales {
			t := get(s.ItemNumber, s.ItemName)
			t.soldQty += s.Quantity
			t.revenue += float64(s.Quantity) * s.UnitPrice
		}

		for _, itemNumber := range slices.Sorted(maps.Keys(totals)) {
			if !yield(summarize(itemNumber, totals[itemNumber])) {
				return
			}
		}
	}
}

func summarize(itemNumber int, t *itemTotals) models.ItemSummary {
	s := models.ItemSummary{
		ItemNumber:        itemNumber,
		ItemName:          t.name,
		PurchasedQty:      t.purchasedQty,
		TotalPurchaseCost: models.RoundMoney(t.purchaseCost),
		SoldQty:           t.soldQty,
		TotalSaleRevenue:  models.RoundMoney(t.revenue),
	}

	var avgPurchase float64
	if t.purchasedQty > 0 {
		avgPurchase = t.purchaseCost / float64(t.purchasedQty)
	}
	if t.soldQty > 0 {
		s.AvgSalePrice = models.RoundMoney(t.revenue / float64(t.soldQty))
	}

	cost := float64(t.soldQty) * avgPurchase
	profit := t.revenue - cost
	s.AvgPurchasePrice = models.RoundMoney(avgPurchase)
	s.CostOfSoldItems = models.RoundMoney(cost)
	s.Profit = models.RoundMoney(profit)
	if cost > 0 {
		s.ProfitPercentage = models.RoundMoney(profit / cost * 100)
	}
	return s
}
