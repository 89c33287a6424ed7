package models

import "time"

// Window bounds the transaction history fed to the analytics aggregator.
// Limit keeps the most recent N records of each kind; From/To restrict by transaction date.
type Window struct {
	Limit int
	From  time.Time
	To    time.Time
}

// ItemSummary is the per-item profit/loss line derived from a window of transactions.
type ItemSummary struct {
	ItemNumber        int     `json:"itemNumber"`
	ItemName          string  `json:"itemName"`
	PurchasedQty      int     `json:"purchasedQty"`
	TotalPurchaseCost float64 `json:"totalPurchaseCost"`
	AvgPurchasePrice  float64 `json:"avgPurchasePrice"`
	SoldQty           int     `json:"soldQty"`
	TotalSaleRevenue  float64 `json:"totalSaleRevenue"`
	AvgSalePrice      float64 `json:"avgSalePrice"`
	CostOfSoldItems   float64 `json:"costOfSoldItems"`
	Profit            float64 `json:"profit"`
	ProfitPercentage  float64 `json:"profitPercentage"`
}

// Dashboard aggregates the recent activity shown on the landing page.
type Dashboard struct {
	RecentPurchases []Purchase    `json:"recentPurchases"`
	RecentSales     []Sale        `json:"recentSales"`
	TotalCost       float64       `json:"totalCost"`
	TotalRevenue    float64       `json:"totalRevenue"`
	Profit          float64       `json:"profit"`
	Items           []ItemSummary `json:"items"`
	GeneratedAt     time.Time     `json:"generatedAt"`
}

// StockDrift reports an item whose stored stock disagrees with its transaction history.
type StockDrift struct {
	ItemNumber int    `json:"itemNumber"`
	ItemName   string `json:"itemName"`
	Stock      int    `json:"stock"`
	Opening    int    `json:"opening"`
	Expected   int    `json:"expected"`
	Purchased  int    `json:"purchased"`
	Sold       int    `json:"sold"`
}

// Diff is stored stock minus expected stock.
func (d StockDrift) Diff() int { return d.Stock - d.Expected }

// ReportKind selects the data set of a period report.
type ReportKind string

const (
	ReportSales     ReportKind = "Sales"
	ReportPurchases ReportKind = "Purchases"
	ReportInventory ReportKind = "Inventory"
)

// Report is the data behind a printable period report.
type Report struct {
	Kind      ReportKind `json:"kind"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	Purchases []Purchase `json:"purchases,omitempty"`
	Sales     []Sale     `json:"sales,omitempty"`
	Items     []Item     `json:"items,omitempty"`
	Total     float64    `json:"total"`
}
