package models

import (
	"math"
	"time"
)

// Actor identifies the authenticated user on whose behalf a mutation runs.
type Actor struct {
	ID   string
	Name string
}

// Purchase records stock received from a vendor.
type Purchase struct {
	PurchaseID   string    `bson:"purchaseId" json:"purchaseId"`
	PurchaseDate time.Time `bson:"purchaseDate" json:"purchaseDate"`
	ItemNumber   int       `bson:"itemNumber" json:"itemNumber"`
	ItemName     string    `bson:"itemName" json:"itemName"`
	VendorID     string    `bson:"vendor" json:"vendorId"`
	Quantity     int       `bson:"quantity" json:"quantity"`
	UnitPrice    float64   `bson:"unitPrice" json:"unitPrice"`
	TotalCost    float64   `bson:"totalCost" json:"totalCost"`
	CreatedBy    string    `bson:"createdBy" json:"createdBy"`
	UpdatedBy    string    `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Sale records stock issued to a customer. UnitPrice is the price after any discount.
type Sale struct {
	SaleID          string    `bson:"saleId" json:"saleId"`
	SaleDate        time.Time `bson:"saleDate" json:"saleDate"`
	ItemNumber      int       `bson:"itemNumber" json:"itemNumber"`
	ItemName        string    `bson:"itemName" json:"itemName"`
	CustomerID      string    `bson:"customerId" json:"customerId"`
	CustomerName    string    `bson:"customerName" json:"customerName"`
	Quantity        int       `bson:"quantity" json:"quantity"`
	UnitPrice       float64   `bson:"unitPrice" json:"unitPrice"`
	DiscountPercent float64   `bson:"discountPercent" json:"discountPercent"`
	Total           float64   `bson:"total" json:"total"`
	CreatedBy       string    `bson:"createdBy" json:"createdBy"`
	UpdatedBy       string    `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	CreatedAt       time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt" json:"updatedAt"`
}

// PurchaseFilter narrows purchase listings. Zero values disable a criterion.
type PurchaseFilter struct {
	From     time.Time
	To       time.Time
	VendorID string
	Limit    int
}

// SaleFilter narrows sale listings. Zero values disable a criterion.
type SaleFilter struct {
	From       time.Time
	To         time.Time
	CustomerID string
	Limit      int
}

// RoundMoney rounds an amount to cents.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
