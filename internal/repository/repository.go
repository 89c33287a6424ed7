// Package repository declares the storage ports of the stock ledger. Backends live
// in the mongodb and memory subpackages.
package repository

import (
	"context"
	"errors"

	"github.com/stockbook/stockbook/internal/domain/models"
)

var (
	// ErrNotFound is returned when a keyed lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrStockGuard is returned by a guarded AdjustStock when the result would be negative.
	ErrStockGuard = errors.New("stock guard rejected adjustment")
	// ErrDuplicateKey is returned when an insert collides with an existing business key.
	ErrDuplicateKey = errors.New("duplicate key")
)

// QuantityTotals holds the lifetime purchased and sold quantities of an item.
type QuantityTotals struct {
	Purchased int
	Sold      int
}

// Reader groups the lookups available both inside and outside a unit of work.
type Reader interface {
	GetItem(ctx context.Context, itemNumber int) (*models.Item, error)
	GetVendor(ctx context.Context, id string) (*models.Vendor, error)
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	GetPurchase(ctx context.Context, purchaseID string) (*models.Purchase, error)
	GetSale(ctx context.Context, saleID string) (*models.Sale, error)
}

// Tx is the write surface of a unit of work. Every write made through it is
// either committed together with the others or undone when the unit fails.
type Tx interface {
	Reader

	// AdjustStock adds delta to the item's stock and returns the new value. With
	// guard set, a negative delta is applied only if the result stays >= 0, and
	// ErrStockGuard is returned otherwise.
	AdjustStock(ctx context.Context, itemNumber int, delta int, guard bool) (int, error)

	InsertPurchase(ctx context.Context, purchase models.Purchase) error
	ReplacePurchase(ctx context.Context, purchase models.Purchase) error
	DeletePurchase(ctx context.Context, purchaseID string) error

	InsertSale(ctx context.Context, sale models.Sale) error
	ReplaceSale(ctx context.Context, sale models.Sale) error
	DeleteSale(ctx context.Context, saleID string) error
}

// Store is the full storage port used by the services.
type Store interface {
	Reader

	// WithTx runs fn as one unit of work.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// NextSequence atomically increments the named counter and returns its new
	// value, creating it at 1 when absent.
	NextSequence(ctx context.Context, name string) (int64, error)

	ListItems(ctx context.Context, activeOnly bool) ([]models.Item, error)
	ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error)
	ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error)
	QuantityTotals(ctx context.Context) (map[int]QuantityTotals, error)

	SaveItem(ctx context.Context, item models.Item) error
	SaveVendor(ctx context.Context, vendor models.Vendor) error
	SaveCustomer(ctx context.Context, customer models.Customer) error

	Close(ctx context.Context) error
}
