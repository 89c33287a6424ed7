// Package memory is an in-process Store used by tests and by local runs with
// STORE_DRIVER=memory. Each call is individually atomic; a unit of work is not,
// matching the MongoDB backend without transactions.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store keeps every collection in maps guarded by a single mutex.
type Store struct {
	mu        sync.RWMutex
	items     map[int]models.Item
	vendors   map[string]models.Vendor
	customers map[string]models.Customer
	purchases map[string]models.Purchase
	sales     map[string]models.Sale
	sequences map[string]int64
	failures  map[string]error
	logger    *zap.Logger
}

// New returns an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		items:     make(map[int]models.Item),
		vendors:   make(map[string]models.Vendor),
		customers: make(map[string]models.Customer),
		purchases: make(map[string]models.Purchase),
		sales:     make(map[string]models.Sale),
		sequences: make(map[string]int64),
		failures:  make(map[string]error),
		logger:    logger,
	}
}

// FailOn makes the next call of the named operation return err. The name is a
// method name such as "AdjustStock", or "compensate" to fail the next undo.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) injected(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

// WithTx runs fn and undoes its writes when it fails.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx := &memoryTx{store: s, log: &repository.UndoLog{}}
	if err := fn(ctx, tx); err != nil {
		return tx.log.Rollback(ctx, err, s.logger)
	}
	return nil
}

func (s *Store) NextSequence(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("NextSequence"); err != nil {
		return 0, err
	}
	s.sequences[name]++
	return s.sequences[name], nil
}

func (s *Store) GetItem(_ context.Context, itemNumber int) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[itemNumber]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (s *Store) GetVendor(_ context.Context, id string) (*models.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vendor, ok := s.vendors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &vendor, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	customer, ok := s.customers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) GetPurchase(_ context.Context, purchaseID string) (*models.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	purchase, ok := s.purchases[purchaseID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &purchase, nil
}

func (s *Store) GetSale(_ context.Context, saleID string) (*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[saleID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) ListItems(_ context.Context, activeOnly bool) ([]models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]models.Item, 0, len(s.items))
	for _, item := range s.items {
		if activeOnly && item.Status != models.ItemActive {
			continue
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b models.Item) int {
		if c := strings.Compare(a.ItemName, b.ItemName); c != 0 {
			return c
		}
		return a.ItemNumber - b.ItemNumber
	})
	return items, nil
}

func (s *Store) ListPurchases(_ context.Context, filter models.PurchaseFilter) ([]models.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		if !inRange(p.PurchaseDate, filter.From, filter.To) {
			continue
		}
		if filter.VendorID != "" && p.VendorID != filter.VendorID {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b models.Purchase) int {
		if c := b.PurchaseDate.Compare(a.PurchaseDate); c != 0 {
			return c
		}
		return strings.Compare(b.PurchaseID, a.PurchaseID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) ListSales(_ context.Context, filter models.SaleFilter) ([]models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if !inRange(sale.SaleDate, filter.From, filter.To) {
			continue
		}
		if filter.CustomerID != "" && sale.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, sale)
	}
	slices.SortFunc(out, func(a, b models.Sale) int {
		if c := b.SaleDate.Compare(a.SaleDate); c != 0 {
			return c
		}
		return strings.Compare(b.SaleID, a.SaleID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) QuantityTotals(_ context.Context) (map[int]repository.QuantityTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := make(map[int]repository.QuantityTotals)
	for _, p := range s.purchases {
		t := totals[p.ItemNumber]
		t.Purchased += p.Quantity
		totals[p.ItemNumber] = t
	}
	for _, sale := range s.sales {
		t := totals[sale.ItemNumber]
		t.Sold += sale.Quantity
		totals[sale.ItemNumber] = t
	}
	return totals, nil
}

func (s *Store) SaveItem(_ context.Context, item models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.Status == "" {
		item.Status = models.ItemActive
	}
	s.items[item.ItemNumber] = item
	return nil
}

func (s *Store) SaveVendor(_ context.Context, vendor models.Vendor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors[vendor.ID] = vendor
	return nil
}

func (s *Store) SaveCustomer(_ context.Context, customer models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.ID] = customer
	return nil
}

// DeleteItem removes an item, as the item directory would.
func (s *Store) DeleteItem(_ context.Context, itemNumber int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, itemNumber)
}

func (s *Store) Close(context.Context) error { return nil }

func inRange(at, from, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && at.After(to) {
		return false
	}
	return true
}

type memoryTx struct {
	store *Store
	log   *repository.UndoLog
}

func (t *memoryTx) GetItem(ctx context.Context, itemNumber int) (*models.Item, error) {
	return t.store.GetItem(ctx, itemNumber)
}

func (t *memoryTx) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	return t.store.GetVendor(ctx, id)
}

func (t *memoryTx) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	return t.store.GetCustomer(ctx, id)
}

func (t *memoryTx) GetPurchase(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	return t.store.GetPurchase(ctx, purchaseID)
}

func (t *memoryTx) GetSale(ctx context.Context, saleID string) (*models.Sale, error) {
	return t.store.GetSale(ctx, saleID)
}

func (t *memoryTx) AdjustStock(_ context.Context, itemNumber int, delta int, guard bool) (int, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("AdjustStock"); err != nil {
		return 0, err
	}
	item, ok := s.items[itemNumber]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if guard && delta < 0 && item.Stock+delta < 0 {
		return item.Stock, repository.ErrStockGuard
	}
	item.Stock += delta
	item.UpdatedAt = time.Now().UTC()
	s.items[itemNumber] = item

	t.log.Push(fmt.Sprintf("stock %+d on item %d", delta, itemNumber), func(context.Context) error {
		return s.compensate(func() {
			if cur, ok := s.items[itemNumber]; ok {
				cur.Stock -= delta
				s.items[itemNumber] = cur
			}
		})
	})
	return item.Stock, nil
}

func (t *memoryTx) InsertPurchase(_ context.Context, purchase models.Purchase) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("InsertPurchase"); err != nil {
		return err
	}
	if _, exists := s.purchases[purchase.PurchaseID]; exists {
		return repository.ErrDuplicateKey
	}
	s.purchases[purchase.PurchaseID] = purchase

	t.log.Push("insert purchase "+purchase.PurchaseID, func(context.Context) error {
		return s.compensate(func() { delete(s.purchases, purchase.PurchaseID) })
	})
	return nil
}

func (t *memoryTx) ReplacePurchase(_ context.Context, purchase models.Purchase) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("ReplacePurchase"); err != nil {
		return err
	}
	prev, ok := s.purchases[purchase.PurchaseID]
	if !ok {
		return repository.ErrNotFound
	}
	s.purchases[purchase.PurchaseID] = purchase

	t.log.Push("update purchase "+purchase.PurchaseID, func(context.Context) error {
		return s.compensate(func() { s.purchases[prev.PurchaseID] = prev })
	})
	return nil
}

func (t *memoryTx) DeletePurchase(_ context.Context, purchaseID string) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("DeletePurchase"); err != nil {
		return err
	}
	prev, ok := s.purchases[purchaseID]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.purchases, purchaseID)

	t.log.Push("delete purchase "+purchaseID, func(context.Context) error {
		return s.compensate(func() { s.purchases[prev.PurchaseID] = prev })
	})
	return nil
}

func (t *memoryTx) InsertSale(_ context.Context, sale models.Sale) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("InsertSale"); err != nil {
		return err
	}
	if _, exists := s.sales[sale.SaleID]; exists {
		return repository.ErrDuplicateKey
	}
	s.sales[sale.SaleID] = sale

	t.log.Push("insert sale "+sale.SaleID, func(context.Context) error {
		return s.compensate(func() { delete(s.sales, sale.SaleID) })
	})
	return nil
}

func (t *memoryTx) ReplaceSale(_ context.Context, sale models.Sale) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("ReplaceSale"); err != nil {
		return err
	}
	prev, ok := s.sales[sale.SaleID]
	if !ok {
		return repository.ErrNotFound
	}
	s.sales[sale.SaleID] = sale

	t.log.Push("update sale "+sale.SaleID, func(context.Context) error {
		return s.compensate(func() { s.sales[prev.SaleID] = prev })
	})
	return nil
}

func (t *memoryTx) DeleteSale(_ context.Context, saleID string) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("DeleteSale"); err != nil {
		return err
	}
	prev, ok := s.sales[saleID]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.sales, saleID)

	t.log.Push("delete sale "+saleID, func(context.Context) error {
		return s.compensate(func() { s.sales[prev.SaleID] = prev })
	})
	return nil
}

func (s *Store) compensate(apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("compensate"); err != nil {
		return err
	}
	apply()
	return nil
}
