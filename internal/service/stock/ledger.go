// Package stock owns the on-hand quantity of items. Purchase and sale managers
// are its only callers; it is never exposed to HTTP handlers directly.
package stock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/domain/errs"
	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/metrics"
	"github.com/stockbook/stockbook/internal/repository"
)

// GuardMode selects how stock decrements are protected against concurrent sales.
type GuardMode string

const (
	// GuardReadCheck checks availability on a prior read and then decrements
	// unconditionally. Two concurrent sales may both pass the check.
	GuardReadCheck GuardMode = "read-check"
	// GuardAtomic additionally makes the decrement conditional on stock >= quantity
	// in the store, reporting a ConflictError when a concurrent write won.
	GuardAtomic GuardMode = "atomic"
)

// ParseGuardMode validates a configured mode name.
func ParseGuardMode(value string) (GuardMode, error) {
	switch GuardMode(value) {
	case GuardReadCheck, GuardAtomic:
		return GuardMode(value), nil
	case "":
		return GuardReadCheck, nil
	}
	return "", fmt.Errorf("unknown stock guard mode %q", value)
}

// Ledger applies and audits stock movements.
type Ledger struct {
	store  repository.Store
	mode   GuardMode
	logger *zap.Logger
}

// NewLedger wires a ledger over the store.
func NewLedger(store repository.Store, mode GuardMode, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = GuardReadCheck
	}
	return &Ledger{store: store, mode: mode, logger: logger}
}

// Mode reports the configured guard mode.
func (l *Ledger) Mode() GuardMode { return l.mode }

// ApplyDelta adds delta to the item's stock within tx and returns the new stock.
// It never refuses to go negative; purchases and reversals use it.
func (l *Ledger) ApplyDelta(ctx context.Context, tx repository.Tx, itemNumber int, delta int) (int, error) {
	return l.apply(ctx, tx, itemNumber, delta, false)
}

// ApplySaleDelta is ApplyDelta for sale-driven movements. In GuardAtomic mode a
// withdrawal is refused by the store when it would leave stock negative.
func (l *Ledger) ApplySaleDelta(ctx context.Context, tx repository.Tx, itemNumber int, delta int) (int, error) {
	return l.apply(ctx, tx, itemNumber, delta, l.mode == GuardAtomic && delta < 0)
}

func (l *Ledger) apply(ctx context.Context, tx repository.Tx, itemNumber int, delta int, guard bool) (int, error) {
	stock, err := tx.AdjustStock(ctx, itemNumber, delta, guard)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return 0, errs.NotFound("item", strconv.Itoa(itemNumber))
	case errors.Is(err, repository.ErrStockGuard):
		return stock, &errs.ConflictError{
			Entity: "item",
			Key:    strconv.Itoa(itemNumber),
			Reason: fmt.Sprintf("stock changed concurrently, %d now available", stock),
		}
	case err != nil:
		return 0, err
	}

	l.logger.Debug("stock adjusted", zap.Int("item_number", itemNumber), zap.Int("delta", delta), zap.Int("stock", stock))
	return stock, nil
}

// CheckAvailability loads the item and fails with InsufficientStockError when
// fewer than requested units are on hand.
func (l *Ledger) CheckAvailability(ctx context.Context, r repository.Reader, itemNumber int, requested int) (*models.Item, error) {
	item, err := r.GetItem(ctx, itemNumber)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.NotFound("item", strconv.Itoa(itemNumber))
	}
	if err != nil {
		return nil, err
	}
	if item.Stock < requested {
		return item, &errs.InsufficientStockError{ItemNumber: itemNumber, Available: item.Stock, Requested: requested}
	}
	return item, nil
}

// Audit compares every item's stock with its opening stock plus purchases minus
// sales and returns the items that disagree, ordered by item number.
func (l *Ledger) Audit(ctx context.Context) ([]models.StockDrift, error) {
	items, err := l.store.ListItems(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	totals, err := l.store.QuantityTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load quantity totals: %w", err)
	}

	var drifts []models.StockDrift
	for _, item := range items {
		t := totals[item.ItemNumber]
		expected := item.OpeningStock + t.Purchased - t.Sold
		if expected == item.Stock {
			continue
		}
		drifts = append(drifts, models.StockDrift{
			ItemNumber: item.ItemNumber,
			ItemName:   item.ItemName,
			Stock:      item.Stock,
			Opening:    item.OpeningStock,
			Expected:   expected,
			Purchased:  t.Purchased,
			Sold:       t.Sold,
		})
	}
	slices.SortFunc(drifts, func(a, b models.StockDrift) int { return a.ItemNumber - b.ItemNumber })

	metrics.StockDriftItems.Set(float64(len(drifts)))
	for _, d := range drifts {
		l.logger.Warn("stock drift detected",
			zap.Int("item_number", d.ItemNumber),
			zap.Int("stock", d.Stock),
			zap.Int("expected", d.Expected))
	}
	return drifts, nil
}
