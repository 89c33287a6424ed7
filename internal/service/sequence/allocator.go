// Package sequence issues the human-readable ids of purchases and sales.
package sequence

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	PurchaseCounter = "purchaseId"
	SaleCounter     = "saleId"

	PurchasePrefix = "PUR"
	SalePrefix     = "SALE"
)

// Counter is the storage primitive behind the allocator. NextSequence must be a
// single atomic increment-and-return on the backing store.
type Counter interface {
	NextSequence(ctx context.Context, name string) (int64, error)
}

// Allocator hands out monotonically increasing ids.
type Allocator struct {
	counter Counter
	logger  *zap.Logger
}

// NewAllocator wires an allocator on top of the store counter.
func NewAllocator(counter Counter, logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{counter: counter, logger: logger}
}

// NextID returns the next value of the named counter.
func (a *Allocator) NextID(ctx context.Context, counterName string) (int64, error) {
	value, err := a.counter.NextSequence(ctx, counterName)
	if err != nil {
		return 0, fmt.Errorf("allocate %s: %w", counterName, err)
	}
	a.logger.Debug("sequence allocated", zap.String("counter", counterName), zap.Int64("value", value))
	return value, nil
}

// NextPurchaseID returns the next PUR#### id.
func (a *Allocator) NextPurchaseID(ctx context.Context) (string, error) {
	n, err := a.NextID(ctx, PurchaseCounter)
	if err != nil {
		return "", err
	}
	return Format(PurchasePrefix, n), nil
}

// NextSaleID returns the next SALE#### id.
func (a *Allocator) NextSaleID(ctx context.Context) (string, error) {
	n, err := a.NextID(ctx, SaleCounter)
	if err != nil {
		return "", err
	}
	return Format(SalePrefix, n), nil
}

// Format renders prefix plus at least four zero-padded digits.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s%04d", prefix, n)
}
