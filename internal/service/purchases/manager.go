// Package purchases records stock received from vendors and keeps item stock in
// step with every purchase create, update and delete.
package purchases

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/domain/errs"
	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/metrics"
	"github.com/stockbook/stockbook/internal/repository"
	"github.com/stockbook/stockbook/internal/service/sequence"
	"github.com/stockbook/stockbook/internal/service/stock"
	"github.com/stockbook/stockbook/internal/service/validation"
)

// CreateInput carries a new purchase.
type CreateInput struct {
	ItemNumber   int       `json:"itemNumber" validate:"required"`
	VendorID     string    `json:"vendorId" validate:"required"`
	PurchaseDate time.Time `json:"purchaseDate" validate:"required"`
	Quantity     int       `json:"quantity" validate:"min=1"`
	UnitPrice    float64   `json:"unitPrice" validate:"finite,gt=0"`
}

// UpdateInput carries the editable fields of a purchase.
type UpdateInput struct {
	Quantity  int     `json:"quantity" validate:"min=1"`
	UnitPrice float64 `json:"unitPrice" validate:"finite,gt=0"`
}

// Manager implements the purchase lifecycle.
type Manager struct {
	store  repository.Store
	ledger *stock.Ledger
	ids    *sequence.Allocator
	logger *zap.Logger
	now    func() time.Time
}

// NewManager constructs a purchase manager.
func NewManager(store repository.Store, ledger *stock.Ledger, ids *sequence.Allocator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		ledger: ledger,
		ids:    ids,
		logger: logger,
		now:    time.Now,
	}
}

// Create validates and stores a purchase, then adds its quantity to stock.
func (m *Manager) Create(ctx context.Context, in CreateInput, actor models.Actor) (_ *models.Purchase, err error) {
	const op = "purchase.create"
	defer func() { metrics.RecordOperation(op, err) }()

	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	item, err := m.store.GetItem(ctx, in.ItemNumber)
	if err != nil {
		return nil, lookupErr(op, "item", strconv.Itoa(in.ItemNumber), err)
	}
	if _, err := m.store.GetVendor(ctx, in.VendorID); err != nil {
		return nil, lookupErr(op, "vendor", in.VendorID, err)
	}

	purchaseID, err := m.ids.NextPurchaseID(ctx)
	if err != nil {
		return nil, errs.Persistence(op, "allocate purchase id", err)
	}

	now := m.now().UTC()
	purchase := models.Purchase{
		PurchaseID:   purchaseID,
		PurchaseDate: in.PurchaseDate,
		ItemNumber:   item.ItemNumber,
		ItemName:     item.ItemName,
		VendorID:     in.VendorID,
		Quantity:     in.Quantity,
		UnitPrice:    in.UnitPrice,
		TotalCost:    models.RoundMoney(float64(in.Quantity) * in.UnitPrice),
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var stockAfter int
	err = m.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.InsertPurchase(ctx, purchase); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return &errs.ConflictError{Entity: "purchase", Key: purchaseID, Reason: "id already in use"}
			}
			return errs.Wrap(op, "insert purchase", err)
		}
		s, err := m.ledger.ApplyDelta(ctx, tx, item.ItemNumber, in.Quantity)
		if err != nil {
			return errs.Wrap(op, "increase stock", err)
		}
		stockAfter = s
		return nil
	})
	if err != nil {
		m.logFailure(op, purchaseID, err)
		return nil, err
	}

	metrics.RecordStockDelta(in.Quantity)
	m.logger.Info("purchase recorded",
		zap.String("purchase_id", purchaseID),
		zap.Int("item_number", item.ItemNumber),
		zap.Int("delta", in.Quantity),
		zap.Int("stock", stockAfter),
		zap.String("actor", actor.ID))
	return &purchase, nil
}

// Update changes quantity and unit price, moving stock by the quantity difference.
func (m *Manager) Update(ctx context.Context, purchaseID string, in UpdateInput, actor models.Actor) (_ *models.Purchase, err error) {
	const op = "purchase.update"
	defer func() { metrics.RecordOperation(op, err) }()

	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	existing, err := m.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, lookupErr(op, "purchase", purchaseID, err)
	}
	if _, err := m.store.GetItem(ctx, existing.ItemNumber); err != nil {
		return nil, lookupErr(op, "item", strconv.Itoa(existing.ItemNumber), err)
	}

	updated := *existing
	updated.Quantity = in.Quantity
	updated.UnitPrice = in.UnitPrice
	updated.TotalCost = models.RoundMoney(float64(in.Quantity) * in.UnitPrice)
	updated.UpdatedBy = actor.ID
	updated.UpdatedAt = m.now().UTC()

	delta := in.Quantity - existing.Quantity
	stockAfter := -1
	err = m.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if delta != 0 {
			s, err := m.ledger.ApplyDelta(ctx, tx, existing.ItemNumber, delta)
			if err != nil {
				return errs.Wrap(op, "adjust stock", err)
			}
			stockAfter = s
		}
		if err := tx.ReplacePurchase(ctx, updated); err != nil {
			return lookupErr(op, "purchase", purchaseID, err)
		}
		return nil
	})
	if err != nil {
		m.logFailure(op, purchaseID, err)
		return nil, err
	}

	metrics.RecordStockDelta(delta)
	m.logger.Info("purchase updated",
		zap.String("purchase_id", purchaseID),
		zap.Int("item_number", existing.ItemNumber),
		zap.Int("delta", delta),
		zap.Int("stock", stockAfter),
		zap.String("actor", actor.ID))
	return &updated, nil
}

// Delete reverses the purchase's stock effect and removes it. A missing item is
// tolerated so purchases of items removed from the directory can still be deleted.
func (m *Manager) Delete(ctx context.Context, purchaseID string, actor models.Actor) (_ string, err error) {
	const op = "purchase.delete"
	defer func() { metrics.RecordOperation(op, err) }()

	existing, err := m.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return "", lookupErr(op, "purchase", purchaseID, err)
	}

	itemMissing := false
	err = m.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := m.ledger.ApplyDelta(ctx, tx, existing.ItemNumber, -existing.Quantity)
		var nf *errs.NotFoundError
		switch {
		case errors.As(err, &nf):
			itemMissing = true
		case err != nil:
			return errs.Wrap(op, "decrease stock", err)
		}
		if err := tx.DeletePurchase(ctx, purchaseID); err != nil {
			return lookupErr(op, "purchase", purchaseID, err)
		}
		return nil
	})
	if err != nil {
		m.logFailure(op, purchaseID, err)
		return "", err
	}

	if itemMissing {
		m.logger.Warn("purchase deleted without stock reversal, item no longer exists",
			zap.String("purchase_id", purchaseID), zap.Int("item_number", existing.ItemNumber))
	} else {
		metrics.RecordStockDelta(-existing.Quantity)
	}
	m.logger.Info("purchase deleted",
		zap.String("purchase_id", purchaseID),
		zap.Int("item_number", existing.ItemNumber),
		zap.Int("delta", -existing.Quantity),
		zap.String("actor", actor.ID))
	return existing.PurchaseID, nil
}

// Get returns one purchase.
func (m *Manager) Get(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	purchase, err := m.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, lookupErr("purchase.get", "purchase", purchaseID, err)
	}
	return purchase, nil
}

// List returns purchases newest first.
func (m *Manager) List(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error) {
	purchases, err := m.store.ListPurchases(ctx, filter)
	if err != nil {
		return nil, errs.Persistence("purchase.list", "load purchases", err)
	}
	return purchases, nil
}

func (m *Manager) logFailure(op, purchaseID string, err error) {
	var pe *errs.PersistenceError
	if errors.As(err, &pe) {
		m.logger.Error("purchase write failed",
			zap.String("op", op),
			zap.String("purchase_id", purchaseID),
			zap.Bool("rolled_back", pe.RolledBack),
			zap.Strings("pending", pe.Pending),
			zap.Error(err))
		return
	}
	m.logger.Info("purchase rejected", zap.String("op", op), zap.String("purchase_id", purchaseID), zap.Error(err))
}

func lookupErr(op, entity, key string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errs.NotFound(entity, key)
	}
	return errs.Wrap(op, "load "+entity, err)
}
