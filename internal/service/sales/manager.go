// Package sales records stock issued to customers. A sale never takes more
// units than the item has on hand at the time it is checked.
package sales

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

// CreateInput carries a new sale. UnitPrice is the list price before discount.
type CreateInput struct {
	ItemNumber    int       `json:"itemNumber" validate:"required"`
	CustomerID    string    `json:"customerId" validate:"required"`
	SaleDate      time.Time `json:"saleDate" validate:"required"`
	Quantity      int       `json:"quantity" validate:"min=1"`
	UnitPrice     float64   `json:"unitPrice" validate:"finite,gt=0"`
	ApplyDiscount bool      `json:"applyDiscount"`
}

// UpdateInput carries the editable fields of a sale. UnitPrice is stored as the
// final price; the item discount is not applied again.
type UpdateInput struct {
	Quantity  int     `json:"quantity" validate:"min=1"`
	UnitPrice float64 `json:"unitPrice" validate:"finite,gt=0"`
}

// Manager implements the sale lifecycle.
type Manager struct {
	store  repository.Store
	ledger *stock.Ledger
	ids    *sequence.Allocator
	logger *zap.Logger
	now    func() time.Time
}

// NewManager constructs a sale manager.
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

// FinalUnitPrice returns unitPrice reduced by discountPercent when apply is set.
// The result is not rounded; only the sale total is rounded to cents.
func FinalUnitPrice(unitPrice, discountPercent float64, apply bool) float64 {
	if !apply || discountPercent <= 0 {
		return unitPrice
	}
	return unitPrice * (1 - discountPercent/100)
}

// Create validates, checks availability, stores the sale and takes its quantity
// out of stock.
func (m *Manager) Create(ctx context.Context, in CreateInput, actor models.Actor) (_ *models.Sale, err error) {
	const op = "sale.create"
	defer func() { metrics.RecordOperation(op, err) }()

	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	if _, err := m.store.GetItem(ctx, in.ItemNumber); err != nil {
		return nil, lookupErr(op, "item", strconv.Itoa(in.ItemNumber), err)
	}
	customer, err := m.store.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, lookupErr(op, "customer", in.CustomerID, err)
	}
	item, err := m.ledger.CheckAvailability(ctx, m.store, in.ItemNumber, in.Quantity)
	if err != nil {
		return nil, errs.Wrap(op, "check availability", err)
	}

	discount := 0.0
	if in.ApplyDiscount {
		discount = item.DiscountPercent
	}
	price := FinalUnitPrice(in.UnitPrice, discount, in.ApplyDiscount)

	saleID, err := m.ids.NextSaleID(ctx)
	if err != nil {
		return nil, errs.Persistence(op, "allocate sale id", err)
	}

	now := m.now().UTC()
	sale := models.Sale{
		SaleID:          saleID,
		SaleDate:        in.SaleDate,
		ItemNumber:      item.ItemNumber,
		ItemName:        item.ItemName,
		CustomerID:      in.CustomerID,
		CustomerName:    customer.FullName,
		Quantity:        in.Quantity,
		UnitPrice:       price,
		DiscountPercent: discount,
		Total:           models.RoundMoney(float64(in.Quantity) * price),
		CreatedBy:       actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var stockAfter int
	err = m.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.InsertSale(ctx, sale); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return &errs.ConflictError{Entity: "sale", Key: saleID, Reason: "id already in use"}
			}
			return errs.Wrap(op, "insert sale", err)
		}
		s, err := m.ledger.ApplySaleDelta(ctx, tx, item.ItemNumber, -in.Quantity)
		if err != nil {
			return errs.Wrap(op, "decrease stock", err)
		}
		stockAfter = s
		return nil
	})
	if err != nil {
		m.logFailure(op, saleID, err)
		return nil, err
	}

	metrics.RecordStockDelta(-in.Quantity)
	m.logger.Info("sale recorded",
		zap.String("sale_id", saleID),
		zap.Int("item_number", item.ItemNumber),
		zap.Int("delta", -in.Quantity),
		zap.Int("stock", stockAfter),
		zap.Float64("discount_percent", discount),
		zap.String("actor", actor.ID))
	return &sale, nil
}

// Update changes quantity and unit price. Raising the quantity requires the
// extra units to be on hand.
func (m *Manager) Update(ctx context.Context, saleID string, in UpdateInput, actor models.Actor) (_ *models.Sale, err error) {
	const op = "sale.update"
	defer func() { metrics.RecordOperation(op, err) }()

	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	existing, err := m.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, lookupErr(op, "sale", saleID, err)
	}

	extra := in.Quantity - existing.Quantity
	if extra > 0 {
		if _, err := m.ledger.CheckAvailability(ctx, m.store, existing.ItemNumber, extra); err != nil {
			return nil, errs.Wrap(op, "check availability", err)
		}
	} else if _, err := m.store.GetItem(ctx, existing.ItemNumber); err != nil {
		return nil, lookupErr(op, "item", strconv.Itoa(existing.ItemNumber), err)
	}

	updated := *existing
	updated.Quantity = in.Quantity
	updated.UnitPrice = in.UnitPrice
	updated.Total = models.RoundMoney(float64(in.Quantity) * in.UnitPrice)
	updated.UpdatedBy = actor.ID
	updated.UpdatedAt = m.now().UTC()

	stockAfter := -1
	err = m.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if extra != 0 {
			s, err := m.ledger.ApplySaleDelta(ctx, tx, existing.ItemNumber, -extra)
			if err != nil {
				return errs.Wrap(op, "adjust stock", err)
			}
			stockAfter = s
		}
		if err := tx.ReplaceSale(ctx, updated); err != nil {
			return lookupErr(op, "sale", saleID, err)
		}
		return nil
	})
	if err != nil {
		m.logFailure(op, saleID, err)
		return nil, err
	}

	metrics.RecordStockDelta(-extra)
	m.logger.Info("sale updated",
		zap.String("sale_id", saleID),
		zap.Int("item_number", existing.ItemNumber),
		zap.Int("delta", -extra),
		zap.Int("stock", stockAfter),
		zap.String("actor", actor.ID))
	return &updated, nil
}

// Delete returns the sale's quantity to stock and removes it. A missing item is
// tolerated.
func (m *Manager) Delete(ctx context.Context, saleID string, actor models.Actor) (_ string, err error) {
	const op = "sale.delete"
	defer func() { metrics.RecordOperation(op, err) }()

	existing, err := m.store.GetSale(ctx, saleID)
	if err != nil {
		return "", lookupErr(op, "sale", saleID, err)
	}

	itemMissing := false
	err = m.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := m.ledger.ApplyDelta(ctx, tx, existing.ItemNumber, existing.Quantity)
		var nf *errs.NotFoundError
		switch {
		case errors.As(err, &nf):
			itemMissing = true
		case err != nil:
			return errs.Wrap(op, "restore stock", err)
		}
		if err := tx.DeleteSale(ctx, saleID); err != nil {
			return lookupErr(op, "sale", saleID, err)
		}
		return nil
	})
	if err != nil {
		m.logFailure(op, saleID, err)
		return "", err
	}

	if itemMissing {
		m.logger.Warn("sale deleted without stock reversal, item no longer exists",
			zap.String("sale_id", saleID), zap.Int("item_number", existing.ItemNumber))
	} else {
		metrics.RecordStockDelta(existing.Quantity)
	}
	m.logger.Info("sale deleted",
		zap.String("sale_id", saleID),
		zap.Int("item_number", existing.ItemNumber),
		zap.Int("delta", existing.Quantity),
		zap.String("actor", actor.ID))
	return existing.SaleID, nil
}

// Get returns one sale.
func (m *Manager) Get(ctx context.Context, saleID string) (*models.Sale, error) {
	sale, err := m.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, lookupErr("sale.get", "sale", saleID, err)
	}
	return sale, nil
}

// List returns sales newest first.
func (m *Manager) List(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error) {
	sales, err := m.store.ListSales(ctx, filter)
	if err != nil {
		return nil, errs.Persistence("sale.list", "load sales", err)
	}
	return sales, nil
}

func (m *Manager) logFailure(op, saleID string, err error) {
	var pe *errs.PersistenceError
	if errors.As(err, &pe) {
		m.logger.Error("sale write failed",
			zap.String("op", op),
			zap.String("sale_id", saleID),
			zap.Bool("rolled_back", pe.RolledBack),
			zap.Strings("pending", pe.Pending),
			zap.Error(err))
		return
	}
	m.logger.Info("sale rejected", zap.String("op", op), zap.String("sale_id", saleID), zap.Error(err))
}

func lookupErr(op, entity, key string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errs.NotFound(entity, key)
	}
	return errs.Wrap(op, "load "+entity, err)
}
