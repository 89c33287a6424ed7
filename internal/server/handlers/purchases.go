package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/service/purchases"
)

// PurchaseService is the purchase lifecycle used by the HTTP layer.
type PurchaseService interface {
	Create(ctx context.Context, in purchases.CreateInput, actor models.Actor) (*models.Purchase, error)
	Update(ctx context.Context, purchaseID string, in purchases.UpdateInput, actor models.Actor) (*models.Purchase, error)
	Delete(ctx context.Context, purchaseID string, actor models.Actor) (string, error)
	Get(ctx context.Context, purchaseID string) (*models.Purchase, error)
	List(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error)
}

// PurchaseHandler exposes purchases over HTTP.
type PurchaseHandler struct {
	svc    PurchaseService
	logger *zap.Logger
}

// NewPurchaseHandler constructs the HTTP handler adapter.
func NewPurchaseHandler(svc PurchaseService, logger *zap.Logger) *PurchaseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseHandler{svc: svc, logger: logger}
}

type purchaseForm struct {
	ItemNumber   formValue `form:"itemNumber" json:"itemNumber"`
	VendorID     formValue `form:"vendor" json:"vendor"`
	PurchaseDate formValue `form:"purchaseDate" json:"purchaseDate"`
	Quantity     formValue `form:"quantity" json:"quantity"`
	UnitPrice    formValue `form:"unitPrice" json:"unitPrice"`
}

func (f purchaseForm) createInput() (purchases.CreateInput, error) {
	var in purchases.CreateInput
	var err error
	if f.ItemNumber != "" {
		if in.ItemNumber, err = parseInt("itemNumber", string(f.ItemNumber)); err != nil {
			return in, err
		}
	}
	in.VendorID = string(f.VendorID)
	if in.PurchaseDate, err = parseDate("purchaseDate", string(f.PurchaseDate)); err != nil {
		return in, err
	}
	update, err := f.updateInput()
	in.Quantity, in.UnitPrice = update.Quantity, update.UnitPrice
	return in, err
}

func (f purchaseForm) updateInput() (purchases.UpdateInput, error) {
	var in purchases.UpdateInput
	var err error
	if in.Quantity, err = parseInt("quantity", string(f.Quantity)); err != nil {
		return in, err
	}
	if in.UnitPrice, err = parseFloat("unitPrice", string(f.UnitPrice)); err != nil {
		return in, err
	}
	return in, nil
}

// List returns purchases filtered by from/to/vendor/limit query parameters.
func (h *PurchaseHandler) List(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	list, err := h.svc.List(c.Request.Context(), models.PurchaseFilter{From: q.From, To: q.To, VendorID: c.Query("vendor"), Limit: q.Limit})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": list})
}

// Get returns one purchase.
func (h *PurchaseHandler) Get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Create records a purchase.
func (h *PurchaseHandler) Create(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody{Error: "missing " + ActorHeader, Code: "unauthenticated"})
		return
	}
	var form purchaseForm
	if err := c.ShouldBind(&form); err != nil {
		h.logger.Warn("invalid purchase payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body", Code: "validation"})
		return
	}
	in, err := form.createInput()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	p, err := h.svc.Create(c.Request.Context(), in, who)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Update edits quantity and unit price.
func (h *PurchaseHandler) Update(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody{Error: "missing " + ActorHeader, Code: "unauthenticated"})
		return
	}
	var form purchaseForm
	if err := c.ShouldBind(&form); err != nil {
		h.logger.Warn("invalid purchase payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body", Code: "validation"})
		return
	}
	in, err := form.updateInput()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	p, err := h.svc.Update(c.Request.Context(), c.Param("id"), in, who)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete removes a purchase.
func (h *PurchaseHandler) Delete(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody{Error: "missing " + ActorHeader, Code: "unauthenticated"})
		return
	}
	id, err := h.svc.Delete(c.Request.Context(), c.Param("id"), who)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id, "message": "Purchase " + id + " deleted"})
}
