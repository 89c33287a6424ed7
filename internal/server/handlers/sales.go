package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/service/sales"
)

// SaleService is the sale lifecycle used by the HTTP layer.
type SaleService interface {
	Create(ctx context.Context, in sales.CreateInput, actor models.Actor) (*models.Sale, error)
	Update(ctx context.Context, saleID string, in sales.UpdateInput, actor models.Actor) (*models.Sale, error)
	Delete(ctx context.Context, saleID string, actor models.Actor) (string, error)
	Get(ctx context.Context, saleID string) (*models.Sale, error)
	List(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error)
}

// SaleHandler exposes sales over HTTP.
type SaleHandler struct {
	svc    SaleService
	logger *zap.Logger
}

// NewSaleHandler constructs the HTTP handler adapter.
func NewSaleHandler(svc SaleService, logger *zap.Logger) *SaleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SaleHandler{svc: svc, logger: logger}
}

type saleForm struct {
	ItemNumber    formValue `form:"itemNumber" json:"itemNumber"`
	CustomerID    formValue `form:"customerId" json:"customerId"`
	SaleDate      formValue `form:"saleDate" json:"saleDate"`
	Quantity      formValue `form:"quantity" json:"quantity"`
	UnitPrice     formValue `form:"unitPrice" json:"unitPrice"`
	ApplyDiscount formValue `form:"applyDiscount" json:"applyDiscount"`
}

func (f saleForm) createInput() (sales.CreateInput, error) {
	var in sales.CreateInput
	var err error
	if f.ItemNumber != "" {
		if in.ItemNumber, err = parseInt("itemNumber", string(f.ItemNumber)); err != nil {
			return in, err
		}
	}
	in.CustomerID = string(f.CustomerID)
	if in.SaleDate, err = parseDate("saleDate", string(f.SaleDate)); err != nil {
		return in, err
	}
	in.ApplyDiscount = parseCheckbox(string(f.ApplyDiscount))
	update, err := f.updateInput()
	in.Quantity, in.UnitPrice = update.Quantity, update.UnitPrice
	return in, err
}

func (f saleForm) updateInput() (sales.UpdateInput, error) {
	var in sales.UpdateInput
	var err error
	if in.Quantity, err = parseInt("quantity", string(f.Quantity)); err != nil {
		return in, err
	}
	if in.UnitPrice, err = parseFloat("unitPrice", string(f.UnitPrice)); err != nil {
		return in, err
	}
	return in, nil
}

// List returns sales filtered by from/to/customer/limit query parameters.
func (h *SaleHandler) List(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	list, err := h.svc.List(c.Request.Context(), models.SaleFilter{From: q.From, To: q.To, CustomerID: c.Query("customer"), Limit: q.Limit})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": list})
}

// Get returns one sale.
func (h *SaleHandler) Get(c *gin.Context) {
	s, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Create records a sale.
func (h *SaleHandler) Create(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody{Error: "missing " + ActorHeader, Code: "unauthenticated"})
		return
	}
	var form saleForm
	if err := c.ShouldBind(&form); err != nil {
		h.logger.Warn("invalid sale payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body", Code: "validation"})
		return
	}
	in, err := form.createInput()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	s, err := h.svc.Create(c.Request.Context(), in, who)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// Update edits quantity and unit price.
func (h *SaleHandler) Update(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody{Error: "missing " + ActorHeader, Code: "unauthenticated"})
		return
	}
	var form saleForm
	if err := c.ShouldBind(&form); err != nil {
		h.logger.Warn("invalid sale payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body", Code: "validation"})
		return
	}
	in, err := form.updateInput()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	s, err := h.svc.Update(c.Request.Context(), c.Param("id"), in, who)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Delete removes a sale and returns its units to stock.
func (h *SaleHandler) Delete(c *gin.Context) {
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
	c.JSON(http.StatusOK, gin.H{"deleted": id, "message": "Sale " + id + " deleted"})
}
