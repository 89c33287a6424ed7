package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/domain/errs"
)

// ActorHeader carries the id of the authenticated user set by the upstream proxy.
const ActorHeader = "X-Actor-ID"

type errorBody struct {
	Error     string   `json:"error"`
	Code      string   `json:"code"`
	Field     string   `json:"field,omitempty"`
	Available *int     `json:"available,omitempty"`
	Pending   []string `json:"pending,omitempty"`
}

// writeError maps the service error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		ve *errs.ValidationError
		nf *errs.NotFoundError
		is *errs.InsufficientStockError
		ce *errs.ConflictError
		pe *errs.PersistenceError
	)

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, errorBody{Error: ve.Error(), Code: "validation", Field: ve.Field})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, errorBody{Error: nf.Error(), Code: "not_found"})
	case errors.As(err, &is):
		available := is.Available
		c.JSON(http.StatusConflict, errorBody{Error: is.Error(), Code: "insufficient_stock", Available: &available})
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, errorBody{Error: ce.Error(), Code: "conflict"})
	case errors.As(err, &pe):
		logger.Error("request failed in store", zap.String("path", c.FullPath()), zap.Error(err))
		body := errorBody{Error: "the operation could not be completed", Code: "persistence"}
		if !pe.RolledBack {
			body.Pending = pe.Pending
		}
		c.JSON(http.StatusInternalServerError, body)
	default:
		logger.Error("unexpected request failure", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}
