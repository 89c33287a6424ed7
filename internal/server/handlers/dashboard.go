package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/domain/models"
)

// DashboardService builds the landing page figures.
type DashboardService interface {
	Dashboard(ctx context.Context, window models.Window) (*models.Dashboard, error)
}

// ReportService builds period reports.
type ReportService interface {
	Generate(ctx context.Context, kind models.ReportKind, start, end time.Time) (*models.Report, error)
}

// InsightsHandler serves the dashboard and reports.
type InsightsHandler struct {
	dashboard     DashboardService
	reports       ReportService
	defaultWindow int
	logger        *zap.Logger
}

// NewInsightsHandler constructs the HTTP handler adapter.
func NewInsightsHandler(dashboard DashboardService, reports ReportService, defaultWindow int, logger *zap.Logger) *InsightsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightsHandler{dashboard: dashboard, reports: reports, defaultWindow: defaultWindow, logger: logger}
}

// Dashboard returns recent activity and per-item profit. The window query
// parameter overrides how many recent transactions are considered.
func (h *InsightsHandler) Dashboard(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	window := models.Window{Limit: h.defaultWindow, From: q.From, To: q.To}
	if raw := c.Query("window"); raw != "" {
		n, err := parseInt("window", raw)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		window.Limit = n
	}

	dash, err := h.dashboard.Dashboard(c.Request.Context(), window)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

// Report returns the data of a Sales, Purchases or Inventory report.
func (h *InsightsHandler) Report(c *gin.Context) {
	start, err := parseDate("startDate", c.Query("startDate"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	end, err := parseDate("endDate", c.Query("endDate"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	report, err := h.reports.Generate(c.Request.Context(), models.ReportKind(c.Query("reportType")), start, end)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
