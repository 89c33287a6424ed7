package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/metrics"
	"github.com/stockbook/stockbook/internal/server/handlers"
)

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// Handlers groups the HTTP adapters mounted by New.
type Handlers struct {
	Purchases *handlers.PurchaseHandler
	Sales     *handlers.SaleHandler
	Insights  *handlers.InsightsHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	metrics.Register()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(zapLoggerMiddleware(logger))
	r.Use(metrics.Middleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		purchases := api.Group("/purchases")
		purchases.GET("", h.Purchases.List)
		purchases.POST("", h.Purchases.Create)
		purchases.GET("/:id", h.Purchases.Get)
		purchases.PUT("/:id", h.Purchases.Update)
		purchases.DELETE("/:id", h.Purchases.Delete)

		sales := api.Group("/sales")
		sales.GET("", h.Sales.List)
		sales.POST("", h.Sales.Create)
		sales.GET("/:id", h.Sales.Get)
		sales.PUT("/:id", h.Sales.Update)
		sales.DELETE("/:id", h.Sales.Delete)

		api.GET("/dashboard", h.Insights.Dashboard)
		api.GET("/reports", h.Insights.Report)
	}

	logger.Info("router initialized")
	return r
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")))
	}
}
