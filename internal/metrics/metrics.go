package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCounter counts HTTP requests by route and status.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbook_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration records request latency in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockbook_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// LedgerOperations counts purchase/sale operations by outcome.
	LedgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbook_ledger_operations_total",
			Help: "Purchase and sale operations by result",
		},
		[]string{"op", "result"},
	)

	// StockAdjustments sums absolute stock movement by direction.
	StockAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbook_stock_units_total",
			Help: "Units moved in or out of stock",
		},
		[]string{"direction"},
	)

	// StockDriftItems is the number of items whose stock disagreed with history at the last audit.
	StockDriftItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockbook_stock_drift_items",
			Help: "Items whose stored stock differs from purchases minus sales",
		},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter, RequestDuration, LedgerOperations, StockAdjustments, StockDriftItems)
	})
}

// RecordOperation counts one ledger operation outcome.
func RecordOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	LedgerOperations.WithLabelValues(op, result).Inc()
}

// RecordStockDelta adds delta to the in/out unit counters. Call it only once the
// unit of work that moved the stock has committed.
func RecordStockDelta(delta int) {
	switch {
	case delta > 0:
		StockAdjustments.WithLabelValues("in").Add(float64(delta))
	case delta < 0:
		StockAdjustments.WithLabelValues("out").Add(float64(-delta))
	}
}

// Middleware records request metrics for every gin route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RequestCounter.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
