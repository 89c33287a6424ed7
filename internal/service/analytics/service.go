package analytics

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/repository"
)

// DefaultWindow is the number of recent purchases and sales shown on the dashboard.
const DefaultWindow = 5

// History lists transactions; repository.Store satisfies it.
type History interface {
	ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error)
	ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error)
}

var _ History = (repository.Store)(nil)

// Service assembles dashboards from stored history.
type Service struct {
	history History
	logger  *zap.Logger
	now     func() time.Time
}

// NewService constructs an analytics service.
func NewService(history History, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{history: history, logger: logger, now: time.Now}
}

// Dashboard loads the window's purchases and sales and summarizes them.
func (s *Service) Dashboard(ctx context.Context, window models.Window) (*models.Dashboard, error) {
	if window.Limit <= 0 && window.From.IsZero() && window.To.IsZero() {
		window.Limit = DefaultWindow
	}

	var (
		purchases []models.Purchase
		sales     []models.Sale
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		purchases, err = s.history.ListPurchases(gctx, models.PurchaseFilter{From: window.From, To: window.To, Limit: window.Limit})
		if err != nil {
			return fmt.Errorf("load recent purchases: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sales, err = s.history.ListSales(gctx, models.SaleFilter{From: window.From, To: window.To, Limit: window.Limit})
		if err != nil {
			return fmt.Errorf("load recent sales: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var totalCost, totalRevenue float64
	for _, p := range purchases {
		totalCost += float64(p.Quantity) * p.UnitPrice
	}
	for _, sale := range sales {
		totalRevenue += float64(sale.Quantity) * sale.UnitPrice
	}

	dash := &models.Dashboard{
		RecentPurchases: purchases,
		RecentSales:     sales,
		TotalCost:       models.RoundMoney(totalCost),
		TotalRevenue:    models.RoundMoney(totalRevenue),
		Profit:          models.RoundMoney(totalRevenue - totalCost),
		Items:           slices.Collect(Summarize(purchases, sales)),
		GeneratedAt:     s.now().UTC(),
	}
	s.logger.Debug("dashboard computed",
		zap.Int("purchases", len(purchases)),
		zap.Int("sales", len(sales)),
		zap.Int("items", len(dash.Items)))
	return dash, nil
}
