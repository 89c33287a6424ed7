package reporting

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stockbook/stockbook/internal/domain/errs"
	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/service/analytics"
)

const dateLayout = "2006-01-02"

// Source is the read side of the store used by reports.
type Source interface {
	ListItems(ctx context.Context, activeOnly bool) ([]models.Item, error)
	ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error)
	ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error)
}

// SummaryExporter receives per-item summaries for external bookkeeping.
type SummaryExporter interface {
	ExportSummaries(ctx context.Context, at time.Time, summaries []models.ItemSummary) error
}

// Service builds period reports and exports profit summaries.
type Service struct {
	source   Source
	exporter SummaryExporter
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a reporting service. exporter may be nil, in which case
// ExportSummary only logs.
func NewService(source Source, exporter SummaryExporter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, exporter: exporter, logger: logger, now: time.Now}
}

// DayRange widens start and end to cover both whole days in UTC. Transaction
// dates are calendar days stored at UTC midnight, so callers in another
// timezone pass their local date as a UTC day.
func DayRange(start, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() {
		return time.Time{}, time.Time{}, errs.Invalid("startDate", "is required")
	}
	if end.IsZero() {
		return time.Time{}, time.Time{}, errs.Invalid("endDate", "is required")
	}
	from := truncateDay(start)
	to := truncateDay(end).Add(24*time.Hour - time.Nanosecond)
	if from.After(to) {
		return time.Time{}, time.Time{}, errs.Invalid("endDate", "must not be before startDate")
	}
	return from, to, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Generate collects the data for a report. Sales and purchase reports cover the
// inclusive day range newest first; inventory lists active items by name and
// ignores the range.
func (s *Service) Generate(ctx context.Context, kind models.ReportKind, start, end time.Time) (*models.Report, error) {
	report := &models.Report{Kind: kind}

	if kind != models.ReportInventory {
		from, to, err := DayRange(start, end)
		if err != nil {
			return nil, err
		}
		report.Start, report.End = from, to
	}

	switch kind {
	case models.ReportSales:
		sales, err := s.source.ListSales(ctx, models.SaleFilter{From: report.Start, To: report.End})
		if err != nil {
			return nil, errs.Persistence("report.sales", "load sales", err)
		}
		report.Sales = sales
		for _, sale := range sales {
			report.Total += sale.Total
		}
	case models.ReportPurchases:
		purchases, err := s.source.ListPurchases(ctx, models.PurchaseFilter{From: report.Start, To: report.End})
		if err != nil {
			return nil, errs.Persistence("report.purchases", "load purchases", err)
		}
		report.Purchases = purchases
		for _, p := range purchases {
			report.Total += p.TotalCost
		}
	case models.ReportInventory:
		items, err := s.source.ListItems(ctx, true)
		if err != nil {
			return nil, errs.Persistence("report.inventory", "load items", err)
		}
		report.Items = items
		for _, item := range items {
			report.Total += float64(item.Stock) * item.UnitPrice
		}
	default:
		return nil, errs.Invalid("reportType", fmt.Sprintf("unknown report type %q", kind))
	}
	report.Total = models.RoundMoney(report.Total)

	s.logger.Info("report generated",
		zap.String("kind", string(kind)),
		zap.String("start", report.Start.Format(dateLayout)),
		zap.String("end", report.End.Format(dateLayout)),
		zap.Float64("total", report.Total))
	return report, nil
}

// ExportSummary summarizes the transactions of the day range, hands the result
// to the exporter and returns a one-line digest.
func (s *Service) ExportSummary(ctx context.Context, start, end time.Time) (string, error) {
	from, to, err := DayRange(start, end)
	if err != nil {
		return "", err
	}

	var (
		purchases []models.Purchase
		sales     []models.Sale
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		purchases, err = s.source.ListPurchases(gctx, models.PurchaseFilter{From: from, To: to})
		if err != nil {
			return fmt.Errorf("load purchases: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sales, err = s.source.ListSales(gctx, models.SaleFilter{From: from, To: to})
		if err != nil {
			return fmt.Errorf("load sales: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	summaries := slices.Collect(analytics.Summarize(purchases, sales))
	digest := Digest(from, to, summaries)

	if s.exporter == nil {
		s.logger.Info("summary export skipped, no exporter configured", zap.String("digest", digest))
		return digest, nil
	}
	if len(summaries) == 0 {
		return digest, nil
	}
	if err := s.exporter.ExportSummaries(ctx, s.now().UTC(), summaries); err != nil {
		return "", err
	}
	return digest, nil
}

// Digest renders a short human readable line for a set of summaries.
func Digest(from, to time.Time, summaries []models.ItemSummary) string {
	if len(summaries) == 0 {
		return fmt.Sprintf("Summary (%s-%s): no transactions.", from.Format(dateLayout), to.Format(dateLayout))
	}
	var revenue, cost, profit float64
	for _, sm := range summaries {
		revenue += sm.TotalSaleRevenue
		cost += sm.CostOfSoldItems
		profit += sm.Profit
	}
	return fmt.Sprintf("Summary (%s-%s): %d items, revenue %.2f, cost of sold items %.2f, profit %.2f.",
		from.Format(dateLayout), to.Format(dateLayout), len(summaries), revenue, cost, profit)
}
