package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/config"
	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/pkg/clients/webhook"
)

const jobTimeout = 2 * time.Minute

// Auditor recomputes stock from history.
type Auditor interface {
	Audit(ctx context.Context) ([]models.StockDrift, error)
}

// SummaryExporter exports the profit summary of a day range.
type SummaryExporter interface {
	ExportSummary(ctx context.Context, start, end time.Time) (string, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	cfg      config.SchedulerConfig
	auditor  Auditor
	exporter SummaryExporter
	notifier webhook.Notifier
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a new scheduler instance. exporter and notifier may be
// nil to disable the summary export and drift alerts.
func NewScheduler(cfg config.SchedulerConfig, auditor Auditor, exporter SummaryExporter, notifier webhook.Notifier, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cfg.Timezone, err)
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		cfg:      cfg,
		auditor:  auditor,
		exporter: exporter,
		notifier: notifier,
		location: loc,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("audit_cron", s.cfg.AuditCron),
		zap.String("export_cron", s.cfg.ExportCron))

	if _, err := s.cron.AddFunc(s.cfg.AuditCron, s.runAudit); err != nil {
		return fmt.Errorf("schedule ledger audit: %w", err)
	}
	if s.exporter != nil {
		if _, err := s.cron.AddFunc(s.cfg.ExportCron, s.runExport); err != nil {
			return fmt.Errorf("schedule summary export: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.Audit(ctx); err != nil {
		s.logger.Error("ledger audit failed", zap.Error(err))
	}
}

// Audit runs the ledger audit once and raises an alert when any item drifted.
func (s *Scheduler) Audit(ctx context.Context) error {
	drifts, err := s.auditor.Audit(ctx)
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		s.logger.Info("ledger audit clean")
		return nil
	}

	s.logger.Warn("ledger audit found drift", zap.Int("items", len(drifts)))
	if s.notifier == nil {
		return nil
	}
	alert := webhook.Alert{
		Kind:     "stock_drift",
		Summary:  fmt.Sprintf("%d item(s) have stock that disagrees with their purchase and sale history", len(drifts)),
		Details:  drifts,
		RaisedAt: s.now().UTC(),
	}
	if err := s.notifier.Notify(ctx, alert); err != nil {
		return fmt.Errorf("send drift alert: %w", err)
	}
	return nil
}

func (s *Scheduler) runExport() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.Export(ctx); err != nil {
		s.logger.Error("summary export failed", zap.Error(err))
	}
}

// Export exports the summary of the current day in the scheduler's timezone.
func (s *Scheduler) Export(ctx context.Context) error {
	today := s.today()
	digest, err := s.exporter.ExportSummary(ctx, today, today)
	if err != nil {
		return err
	}
	s.logger.Info("summary exported", zap.String("digest", digest))
	return nil
}

// today is the local calendar date at UTC midnight, the form in which
// transaction dates are stored.
func (s *Scheduler) today() time.Time {
	local := s.now().In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
