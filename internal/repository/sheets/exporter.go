// Package sheets appends profit summaries to a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/stockbook/stockbook/internal/config"
	"github.com/stockbook/stockbook/internal/domain/models"
)

// SummaryRange is the sheet range summaries are appended to.
const SummaryRange = "Summary!A:L"

const dateLayout = "2006-01-02"

// RowWriter appends rows to a sheet range.
type RowWriter interface {
	AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error
}

// GoogleSheetWriter implements RowWriter using the official Google Sheets API.
type GoogleSheetWriter struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetWriter builds a Google Sheets backed writer.
func NewGoogleSheetWriter(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetWriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetWriter{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// AppendRows appends the provided rows below the data in sheetRange.
func (w *GoogleSheetWriter) AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}
	if len(rows) == 0 {
		return nil
	}

	payload := &sheetsapi.ValueRange{Values: rows}

	call := w.service.Spreadsheets.Values.Append(w.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append rows into range %s: %w", sheetRange, err)
	}

	w.logger.Debug("rows appended to sheet", zap.String("range", sheetRange), zap.Int("rows", len(rows)))
	return nil
}

// Exporter writes one row per item summary, stamped with the export date.
type Exporter struct {
	writer RowWriter
	logger *zap.Logger
}

// NewExporter wraps a RowWriter.
func NewExporter(writer RowWriter, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{writer: writer, logger: logger}
}

// ExportSummaries appends the summaries to SummaryRange.
func (e *Exporter) ExportSummaries(ctx context.Context, at time.Time, summaries []models.ItemSummary) error {
	rows := make([][]interface{}, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, SummaryRow(at, s))
	}
	if err := e.writer.AppendRows(ctx, SummaryRange, rows); err != nil {
		return fmt.Errorf("export summaries: %w", err)
	}
	e.logger.Info("summaries exported", zap.Int("items", len(rows)), zap.String("date", at.Format(dateLayout)))
	return nil
}

// SummaryRow lays out one summary in the column order of SummaryRange.
func SummaryRow(at time.Time, s models.ItemSummary) []interface{} {
	return []interface{}{
		at.Format(dateLayout),
		s.ItemNumber,
		s.ItemName,
		s.PurchasedQty,
		s.TotalPurchaseCost,
		s.AvgPurchasePrice,
		s.SoldQty,
		s.TotalSaleRevenue,
		s.AvgSalePrice,
		s.CostOfSoldItems,
		s.Profit,
		s.ProfitPercentage,
	}
}
