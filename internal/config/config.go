package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Store drivers.
const (
	DriverMongoDB = "mongodb"
	DriverMemory  = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	MongoDB   MongoDBConfig
	Ledger    LedgerConfig
	Scheduler SchedulerConfig
	Sheets    SheetsConfig
	Alerts    AlertsConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port     string
	LogLevel string
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
	// UseTransactions groups the writes of one operation in a multi-document
	// transaction. Requires a replica set.
	UseTransactions bool
}

// LedgerConfig tunes stock bookkeeping.
type LedgerConfig struct {
	StockGuard      string
	DashboardWindow int
}

// SchedulerConfig holds cron expressions for background jobs.
type SchedulerConfig struct {
	AuditCron  string
	ExportCron string
	Timezone   string
}

// SheetsConfig contains configuration required to interact with Google Sheets.
// Export is disabled when SpreadsheetID is empty.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether summary export is configured.
func (c SheetsConfig) Enabled() bool { return c.SpreadsheetID != "" }

// AlertsConfig configures the stock drift webhook. Alerts are disabled when
// WebhookURL is empty.
type AlertsConfig struct {
	WebhookURL string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	useTx, err := getenvBool("MONGODB_TRANSACTIONS", false)
	if err != nil {
		return nil, err
	}
	window, err := getenvInt("DASHBOARD_WINDOW", 5)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     getenvWithDefault("APP_PORT", "8080"),
			LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getenvWithDefault("STORE_DRIVER", DriverMongoDB)),
		},
		MongoDB: MongoDBConfig{
			URI:             getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName:          getenvWithDefault("MONGODB_DB_NAME", "stockbook"),
			UseTransactions: useTx,
		},
		Ledger: LedgerConfig{
			StockGuard:      getenvWithDefault("STOCK_GUARD", "read-check"),
			DashboardWindow: window,
		},
		Scheduler: SchedulerConfig{
			AuditCron:  getenvWithDefault("AUDIT_CRON", "0 2 * * *"),
			ExportCron: getenvWithDefault("EXPORT_CRON", "0 20 * * *"),
			Timezone:   getenvWithDefault("TIMEZONE", "UTC"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_ID"),
		},
		Alerts: AlertsConfig{
			WebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverMongoDB, DriverMemory, c.Store.Driver)
	}

	switch c.Ledger.StockGuard {
	case "read-check", "atomic":
	default:
		return fmt.Errorf("STOCK_GUARD must be read-check or atomic, got %q", c.Ledger.StockGuard)
	}

	if c.Ledger.DashboardWindow < 1 {
		return errors.New("DASHBOARD_WINDOW must be at least 1")
	}

	if _, err := cron.ParseStandard(c.Scheduler.AuditCron); err != nil {
		return fmt.Errorf("AUDIT_CRON is invalid: %w", err)
	}
	if _, err := cron.ParseStandard(c.Scheduler.ExportCron); err != nil {
		return fmt.Errorf("EXPORT_CRON is invalid: %w", err)
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	if c.Sheets.Enabled() && c.Sheets.CredentialsPath == "" {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH must be provided when GOOGLE_SHEET_ID is set")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
