package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_PORT", "LOG_LEVEL", "STORE_DRIVER", "MONGODB_URI", "MONGODB_DB_NAME", "MONGODB_TRANSACTIONS",
		"STOCK_GUARD", "DASHBOARD_WINDOW", "AUDIT_CRON", "EXPORT_CRON", "TIMEZONE",
		"GOOGLE_SHEETS_CREDENTIALS_PATH", "GOOGLE_SHEET_ID", "ALERT_WEBHOOK_URL",
	} {
		// Setenv registers the restore; unset so godotenv may fill the key.
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DriverMongoDB, cfg.Store.Driver)
	assert.Equal(t, "stockbook", cfg.MongoDB.DBName)
	assert.False(t, cfg.MongoDB.UseTransactions)
	assert.Equal(t, "read-check", cfg.Ledger.StockGuard)
	assert.Equal(t, 5, cfg.Ledger.DashboardWindow)
	assert.Equal(t, "0 2 * * *", cfg.Scheduler.AuditCron)
	assert.False(t, cfg.Sheets.Enabled())
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := "STORE_DRIVER=memory\nSTOCK_GUARD=atomic\nMONGODB_TRANSACTIONS=true\nDASHBOARD_WINDOW=12\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "atomic", cfg.Ledger.StockGuard)
	assert.True(t, cfg.MongoDB.UseTransactions)
	assert.Equal(t, 12, cfg.Ledger.DashboardWindow)
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("DASHBOARD_WINDOW", "many")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DASHBOARD_WINDOW")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: "8080"},
			Store:     StoreConfig{Driver: DriverMemory},
			Ledger:    LedgerConfig{StockGuard: "read-check", DashboardWindow: 5},
			Scheduler: SchedulerConfig{AuditCron: "0 2 * * *", ExportCron: "0 20 * * *", Timezone: "UTC"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis" }, "STORE_DRIVER"},
		{"mongo without uri", func(c *Config) { c.Store.Driver = DriverMongoDB; c.MongoDB.DBName = "x" }, "MONGODB_URI"},
		{"bad guard", func(c *Config) { c.Ledger.StockGuard = "lock" }, "STOCK_GUARD"},
		{"zero window", func(c *Config) { c.Ledger.DashboardWindow = 0 }, "DASHBOARD_WINDOW"},
		{"bad cron", func(c *Config) { c.Scheduler.AuditCron = "every night" }, "AUDIT_CRON"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "TIMEZONE"},
		{"sheet without credentials", func(c *Config) { c.Sheets.SpreadsheetID = "sheet" }, "GOOGLE_SHEETS_CREDENTIALS_PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
