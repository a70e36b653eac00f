package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.HTTP.Port)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "ApiKey", cfg.Auth.Header)
	require.Equal(t, 256, cfg.Auth.TouchQueueSize)
	require.Equal(t, 5, cfg.Reports.PrecipitationWindowMonths)
	require.False(t, cfg.Accounts.AllowBatchCreate)
	require.Empty(t, cfg.Accounts.CleanupSchedule)
	require.Equal(t, 30, cfg.Accounts.InactiveDays)
	require.Empty(t, cfg.Routes)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("ACCOUNTS_ALLOW_BATCH_CREATE", "true")
	t.Setenv("REPORTS_PRECIPITATION_WINDOW_MONTHS", "12")
	t.Setenv("ACCOUNTS_INACTIVE_CLEANUP_SCHEDULE", "0 0 3 * * *")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.HTTP.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.True(t, cfg.Accounts.AllowBatchCreate)
	require.Equal(t, 12, cfg.Reports.PrecipitationWindowMonths)
	require.Equal(t, "0 0 3 * * *", cfg.Accounts.CleanupSchedule)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.yaml")
	yaml := `
log:
  format: json
database:
  driver: sqlite
  sqlite_path: /tmp/readings.db
cors:
  allowed_origins: ["https://dash.example"]
routes:
  delete_readings: Teacher
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "/tmp/readings.db", cfg.Database.SQLitePath)
	require.Equal(t, []string{"https://dash.example"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, "Teacher", cfg.Routes["delete_readings"])
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mongo")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("LOG_FORMAT", "xml")
	_, err = Load("")
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
