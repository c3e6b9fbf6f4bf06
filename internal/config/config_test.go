package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "ingest.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 0.6, cfg.Ingest.QualityThreshold, 0.001)
	assert.Equal(t, 30, cfg.Ingest.PageTimeoutSecs)
	assert.Equal(t, 1, cfg.Ingest.ExtractWorkers)
	assert.InDelta(t, 0.6, cfg.Strategy.StrongRate, 0.001)
	assert.InDelta(t, 0.35, cfg.Monitoring.HighFailureRate, 0.001)
	assert.InDelta(t, 0.05, cfg.Monitoring.LowYieldRate, 0.001)
	assert.Equal(t, 3, cfg.Monitoring.ConsecutiveFailures)
	assert.InDelta(t, 40, cfg.Monitoring.LowHealthScore, 0.001)
	assert.Equal(t, 30, cfg.Monitoring.AlertHistoryCap)
	assert.Equal(t, 3, cfg.Lifecycle.MaxConsecutiveFailures)
	assert.InDelta(t, 0.8, cfg.Replay.MinCandidateKeyOverlap, 0.001)
	assert.Equal(t, "snapshots", cfg.Snapshot.Target)
	assert.Equal(t, "warning", cfg.Alerts.MinSeverity)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sources.yaml", cfg.Sources.File)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/ingest
log:
  level: debug
  format: console
ingest:
  extract_workers: 4
replay:
  min_candidate_key_overlap: 0.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Ingest.ExtractWorkers)
	assert.InDelta(t, 0.5, cfg.Replay.MinCandidateKeyOverlap, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Ingest.PageTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("INGEST_STORE_DRIVER", "sqlite")
	t.Setenv("INGEST_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INGEST_SERVER_PORT=3000\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("INGEST_SERVER_PORT") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "ingest.db"
	cfg.Ingest.QualityThreshold = 0.6
	cfg.Ingest.ExtractWorkers = 1
	cfg.Ingest.PageTimeoutSecs = 30
	cfg.Snapshot.Target = "snapshots"
	cfg.Sources.File = "sources.yaml"
	cfg.Monitoring.CheckIntervalSecs = 900
	cfg.Server.Port = 8080
	cfg.Replay.MinCandidateKeyOverlap = 0.8
	cfg.Replay.MinCuratedKeyOverlapRatio = 0.8
	return cfg
}

func TestValidate_Run(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("run"))

	cfg.Ingest.ExtractWorkers = 0
	cfg.Ingest.QualityThreshold = 1.5
	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract_workers must be between 1 and 32")
	assert.Contains(t, err.Error(), "quality_threshold")
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/ingest"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_MonitorNeedsSink(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("monitor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts.webhook_url")

	cfg.Notion.Token = "ntn"
	cfg.Notion.IncidentDB = "db"
	assert.NoError(t, cfg.Validate("monitor"))
}

func TestValidate_Replay(t *testing.T) {
	cfg := validDefaults()
	cfg.Replay.MinCuratedKeyOverlapRatio = 1.2
	err := cfg.Validate("replay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_curated_key_overlap")
}

func TestValidate_ServeInvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
