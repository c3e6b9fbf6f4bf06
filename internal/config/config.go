package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Strategy   StrategyConfig   `yaml:"strategy" mapstructure:"strategy"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle" mapstructure:"lifecycle"`
	Replay     ReplayConfig     `yaml:"replay" mapstructure:"replay"`
	Snapshot   SnapshotConfig   `yaml:"snapshot" mapstructure:"snapshot"`
	Alerts     AlertsConfig     `yaml:"alerts" mapstructure:"alerts"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IngestConfig configures the run orchestrator.
type IngestConfig struct {
	QualityThreshold float64 `yaml:"quality_threshold" mapstructure:"quality_threshold"`
	PageTimeoutSecs  int     `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	ExtractWorkers   int     `yaml:"extract_workers" mapstructure:"extract_workers"`
	PagesPerSecond   float64 `yaml:"pages_per_second" mapstructure:"pages_per_second"`
	Locale           string  `yaml:"locale" mapstructure:"locale"`
	RetryAttempts    int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs   int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	// LowQualityRatio is the curated/total ratio under which a run counts
	// as low quality.
	LowQualityRatio float64 `yaml:"low_quality_ratio" mapstructure:"low_quality_ratio"`
}

// FetchConfig configures outbound HTTP for source modules and the probe.
type FetchConfig struct {
	UserAgent         string             `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int                `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64            `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int                `yaml:"burst" mapstructure:"burst"`
	HostRates         map[string]float64 `yaml:"host_rates" mapstructure:"host_rates"`
}

// StrategyConfig configures strategy selection.
type StrategyConfig struct {
	StrongRate float64 `yaml:"strong_rate" mapstructure:"strong_rate"`
	HalfLife   float64 `yaml:"half_life" mapstructure:"half_life"`
}

// MonitoringConfig holds health signal and incident thresholds.
type MonitoringConfig struct {
	LookbackDays        int     `yaml:"lookback_days" mapstructure:"lookback_days"`
	HighFailureRate     float64 `yaml:"high_failure_rate" mapstructure:"high_failure_rate"`
	LowYieldRate        float64 `yaml:"low_yield_rate" mapstructure:"low_yield_rate"`
	ConsecutiveFailures int     `yaml:"consecutive_failures" mapstructure:"consecutive_failures"`
	LowHealthScore      float64 `yaml:"low_health_score" mapstructure:"low_health_score"`
	FailureSpikeRate    float64 `yaml:"failure_spike_rate" mapstructure:"failure_spike_rate"`
	ScheduleMissFactor  float64 `yaml:"schedule_miss_factor" mapstructure:"schedule_miss_factor"`
	RejectionSurgeRate  float64 `yaml:"rejection_surge_rate" mapstructure:"rejection_surge_rate"`
	RejectionSurgeDelta float64 `yaml:"rejection_surge_delta" mapstructure:"rejection_surge_delta"`
	MinReviews          int     `yaml:"min_reviews" mapstructure:"min_reviews"`
	ReviewWindowDays    int     `yaml:"review_window_days" mapstructure:"review_window_days"`
	YieldHistoryRuns    int     `yaml:"yield_history_runs" mapstructure:"yield_history_runs"`
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	AlertHistoryCap     int     `yaml:"alert_history_cap" mapstructure:"alert_history_cap"`
}

// LifecycleConfig holds automatic degradation triggers.
type LifecycleConfig struct {
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
	FailureRateCeiling     float64 `yaml:"failure_rate_ceiling" mapstructure:"failure_rate_ceiling"`
	MaxLowQualityRuns      int     `yaml:"max_low_quality_runs" mapstructure:"max_low_quality_runs"`
	MinCuratedYield        float64 `yaml:"min_curated_yield" mapstructure:"min_curated_yield"`
}

// ReplayConfig is the default replay tolerance profile.
type ReplayConfig struct {
	TotalDeltaRatio           float64 `yaml:"total_delta_ratio" mapstructure:"total_delta_ratio"`
	TotalDeltaMin             int     `yaml:"total_delta_min" mapstructure:"total_delta_min"`
	CuratedDeltaRatio         float64 `yaml:"curated_delta_ratio" mapstructure:"curated_delta_ratio"`
	CuratedDeltaMin           int     `yaml:"curated_delta_min" mapstructure:"curated_delta_min"`
	FilteredDeltaRatio        float64 `yaml:"filtered_delta_ratio" mapstructure:"filtered_delta_ratio"`
	FilteredDeltaMin          int     `yaml:"filtered_delta_min" mapstructure:"filtered_delta_min"`
	MinCandidateKeyOverlap    float64 `yaml:"min_candidate_key_overlap" mapstructure:"min_candidate_key_overlap"`
	MinCuratedKeyOverlapRatio float64 `yaml:"min_curated_key_overlap" mapstructure:"min_curated_key_overlap"`
}

// SnapshotConfig configures where run snapshots are written.
type SnapshotConfig struct {
	Target      string `yaml:"target" mapstructure:"target"`
	Token       string `yaml:"token" mapstructure:"token"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AlertsConfig configures incident delivery.
type AlertsConfig struct {
	WebhookURL    string `yaml:"webhook_url" mapstructure:"webhook_url"`
	MinSeverity   string `yaml:"min_severity" mapstructure:"min_severity"`
	CooldownHours int    `yaml:"cooldown_hours" mapstructure:"cooldown_hours"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NotionConfig holds the optional Notion incident log.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	IncidentDB string `yaml:"incident_db" mapstructure:"incident_db"`
}

// ServerConfig configures the read-only ops server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// SourcesConfig points at the source registry file.
type SourcesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// Load reads .env, then configuration from file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "ingest.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("ingest.quality_threshold", 0.6)
	v.SetDefault("ingest.page_timeout_secs", 30)
	v.SetDefault("ingest.extract_workers", 1)
	v.SetDefault("ingest.pages_per_second", 2.0)
	v.SetDefault("ingest.locale", "en-US")
	v.SetDefault("ingest.retry_attempts", 3)
	v.SetDefault("ingest.retry_backoff_ms", 500)
	v.SetDefault("ingest.low_quality_ratio", 0.1)

	v.SetDefault("fetch.user_agent", "ingest-cli/1.0 (+https://github.com/sells-group/ingest-cli)")
	v.SetDefault("fetch.timeout_secs", 20)
	v.SetDefault("fetch.requests_per_second", 2.0)
	v.SetDefault("fetch.burst", 2)

	v.SetDefault("strategy.strong_rate", 0.6)
	v.SetDefault("strategy.half_life", 5.0)

	v.SetDefault("monitoring.lookback_days", 30)
	v.SetDefault("monitoring.high_failure_rate", 0.35)
	v.SetDefault("monitoring.low_yield_rate", 0.05)
	v.SetDefault("monitoring.consecutive_failures", 3)
	v.SetDefault("monitoring.low_health_score", 40.0)
	v.SetDefault("monitoring.failure_spike_rate", 0.5)
	v.SetDefault("monitoring.schedule_miss_factor", 1.5)
	v.SetDefault("monitoring.rejection_surge_rate", 0.5)
	v.SetDefault("monitoring.rejection_surge_delta", 0.2)
	v.SetDefault("monitoring.min_reviews", 5)
	v.SetDefault("monitoring.review_window_days", 7)
	v.SetDefault("monitoring.yield_history_runs", 5)
	v.SetDefault("monitoring.check_interval_secs", 900)
	v.SetDefault("monitoring.alert_history_cap", 30)

	v.SetDefault("lifecycle.max_consecutive_failures", 3)
	v.SetDefault("lifecycle.failure_rate_ceiling", 0.5)
	v.SetDefault("lifecycle.max_low_quality_runs", 3)
	v.SetDefault("lifecycle.min_curated_yield", 0.05)

	v.SetDefault("replay.total_delta_ratio", 0.1)
	v.SetDefault("replay.total_delta_min", 2)
	v.SetDefault("replay.curated_delta_ratio", 0.1)
	v.SetDefault("replay.curated_delta_min", 2)
	v.SetDefault("replay.filtered_delta_ratio", 0.2)
	v.SetDefault("replay.filtered_delta_min", 3)
	v.SetDefault("replay.min_candidate_key_overlap", 0.8)
	v.SetDefault("replay.min_curated_key_overlap", 0.8)

	v.SetDefault("snapshot.target", "snapshots")
	v.SetDefault("snapshot.timeout_secs", 30)

	v.SetDefault("alerts.min_severity", "warning")
	v.SetDefault("alerts.cooldown_hours", 24)
	v.SetDefault("alerts.timeout_secs", 10)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("sources.file", "sources.yaml")
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var problems []string
	req := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}
	inUnit := func(v float64) bool { return v > 0 && v <= 1 }

	switch mode {
	case "run":
		req(inUnit(c.Ingest.QualityThreshold), "ingest.quality_threshold must be in (0, 1]")
		req(c.Ingest.ExtractWorkers >= 1 && c.Ingest.ExtractWorkers <= 32, "ingest.extract_workers must be between 1 and 32")
		req(c.Ingest.PageTimeoutSecs > 0, "ingest.page_timeout_secs must be > 0")
		req(strings.TrimSpace(c.Snapshot.Target) != "", "snapshot.target is required")
		req(strings.TrimSpace(c.Sources.File) != "", "sources.file is required")
	case "monitor":
		req(c.Monitoring.CheckIntervalSecs > 0, "monitoring.check_interval_secs must be > 0")
		req(c.Alerts.WebhookURL != "" || (c.Notion.Token != "" && c.Notion.IncidentDB != ""),
			"alerts.webhook_url or notion.token + notion.incident_db is required")
	case "serve":
		req(c.Server.Port > 0, "server.port must be > 0")
	case "replay":
		req(c.Replay.MinCandidateKeyOverlap >= 0 && c.Replay.MinCandidateKeyOverlap <= 1, "replay.min_candidate_key_overlap must be in [0, 1]")
		req(c.Replay.MinCuratedKeyOverlapRatio >= 0 && c.Replay.MinCuratedKeyOverlapRatio <= 1, "replay.min_curated_key_overlap must be in [0, 1]")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		req(c.Store.DatabaseURL != "", "store.database_url is required for postgres")
	case "sqlite":
		req(c.Store.SQLitePath != "", "store.sqlite_path is required for sqlite")
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
