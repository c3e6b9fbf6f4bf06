package ingest

import (
	"time"

	"github.com/sells-group/ingest-cli/internal/config"
	"github.com/sells-group/ingest-cli/internal/lifecycle"
	"github.com/sells-group/ingest-cli/internal/quality"
	"github.com/sells-group/ingest-cli/internal/resilience"
	"github.com/sells-group/ingest-cli/internal/strategy"
)

// Options tunes a run.
type Options struct {
	QualityThreshold float64
	PageTimeout      time.Duration
	// Workers bounds concurrent page extraction. 1 processes pages in order.
	Workers        int
	PagesPerSecond float64
	Locale         string
	Retry          resilience.Policy
	// LowQualityRatio is the curated/total ratio under which a finished run
	// counts towards consecutive low-quality runs.
	LowQualityRatio float64
	StrongRate      float64
	HalfLife        float64
	Lifecycle       lifecycle.Thresholds
	// RateWindow is the lookback for the rolling rates fed to lifecycle.
	RateWindow time.Duration
}

// DefaultOptions returns sequential extraction with a 30s page timeout.
func DefaultOptions() Options {
	return Options{
		QualityThreshold: quality.DefaultThreshold,
		PageTimeout:      30 * time.Second,
		Workers:          1,
		Locale:           "en-US",
		Retry:            resilience.DefaultPolicy(),
		LowQualityRatio:  0.1,
		StrongRate:       strategy.DefaultStrongRate,
		HalfLife:         strategy.DefaultHalfLife,
		Lifecycle:        lifecycle.ThresholdsFromConfig(config.LifecycleConfig{}),
		RateWindow:       30 * 24 * time.Hour,
	}
}

// OptionsFromConfig maps application config onto Options. Zero values keep
// the defaults.
func OptionsFromConfig(cfg *config.Config) Options {
	o := DefaultOptions()
	in := cfg.Ingest
	if in.QualityThreshold > 0 {
		o.QualityThreshold = in.QualityThreshold
	}
	if in.PageTimeoutSecs > 0 {
		o.PageTimeout = time.Duration(in.PageTimeoutSecs) * time.Second
	}
	if in.ExtractWorkers > 0 {
		o.Workers = in.ExtractWorkers
	}
	o.PagesPerSecond = in.PagesPerSecond
	if in.Locale != "" {
		o.Locale = in.Locale
	}
	if in.RetryAttempts > 0 {
		o.Retry.MaxAttempts = in.RetryAttempts
	}
	if in.RetryBackoffMs > 0 {
		o.Retry.InitialBackoff = time.Duration(in.RetryBackoffMs) * time.Millisecond
	}
	if in.LowQualityRatio > 0 {
		o.LowQualityRatio = in.LowQualityRatio
	}
	if cfg.Strategy.StrongRate > 0 {
		o.StrongRate = cfg.Strategy.StrongRate
	}
	if cfg.Strategy.HalfLife > 0 {
		o.HalfLife = cfg.Strategy.HalfLife
	}
	o.Lifecycle = lifecycle.ThresholdsFromConfig(cfg.Lifecycle)
	if cfg.Monitoring.LookbackDays > 0 {
		o.RateWindow = time.Duration(cfg.Monitoring.LookbackDays) * 24 * time.Hour
	}
	return o
}
