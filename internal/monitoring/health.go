// Package monitoring computes source health, raises incident alerts from run
// and review history, and delivers them to webhooks and the incident log.
package monitoring

import (
	"math"
	"time"

	"github.com/sells-group/ingest-cli/internal/config"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/store"
)

// Health signal codes.
const (
	SignalNeverRun            = "never_run"
	SignalNoSuccess           = "no_success"
	SignalHighFailureRate     = "high_failure_rate"
	SignalLowYield            = "low_yield"
	SignalConsecutiveFailures = "consecutive_failures"
	SignalLowHealthScore      = "low_health_score"
	SignalInactiveSource      = "inactive_source"
	SignalHealthy             = "healthy"
)

// Thresholds bounds every health and incident rule.
type Thresholds struct {
	LookbackDays        int
	HighFailureRate     float64
	LowYieldRate        float64
	ConsecutiveFailures int
	LowHealthScore      float64
	FailureSpikeRate    float64
	ScheduleMissFactor  float64
	RejectionSurgeRate  float64
	RejectionSurgeDelta float64
	MinReviews          int
	ReviewWindow        time.Duration
	YieldHistoryRuns    int
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LookbackDays:        30,
		HighFailureRate:     0.35,
		LowYieldRate:        0.05,
		ConsecutiveFailures: 3,
		LowHealthScore:      40,
		FailureSpikeRate:    0.5,
		ScheduleMissFactor:  1.5,
		RejectionSurgeRate:  0.5,
		RejectionSurgeDelta: 0.2,
		MinReviews:          5,
		ReviewWindow:        7 * 24 * time.Hour,
		YieldHistoryRuns:    5,
	}
}

// ThresholdsFromConfig maps monitoring config onto Thresholds. Zero values
// keep the defaults.
func ThresholdsFromConfig(cfg config.MonitoringConfig) Thresholds {
	t := DefaultThresholds()
	if cfg.LookbackDays > 0 {
		t.LookbackDays = cfg.LookbackDays
	}
	if cfg.HighFailureRate > 0 {
		t.HighFailureRate = cfg.HighFailureRate
	}
	if cfg.LowYieldRate > 0 {
		t.LowYieldRate = cfg.LowYieldRate
	}
	if cfg.ConsecutiveFailures > 0 {
		t.ConsecutiveFailures = cfg.ConsecutiveFailures
	}
	if cfg.LowHealthScore > 0 {
		t.LowHealthScore = cfg.LowHealthScore
	}
	if cfg.FailureSpikeRate > 0 {
		t.FailureSpikeRate = cfg.FailureSpikeRate
	}
	if cfg.ScheduleMissFactor > 0 {
		t.ScheduleMissFactor = cfg.ScheduleMissFactor
	}
	if cfg.RejectionSurgeRate > 0 {
		t.RejectionSurgeRate = cfg.RejectionSurgeRate
	}
	if cfg.RejectionSurgeDelta > 0 {
		t.RejectionSurgeDelta = cfg.RejectionSurgeDelta
	}
	if cfg.MinReviews > 0 {
		t.MinReviews = cfg.MinReviews
	}
	if cfg.ReviewWindowDays > 0 {
		t.ReviewWindow = time.Duration(cfg.ReviewWindowDays) * 24 * time.Hour
	}
	if cfg.YieldHistoryRuns > 0 {
		t.YieldHistoryRuns = cfg.YieldHistoryRuns
	}
	return t
}

// History is the stored state one source is judged on.
type History struct {
	Source model.Source
	// Runs are newest first.
	Runs          []model.Run
	Window        store.SourceHealthRow
	RecentReviews model.ReviewCounts
	PriorReviews  model.ReviewCounts
	CollectedAt   time.Time
}

// Signal is one advisory health finding.
type Signal struct {
	Code     string         `json:"code"`
	Severity string         `json:"severity"`
	Details  map[string]any `json:"details,omitempty"`
}

// SourceHealth is the computed health snapshot of a source.
type SourceHealth struct {
	SourceKey               string            `json:"source_key"`
	State                   model.SourceState `json:"state"`
	HealthScore             float64           `json:"health_score"`
	ConsecutiveFailures     int               `json:"consecutive_failures"`
	LastRunStatus           string            `json:"last_run_status,omitempty"`
	LastRunError            string            `json:"last_run_error,omitempty"`
	LastRunAt               *time.Time        `json:"last_run_at,omitempty"`
	RunsInWindow            int               `json:"runs_in_window"`
	RollingPromotionRate30d float64           `json:"rolling_promotion_rate_30d"`
	RollingFailureRate30d   float64           `json:"rolling_failure_rate_30d"`
	Signals                 []Signal          `json:"signals"`
	ComputedAt              time.Time         `json:"computed_at"`
}

// HasSignal reports whether code is among the signals.
func (h SourceHealth) HasSignal(code string) bool {
	for _, s := range h.Signals {
		if s.Code == code {
			return true
		}
	}
	return false
}

// ComputeHealth derives the health snapshot for one source. It is a pure
// function of h and t.
func ComputeHealth(h History, t Thresholds) SourceHealth {
	out := SourceHealth{
		SourceKey:               h.Source.Key,
		State:                   h.Source.State,
		RunsInWindow:            h.Window.RunsTotal,
		RollingFailureRate30d:   ratio(h.Window.RunsFailed, h.Window.RunsTotal),
		RollingPromotionRate30d: ratio(h.Window.CandidatesPromoted, h.Window.CandidatesTotal),
		ConsecutiveFailures:     consecutiveFailures(h.Runs),
		ComputedAt:              h.CollectedAt,
	}
	if len(h.Runs) > 0 {
		last := h.Runs[0]
		out.LastRunStatus = string(last.Status)
		out.LastRunError = last.Error
		at := last.StartedAt
		out.LastRunAt = &at
	}
	lowYield := out.RollingPromotionRate30d > 0 && out.RollingPromotionRate30d < t.LowYieldRate
	out.HealthScore = healthScore(len(h.Runs) > 0, out.RollingFailureRate30d, out.ConsecutiveFailures, lowYield, out.LastRunStatus)

	var signals []Signal
	add := func(code, severity string, details map[string]any) {
		signals = append(signals, Signal{Code: code, Severity: severity, Details: details})
	}

	if len(h.Runs) == 0 {
		add(SignalNeverRun, model.SeverityWarning, nil)
	} else if !anySucceeded(h.Runs) {
		add(SignalNoSuccess, model.SeverityHigh, map[string]any{"runs_observed": len(h.Runs)})
	}
	if h.Window.RunsTotal > 0 && out.RollingFailureRate30d >= t.HighFailureRate {
		add(SignalHighFailureRate, model.SeverityHigh, map[string]any{
			"failure_rate": out.RollingFailureRate30d,
			"threshold":    t.HighFailureRate,
		})
	}
	if lowYield {
		add(SignalLowYield, model.SeverityWarning, map[string]any{
			"promotion_rate": out.RollingPromotionRate30d,
			"threshold":      t.LowYieldRate,
		})
	}
	if out.ConsecutiveFailures >= t.ConsecutiveFailures {
		add(SignalConsecutiveFailures, model.SeverityHigh, map[string]any{
			"consecutive_failures": out.ConsecutiveFailures,
			"threshold":            t.ConsecutiveFailures,
		})
	}
	if len(h.Runs) > 0 && out.HealthScore < t.LowHealthScore {
		add(SignalLowHealthScore, model.SeverityWarning, map[string]any{
			"health_score": out.HealthScore,
			"threshold":    t.LowHealthScore,
		})
	}
	if h.Source.State == model.SourceStatePaused || h.Source.State == model.SourceStateRetired {
		add(SignalInactiveSource, model.SeverityWarning, map[string]any{"state": string(h.Source.State)})
	}
	if len(signals) == 0 {
		add(SignalHealthy, model.SeverityInfo, nil)
	}
	out.Signals = signals
	return out
}

// healthScore starts from 100 and subtracts weighted penalties. A source
// with no runs scores 0.
func healthScore(hasRuns bool, failureRate float64, consecutive int, lowYield bool, lastStatus string) float64 {
	if !hasRuns {
		return 0
	}
	score := 100.0
	score -= 50 * failureRate
	score -= 8 * float64(min(consecutive, 5))
	if lowYield {
		score -= 10
	}
	if lastStatus == string(model.RunStatusFailed) {
		score -= 10
	}
	score = math.Max(0, math.Min(100, score))
	return math.Round(score*100) / 100
}

func consecutiveFailures(runs []model.Run) int {
	n := 0
	for _, r := range runs {
		if r.Status == model.RunStatusRunning {
			continue
		}
		if r.Status != model.RunStatusFailed {
			break
		}
		n++
	}
	return n
}

func anySucceeded(runs []model.Run) bool {
	for _, r := range runs {
		if r.Status == model.RunStatusSuccess || r.Status == model.RunStatusPartial {
			return true
		}
	}
	return false
}

func ratio(num, den int) float64 {
	if den <= 0 || num <= 0 {
		return 0
	}
	return math.Min(1, float64(num)/float64(den))
}
