// Package lifecycle decides when a source is automatically degraded and its
// cadence slowed after sustained failure or quality loss.
package lifecycle

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/cadence"
	"github.com/sells-group/ingest-cli/internal/config"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/store"
)

// Trigger codes.
const (
	TriggerSustainedFailures = "sustained_failures"
	TriggerQualityDrop       = "quality_drop"
)

// EvidenceCode is the alert code of lifecycle evidence bundles.
const EvidenceCode = "lifecycle_degradation"

// Thresholds bounds the degradation triggers.
type Thresholds struct {
	MaxConsecutiveFailures int
	FailureRateCeiling     float64
	MaxLowQualityRuns      int
	MinCuratedYield        float64
}

// ThresholdsFromConfig maps lifecycle config onto Thresholds, filling zeros
// with defaults.
func ThresholdsFromConfig(cfg config.LifecycleConfig) Thresholds {
	t := Thresholds{
		MaxConsecutiveFailures: 3,
		FailureRateCeiling:     0.5,
		MaxLowQualityRuns:      3,
		MinCuratedYield:        0.05,
	}
	if cfg.MaxConsecutiveFailures > 0 {
		t.MaxConsecutiveFailures = cfg.MaxConsecutiveFailures
	}
	if cfg.FailureRateCeiling > 0 {
		t.FailureRateCeiling = cfg.FailureRateCeiling
	}
	if cfg.MaxLowQualityRuns > 0 {
		t.MaxLowQualityRuns = cfg.MaxLowQualityRuns
	}
	if cfg.MinCuratedYield > 0 {
		t.MinCuratedYield = cfg.MinCuratedYield
	}
	return t
}

// Input is everything one evaluation looks at.
type Input struct {
	State                model.SourceState
	Cadence              string
	SkippedByCadence     bool
	RunStatus            model.RunStatus
	RollingFailureRate   float64
	RollingPromotionRate float64
	Health               model.HealthMeta
}

// InputFor builds an Input from a source and the outcome of its latest run.
func InputFor(src model.Source, status model.RunStatus, skipped bool) Input {
	return Input{
		State:                src.State,
		Cadence:              src.Cadence,
		SkippedByCadence:     skipped,
		RunStatus:            status,
		RollingFailureRate:   src.RollingFailureRate30d,
		RollingPromotionRate: src.RollingPromotionRate30d,
		Health:               src.Metadata.HealthOrZero(),
	}
}

// Review evaluates a source between runs, from its stored counters and the
// status of its last finished run.
func Review(src model.Source, t Thresholds, now time.Time) Decision {
	status := model.RunStatus(src.Metadata.HealthOrZero().LastRunStatus)
	return Evaluate(InputFor(src, status, false), t, now)
}

// Decision is the outcome of one evaluation.
type Decision struct {
	ShouldTransitionToDegraded bool                 `json:"should_transition_to_degraded"`
	ShouldDowngradeCadence     bool                 `json:"should_downgrade_cadence"`
	DegradedCadence            *string              `json:"degraded_cadence"`
	TriggerCodes               []string             `json:"trigger_codes"`
	AlertSeverity              string               `json:"alert_severity,omitempty"`
	EvidenceBundle             *model.AlertEvidence `json:"evidence_bundle"`
}

// Fired reports whether any trigger fired.
func (d Decision) Fired() bool { return len(d.TriggerCodes) > 0 }

// Evaluate decides degradation for one source. It never fails: absent
// counters read as zero and an unparseable cadence simply is not downgraded.
func Evaluate(in Input, t Thresholds, now time.Time) Decision {
	d := Decision{TriggerCodes: []string{}}
	if in.SkippedByCadence {
		return d
	}
	if in.State == model.SourceStatePaused || in.State == model.SourceStateRetired {
		return d
	}

	h := in.Health
	failureRate := finite(in.RollingFailureRate)
	curatedYield := 0.0
	if h.LastRunCandidateCount > 0 {
		curatedYield = float64(h.LastRunCuratedCount) / float64(h.LastRunCandidateCount)
	}

	sustained := h.ConsecutiveFailures >= t.MaxConsecutiveFailures && failureRate >= t.FailureRateCeiling
	qualityDrop := h.ConsecutiveLowQualityRuns >= t.MaxLowQualityRuns && curatedYield <= t.MinCuratedYield

	if sustained {
		d.TriggerCodes = append(d.TriggerCodes, TriggerSustainedFailures)
		d.AlertSeverity = model.SeverityHigh
		if rule, err := cadence.Parse(in.Cadence); err == nil {
			if slower, ok := rule.Downgrade(); ok {
				s := slower.String()
				d.ShouldDowngradeCadence = true
				d.DegradedCadence = &s
			}
		}
	}
	if qualityDrop {
		d.TriggerCodes = append(d.TriggerCodes, TriggerQualityDrop)
		if d.AlertSeverity == "" {
			d.AlertSeverity = model.SeverityWarning
		}
	}
	if !d.Fired() {
		return d
	}
	d.ShouldTransitionToDegraded = in.State == model.SourceStateActive

	details := map[string]any{
		"trigger_codes":                append([]string(nil), d.TriggerCodes...),
		"state":                        string(in.State),
		"cadence":                      in.Cadence,
		"run_status":                   string(in.RunStatus),
		"consecutive_failures":         h.ConsecutiveFailures,
		"consecutive_low_quality_runs": h.ConsecutiveLowQualityRuns,
		"observed_runs":                h.ObservedRuns,
		"observed_failed_runs":         h.ObservedFailedRuns,
		"last_run_candidate_count":     h.LastRunCandidateCount,
		"last_run_curated_count":       h.LastRunCuratedCount,
		"curated_yield":                math.Round(curatedYield*10000) / 10000,
		"rolling_failure_rate_30d":     failureRate,
		"rolling_promotion_rate_30d":   finite(in.RollingPromotionRate),
	}
	if d.DegradedCadence != nil {
		details["degraded_cadence"] = *d.DegradedCadence
	}
	d.EvidenceBundle = &model.AlertEvidence{
		Code:        EvidenceCode,
		Severity:    d.AlertSeverity,
		GeneratedAt: now.UTC(),
		Details:     details,
	}
	return d
}

// Record converts d into the form kept in source metadata.
func (d Decision) Record(now time.Time) model.LifecycleRecord {
	rec := model.LifecycleRecord{
		ShouldTransitionToDegraded: d.ShouldTransitionToDegraded,
		ShouldDowngradeCadence:     d.ShouldDowngradeCadence,
		TriggerCodes:               d.TriggerCodes,
		AlertSeverity:              d.AlertSeverity,
		EvaluatedAt:                now.UTC(),
	}
	if d.DegradedCadence != nil {
		rec.DegradedCadence = *d.DegradedCadence
	}
	return rec
}

// Pending reports whether a run has finished since src was last evaluated.
// A source never evaluated is always pending.
func Pending(src model.Source) bool {
	lc := src.Metadata.Lifecycle
	if lc == nil || lc.LastResult == nil {
		return true
	}
	last := src.Metadata.HealthOrZero().LastRunAt
	return last != nil && last.After(lc.LastResult.EvaluatedAt)
}

// Apply merges d into src's lifecycle metadata, persists it, and applies the
// state and cadence change. src is updated in place. It is a no-op when no
// run has finished since the last evaluation, so repeated reviews of the
// same counters neither append evidence nor downgrade the cadence again.
func Apply(ctx context.Context, st store.Store, src *model.Source, d Decision, now time.Time) error {
	if !Pending(*src) {
		return nil
	}
	src.Metadata.MergeLifecycle(d.Record(now), d.EvidenceBundle)
	if err := st.SaveSourceMetadata(ctx, src.Key, &src.Metadata, model.NamespaceLifecycle); err != nil {
		return eris.Wrapf(err, "lifecycle: save metadata for %s", src.Key)
	}
	if !d.ShouldTransitionToDegraded && !d.ShouldDowngradeCadence {
		return nil
	}

	state := src.State
	if d.ShouldTransitionToDegraded {
		state = model.SourceStateDegraded
	}
	cad := src.Cadence
	if d.ShouldDowngradeCadence && d.DegradedCadence != nil {
		cad = *d.DegradedCadence
	}
	if err := st.UpdateSourceState(ctx, src.Key, state, cad); err != nil {
		return eris.Wrapf(err, "lifecycle: update state for %s", src.Key)
	}

	zap.L().With(zap.String("component", "lifecycle")).Warn("source degraded",
		zap.String("source", src.Key),
		zap.Strings("triggers", d.TriggerCodes),
		zap.String("state", string(state)),
		zap.String("from_cadence", src.Cadence),
		zap.String("cadence", cad),
	)
	src.State = state
	src.Cadence = cad
	return nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
