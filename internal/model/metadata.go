package model

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"
)

// AlertHistoryCap bounds every alert history array kept in source metadata.
const AlertHistoryCap = 30

// SourceMetadata is the namespaced metadata aggregate stored on a source.
// Each namespace is owned by one concern and only changed through the
// Merge* methods below.
type SourceMetadata struct {
	Health              *HealthMeta                    `json:"health,omitempty"`
	Compliance          *ComplianceMeta                `json:"compliance,omitempty"`
	StrategyPerformance map[string]StrategyPerformance `json:"strategy_performance,omitempty"`
	Lifecycle           *LifecycleMeta                 `json:"lifecycle,omitempty"`
	Incidents           *IncidentMeta                  `json:"incidents,omitempty"`
}

// Namespace names one concern-owned sub-structure of SourceMetadata.
type Namespace string

const (
	NamespaceHealth              Namespace = "health"
	NamespaceCompliance          Namespace = "compliance"
	NamespaceStrategyPerformance Namespace = "strategy_performance"
	NamespaceLifecycle           Namespace = "lifecycle"
	NamespaceIncidents           Namespace = "incidents"
)

// Value returns the current value of a namespace for persistence. Unknown
// namespaces report false.
func (m *SourceMetadata) Value(ns Namespace) (any, bool) {
	switch ns {
	case NamespaceHealth:
		return m.Health, true
	case NamespaceCompliance:
		return m.Compliance, true
	case NamespaceStrategyPerformance:
		return m.StrategyPerformance, true
	case NamespaceLifecycle:
		return m.Lifecycle, true
	case NamespaceIncidents:
		return m.Incidents, true
	default:
		return nil, false
	}
}

// HealthMeta holds rolling health counters for a source.
type HealthMeta struct {
	HealthScore               float64    `json:"health_score"`
	ConsecutiveFailures       int        `json:"consecutive_failures"`
	ConsecutiveLowQualityRuns int        `json:"consecutive_low_quality_runs"`
	ObservedRuns              int        `json:"observed_runs"`
	ObservedFailedRuns        int        `json:"observed_failed_runs"`
	LastRunStatus             string     `json:"last_run_status,omitempty"`
	LastRunError              string     `json:"last_run_error,omitempty"`
	LastRunCandidateCount     int        `json:"last_run_candidate_count"`
	LastRunCuratedCount       int        `json:"last_run_curated_count"`
	LastRunAt                 *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt             *time.Time `json:"last_success_at,omitempty"`
}

// ComplianceMeta holds the declared legal risk and the latest pre-run check.
type ComplianceMeta struct {
	LegalRisk       string           `json:"legal_risk,omitempty"`
	LastPreRunCheck *ComplianceCheck `json:"last_pre_run_check,omitempty"`
}

// ComplianceCheck is the outcome of a compliance pre-run check.
type ComplianceCheck struct {
	Passed    bool      `json:"passed"`
	Severity  string    `json:"severity,omitempty"`
	Reasons   []string  `json:"reasons,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// StrategyPerformance is the persisted rolling record for one extraction strategy.
type StrategyPerformance struct {
	Attempts           int        `json:"attempts"`
	Successes          int        `json:"successes"`
	Failures           int        `json:"failures"`
	LastStatus         string     `json:"last_status,omitempty"`
	LastCandidateCount int        `json:"last_candidate_count"`
	RollingSuccessRate float64    `json:"rolling_success_rate"`
	RollingYieldRate   float64    `json:"rolling_yield_rate"`
	LastAttemptAt      *time.Time `json:"last_attempt_at,omitempty"`
}

// LifecycleRecord is the latest lifecycle automation result kept for inspection.
type LifecycleRecord struct {
	ShouldTransitionToDegraded bool      `json:"should_transition_to_degraded"`
	ShouldDowngradeCadence     bool      `json:"should_downgrade_cadence"`
	DegradedCadence            string    `json:"degraded_cadence,omitempty"`
	TriggerCodes               []string  `json:"trigger_codes,omitempty"`
	AlertSeverity              string    `json:"alert_severity,omitempty"`
	EvaluatedAt                time.Time `json:"evaluated_at"`
}

// LifecycleMeta holds the lifecycle namespace.
type LifecycleMeta struct {
	LastResult   *LifecycleRecord `json:"last_result,omitempty"`
	AlertHistory []AlertEvidence  `json:"alert_history,omitempty"`
}

// IncidentMeta holds the incidents namespace.
type IncidentMeta struct {
	AlertHistory    []AlertEvidence `json:"alert_history,omitempty"`
	LastAlertCount  int             `json:"last_alert_count"`
	LastAlerts      []AlertEvidence `json:"last_alerts,omitempty"`
	LastEvaluatedAt *time.Time      `json:"last_evaluated_at,omitempty"`
}

// HealthOrZero returns the health namespace, or a zero value when absent.
func (m *SourceMetadata) HealthOrZero() HealthMeta {
	if m == nil || m.Health == nil {
		return HealthMeta{}
	}
	return *m.Health
}

// MergeHealth replaces the health namespace.
func (m *SourceMetadata) MergeHealth(h HealthMeta) {
	h.HealthScore = clamp(h.HealthScore, 0, 100)
	h.ConsecutiveFailures = max(h.ConsecutiveFailures, 0)
	h.ConsecutiveLowQualityRuns = max(h.ConsecutiveLowQualityRuns, 0)
	m.Health = &h
}

// MergeCompliance records the latest compliance pre-run check.
func (m *SourceMetadata) MergeCompliance(legalRisk string, check *ComplianceCheck) {
	if m.Compliance == nil {
		m.Compliance = &ComplianceMeta{}
	}
	if legalRisk != "" {
		m.Compliance.LegalRisk = legalRisk
	}
	if check != nil {
		c := *check
		c.Reasons = append([]string(nil), check.Reasons...)
		m.Compliance.LastPreRunCheck = &c
	}
}

// MergeStrategyPerformance stores the rolling record for one strategy.
func (m *SourceMetadata) MergeStrategyPerformance(strategy string, p StrategyPerformance) {
	if m.StrategyPerformance == nil {
		m.StrategyPerformance = make(map[string]StrategyPerformance)
	}
	p.RollingSuccessRate = clamp(p.RollingSuccessRate, 0, 1)
	p.RollingYieldRate = clamp(p.RollingYieldRate, 0, 1)
	m.StrategyPerformance[strategy] = p
}

// MergeIncidents prepends a new alert batch to the bounded incident history
// and records the batch for quick inspection.
func (m *SourceMetadata) MergeIncidents(alerts []AlertEvidence, now time.Time) {
	if m.Incidents == nil {
		m.Incidents = &IncidentMeta{}
	}
	m.Incidents.AlertHistory = AppendAlertHistory(m.Incidents.AlertHistory, alerts, AlertHistoryCap)
	m.Incidents.LastAlertCount = len(alerts)
	m.Incidents.LastAlerts = append([]AlertEvidence(nil), alerts...)
	t := now.UTC()
	m.Incidents.LastEvaluatedAt = &t
}

// MergeLifecycle records the latest automation result and appends a non-nil
// evidence bundle to the bounded lifecycle history.
func (m *SourceMetadata) MergeLifecycle(rec LifecycleRecord, evidence *AlertEvidence) {
	if m.Lifecycle == nil {
		m.Lifecycle = &LifecycleMeta{}
	}
	r := rec
	r.TriggerCodes = append([]string(nil), rec.TriggerCodes...)
	m.Lifecycle.LastResult = &r
	if evidence != nil {
		m.Lifecycle.AlertHistory = AppendAlertHistory(m.Lifecycle.AlertHistory, []AlertEvidence{*evidence}, AlertHistoryCap)
	}
}

// AppendAlertHistory returns incoming (newest first) followed by history,
// trimmed to limit. Neither input slice is modified.
func AppendAlertHistory(history, incoming []AlertEvidence, limit int) []AlertEvidence {
	if limit <= 0 {
		limit = AlertHistoryCap
	}
	fresh := append([]AlertEvidence(nil), incoming...)
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].GeneratedAt.After(fresh[j].GeneratedAt)
	})
	out := make([]AlertEvidence, 0, min(len(fresh)+len(history), limit))
	out = append(out, fresh...)
	out = append(out, history...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UnmarshalJSON decodes each namespace independently. A malformed namespace
// is dropped rather than failing the whole aggregate.
func (m *SourceMetadata) UnmarshalJSON(b []byte) error {
	*m = SourceMetadata{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	decodeNamespace(raw["health"], &m.Health)
	decodeNamespace(raw["compliance"], &m.Compliance)
	decodeNamespace(raw["lifecycle"], &m.Lifecycle)
	decodeNamespace(raw["incidents"], &m.Incidents)

	if perf, ok := raw["strategy_performance"]; ok {
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(perf, &entries); err == nil {
			for name, entry := range entries {
				var p StrategyPerformance
				if err := json.Unmarshal(entry, &p); err != nil {
					continue
				}
				if m.StrategyPerformance == nil {
					m.StrategyPerformance = make(map[string]StrategyPerformance)
				}
				m.StrategyPerformance[name] = p
			}
		}
	}
	return nil
}

func decodeNamespace[T any](raw json.RawMessage, dst **T) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dst = &v
}

// UnmarshalJSON tolerates numeric fields stored as strings or nulls.
func (h *HealthMeta) UnmarshalJSON(b []byte) error {
	var raw struct {
		HealthScore               flexFloat  `json:"health_score"`
		ConsecutiveFailures       flexFloat  `json:"consecutive_failures"`
		ConsecutiveLowQualityRuns flexFloat  `json:"consecutive_low_quality_runs"`
		ObservedRuns              flexFloat  `json:"observed_runs"`
		ObservedFailedRuns        flexFloat  `json:"observed_failed_runs"`
		LastRunStatus             flexString `json:"last_run_status"`
		LastRunError              flexString `json:"last_run_error"`
		LastRunCandidateCount     flexFloat  `json:"last_run_candidate_count"`
		LastRunCuratedCount       flexFloat  `json:"last_run_curated_count"`
		LastRunAt                 flexTime   `json:"last_run_at"`
		LastSuccessAt             flexTime   `json:"last_success_at"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*h = HealthMeta{
		HealthScore:               float64(raw.HealthScore),
		ConsecutiveFailures:       nonNegInt(raw.ConsecutiveFailures),
		ConsecutiveLowQualityRuns: nonNegInt(raw.ConsecutiveLowQualityRuns),
		ObservedRuns:              nonNegInt(raw.ObservedRuns),
		ObservedFailedRuns:        nonNegInt(raw.ObservedFailedRuns),
		LastRunStatus:             string(raw.LastRunStatus),
		LastRunError:              string(raw.LastRunError),
		LastRunCandidateCount:     nonNegInt(raw.LastRunCandidateCount),
		LastRunCuratedCount:       nonNegInt(raw.LastRunCuratedCount),
		LastRunAt:                 raw.LastRunAt.ptr(),
		LastSuccessAt:             raw.LastSuccessAt.ptr(),
	}
	return nil
}

// UnmarshalJSON tolerates numeric fields stored as strings or nulls.
func (p *StrategyPerformance) UnmarshalJSON(b []byte) error {
	var raw struct {
		Attempts           flexFloat  `json:"attempts"`
		Successes          flexFloat  `json:"successes"`
		Failures           flexFloat  `json:"failures"`
		LastStatus         flexString `json:"last_status"`
		LastCandidateCount flexFloat  `json:"last_candidate_count"`
		RollingSuccessRate flexFloat  `json:"rolling_success_rate"`
		RollingYieldRate   flexFloat  `json:"rolling_yield_rate"`
		LastAttemptAt      flexTime   `json:"last_attempt_at"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = StrategyPerformance{
		Attempts:           nonNegInt(raw.Attempts),
		Successes:          nonNegInt(raw.Successes),
		Failures:           nonNegInt(raw.Failures),
		LastStatus:         string(raw.LastStatus),
		LastCandidateCount: nonNegInt(raw.LastCandidateCount),
		RollingSuccessRate: clamp(float64(raw.RollingSuccessRate), 0, 1),
		RollingYieldRate:   clamp(float64(raw.RollingYieldRate), 0, 1),
		LastAttemptAt:      raw.LastAttemptAt.ptr(),
	}
	return nil
}

// flexFloat decodes numbers, numeric strings, and anything else as 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	*f = flexFloat(CoerceFloat(b))
	return nil
}

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		*s = ""
		return nil
	}
	*s = flexString(v)
	return nil
}

type flexTime struct{ t *time.Time }

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil || v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	f.t = &t
	return nil
}

func (f flexTime) ptr() *time.Time { return f.t }

// CoerceFloat reads a JSON number or numeric string. Anything else,
// including NaN and infinities, yields 0.
func CoerceFloat(b []byte) float64 {
	s := string(bytes.TrimSpace(b))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return 0
		}
		s = unq
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func nonNegInt(f flexFloat) int {
	if f <= 0 {
		return 0
	}
	return int(f)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
