package model

import "time"

// SourceState is the lifecycle state of a source. Sources are never deleted.
type SourceState string

const (
	SourceStateActive   SourceState = "active"
	SourceStateDegraded SourceState = "degraded"
	SourceStatePaused   SourceState = "paused"
	SourceStateRetired  SourceState = "retired"
)

// Source is a registered content origin along with its rolling health.
type Source struct {
	Key                     string         `json:"key"`
	DisplayName             string         `json:"display_name"`
	State                   SourceState    `json:"state"`
	ProductionApproved      bool           `json:"production_approved"`
	Cadence                 string         `json:"cadence,omitempty"`
	RollingPromotionRate30d float64        `json:"rolling_promotion_rate_30d"`
	RollingFailureRate30d   float64        `json:"rolling_failure_rate_30d"`
	Metadata                SourceMetadata `json:"metadata"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// Alert severities, lowest to highest.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SeverityRank orders severities; unknown values rank lowest.
func SeverityRank(s string) int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AlertEvidence is a single alert stored in a source's bounded history.
type AlertEvidence struct {
	Code        string         `json:"code"`
	Severity    string         `json:"severity"`
	GeneratedAt time.Time      `json:"generated_at"`
	Details     map[string]any `json:"details,omitempty"`
}
