package model

import "time"

// RunStatus represents the state of an ingestion run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// IsTerminal reports whether the status is a finalized outcome.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusPartial, RunStatusFailed:
		return true
	}
	return false
}

// Run represents one execution of the pipeline against a single source.
// A run is finalized exactly once and never mutated afterwards.
type Run struct {
	ID         string     `json:"id"`
	SourceKey  string     `json:"source_key"`
	Status     RunStatus  `json:"status"`
	Counts     RunCounts  `json:"counts"`
	Summary    *RunResult `json:"summary,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunCounts holds the page and candidate counters of a run.
type RunCounts struct {
	PagesDiscovered    int `json:"pages_discovered"`
	PagesExtracted     int `json:"pages_extracted"`
	PagesFailed        int `json:"pages_failed"`
	CandidatesTotal    int `json:"candidates_total"`
	CandidatesCurated  int `json:"candidates_curated"`
	CandidatesFiltered int `json:"candidates_quality_filtered"`
}

// RunResult holds the summary metrics written when a run is finalized.
type RunResult struct {
	Counts            RunCounts      `json:"counts"`
	SnapshotLocation  string         `json:"snapshot_location,omitempty"`
	SelectedStrategy  string         `json:"selected_strategy,omitempty"`
	StrategyReasoning []string       `json:"strategy_reasoning,omitempty"`
	HealthStatus      string         `json:"health_status,omitempty"`
	DurationMs        int64          `json:"duration_ms"`
	Versions          map[string]any `json:"versions,omitempty"`
}

// PageStatus represents the lifecycle of a discovered page within a run.
type PageStatus string

const (
	PageStatusDiscovered PageStatus = "discovered"
	PageStatusExtracted  PageStatus = "extracted"
	PageStatusFailed     PageStatus = "failed"
)

// Page is a URL discovered during a run. Its status moves from discovered
// to exactly one of extracted or failed.
type Page struct {
	ID        string     `json:"id"`
	RunID     string     `json:"run_id"`
	SourceKey string     `json:"source_key"`
	URL       string     `json:"url"`
	Status    PageStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
