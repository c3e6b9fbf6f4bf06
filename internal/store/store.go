// Package store persists sources, runs, pages, candidates, and promotion
// bookkeeping in Postgres or SQLite.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/model"
)

// SourceHealthRow aggregates a source's run and candidate counts over a window.
type SourceHealthRow struct {
	SourceKey          string `json:"source_key"`
	RunsTotal          int    `json:"runs_total"`
	RunsFailed         int    `json:"runs_failed"`
	CandidatesTotal    int    `json:"candidates_total"`
	CandidatesPromoted int    `json:"candidates_promoted"`
}

// Rates returns the promotion and failure rates of the window. Both are 0
// when their denominator is empty.
func (r SourceHealthRow) Rates() (promotion, failure float64) {
	return fraction(r.CandidatesPromoted, r.CandidatesTotal), fraction(r.RunsFailed, r.RunsTotal)
}

func fraction(num, den int) float64 {
	if den <= 0 || num <= 0 {
		return 0
	}
	return min(1, float64(num)/float64(den))
}

// Store defines the persistence interface for the ingestion core.
type Store interface {
	// Sources
	EnsureSource(ctx context.Context, src model.Source) error
	GetSource(ctx context.Context, key string) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	SaveSourceMetadata(ctx context.Context, key string, meta *model.SourceMetadata, namespaces ...model.Namespace) error
	UpdateSourceState(ctx context.Context, key string, state model.SourceState, cadence string) error
	UpdateSourceRates(ctx context.Context, key string, promotionRate, failureRate float64) error
	ListSourceHealthRows(ctx context.Context, since time.Time) ([]SourceHealthRow, error)

	// Runs
	CreateRun(ctx context.Context, sourceKey string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRunsBySource(ctx context.Context, sourceKey string, limit int) ([]model.Run, error)

	// Pages
	InsertPages(ctx context.Context, runID, sourceKey string, urls []string) ([]model.Page, error)
	MarkPageExtracted(ctx context.Context, pageID string) error
	MarkPageFailed(ctx context.Context, pageID, errMsg string) error

	// Candidates
	UpsertCandidates(ctx context.Context, cands []model.Candidate) error
	ListCandidatesByRun(ctx context.Context, runID string) ([]model.Candidate, error)
	ReviewCounts(ctx context.Context, sourceKey string, from, to time.Time) (model.ReviewCounts, error)

	// Promotion
	ListDraftLinks(ctx context.Context) ([]model.DraftLink, error)
	ListCandidateStates(ctx context.Context, ids []string) ([]model.CandidateState, error)
	ListSuccessSyncLogs(ctx context.Context) ([]model.SyncLogEntry, error)
	MarkCandidatesPromoted(ctx context.Context, ids []string) (int, error)
	InsertSyncLogs(ctx context.Context, entries []model.SyncLogEntry) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// ErrNotFound is wrapped by lookups and updates that match no row.
var ErrNotFound = eris.New("store: not found")
