package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ingest-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT id, source_key, status.* FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSource(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	cols := []string{"key", "display_name", "state", "production_approved", "cadence",
		"rolling_promotion_rate_30d", "rolling_failure_rate_30d", "metadata", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT key, display_name, .* FROM sources WHERE key = \$1`).
		WithArgs("city-events").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"city-events", "City Events", model.SourceStateActive, true, "FREQ=DAILY",
			0.4, 0.1, []byte(`{"health": {"observed_runs": 7}, "compliance": 12}`), now, now,
		))

	src, err := s.GetSource(context.Background(), "city-events")
	require.NoError(t, err)
	assert.Equal(t, "City Events", src.DisplayName)
	assert.True(t, src.ProductionApproved)
	require.NotNil(t, src.Metadata.Health)
	assert.Equal(t, 7, src.Metadata.Health.ObservedRuns)
	assert.Nil(t, src.Metadata.Compliance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSourceMetadata_PerNamespace(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	var meta model.SourceMetadata
	meta.MergeHealth(model.HealthMeta{ObservedRuns: 1})
	meta.MergeCompliance("medium", nil)

	mock.ExpectExec(`UPDATE sources SET metadata = jsonb_set`).
		WithArgs("health", pgxmock.AnyArg(), pgxmock.AnyArg(), "k").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE sources SET metadata = jsonb_set`).
		WithArgs("compliance", pgxmock.AnyArg(), pgxmock.AnyArg(), "k").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SaveSourceMetadata(context.Background(), "k", &meta, model.NamespaceHealth, model.NamespaceCompliance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSourceMetadata_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sources SET metadata = jsonb_set`).
		WithArgs("incidents", pgxmock.AnyArg(), pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SaveSourceMetadata(context.Background(), "gone", &model.SourceMetadata{}, model.NamespaceIncidents)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_AlreadyFinal(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1.* WHERE id = \$11 AND status = 'running'`).
		WithArgs("failed", 0, 0, 0, 0, 0, 0, pgxmock.AnyArg(), "boom", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "run-1", model.RunStatusFailed, nil, "boom")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_RejectsRunning(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.FinishRun(context.Background(), "run-1", model.RunStatusRunning, nil, "")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertPages(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"pages"}, []string{"id", "run_id", "source_key", "url", "status", "created_at", "updated_at"}).
		WillReturnResult(2)

	pages, err := s.InsertPages(context.Background(), "run-1", "k", []string{"https://a.example", "https://b.example"})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "https://b.example", pages[1].URL)
	assert.NotEqual(t, pages[0].ID, pages[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCandidates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_candidates"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_candidates"}, candidateMerge.Columns).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "candidates" .* ON CONFLICT \("candidate_key"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_candidate_runs"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_candidate_runs"}, candidateRunMerge.Columns).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "candidate_runs" .* DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	c := testCandidate("run-1", "page-1", "key-a", model.CandidateStatusCurated)
	require.NoError(t, s.UpsertCandidates(context.Background(), []model.Candidate{c, c}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCandidates_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	require.NoError(t, s.UpsertCandidates(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkCandidatesPromoted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE candidates SET status = \$1, updated_at = \$2 WHERE id = ANY\(\$3\) AND status <> \$1`).
		WithArgs("pushed_to_studio", pgxmock.AnyArg(), []string{"a", "b"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := s.MarkCandidatesPromoted(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSourceHealthRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT s.key,`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"key", "runs", "failed", "cands", "promoted"}).
			AddRow("a", 10, 2, 40, 4).
			AddRow("b", 0, 0, 0, 0))

	rows, err := s.ListSourceHealthRows(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, SourceHealthRow{SourceKey: "a", RunsTotal: 10, RunsFailed: 2, CandidatesTotal: 40, CandidatesPromoted: 4}, rows[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReviewCounts(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(`FROM candidate_reviews cr JOIN candidates c`).
		WithArgs("k", from, to).
		WillReturnRows(pgxmock.NewRows([]string{"count", "rejected"}).AddRow(8, 2))

	rc, err := s.ReviewCounts(context.Background(), "k", from, to)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewCounts{Reviewed: 8, Rejected: 2}, rc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertSyncLogs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"promotion_sync_log"}, []string{"candidate_id", "target_id", "outcome", "created_at"}).
		WillReturnResult(1)

	target := "d1"
	n, err := s.InsertSyncLogs(context.Background(), []model.SyncLogEntry{{CandidateID: "c1", TargetID: &target, Outcome: model.SyncOutcomeSuccess}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	called := false
	s := &PostgresStore{closeFn: func() { called = true }}
	require.NoError(t, s.Close())
	assert.True(t, called)
}
