package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ingest-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_DraftLinks(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertDraft(ctx, "d1", "c1"))
	require.NoError(t, st.InsertDraft(ctx, "d2", "c2"))

	links, err := st.ListDraftLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, model.DraftLink{DraftID: "d1", CandidateID: "c1"}, links[0])
}

func TestSQLite_ReviewCounts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.UpsertCandidates(ctx, []model.Candidate{
		testCandidate("r", "p", "a", model.CandidateStatusCurated),
		testCandidate("r", "p", "b", model.CandidateStatusCurated),
	}))
	require.NoError(t, st.InsertReview(ctx, "cand-a", model.ReviewRejected, now.Add(-time.Hour)))
	require.NoError(t, st.InsertReview(ctx, "cand-b", model.ReviewApproved, now.Add(-time.Hour)))
	require.NoError(t, st.InsertReview(ctx, "cand-b", model.ReviewRejected, now.Add(-72*time.Hour)))

	rc, err := st.ReviewCounts(ctx, "city-events", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewCounts{Reviewed: 2, Rejected: 1}, rc)

	rc, err = st.ReviewCounts(ctx, "other", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewCounts{}, rc)
}

func TestSQLite_SaveMetadataOverMalformedBlob(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureSource(ctx, model.Source{Key: "k", DisplayName: "K"}))
	_, err := st.db.ExecContext(ctx, `UPDATE sources SET metadata = 'not json' WHERE key = 'k'`)
	require.NoError(t, err)

	src, err := st.GetSource(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, src.Metadata.Health)

	var meta model.SourceMetadata
	meta.MergeIncidents([]model.AlertEvidence{{Code: "schedule_miss", Severity: model.SeverityWarning, GeneratedAt: time.Now().UTC()}}, time.Now())
	require.NoError(t, st.SaveSourceMetadata(ctx, "k", &meta, model.NamespaceIncidents))

	src, err = st.GetSource(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, src.Metadata.Incidents)
	assert.Equal(t, 1, src.Metadata.Incidents.LastAlertCount)
}

func TestSQLite_SaveMetadataUnknownNamespace(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureSource(ctx, model.Source{Key: "k", DisplayName: "K"}))

	err := st.SaveSourceMetadata(ctx, "k", &model.SourceMetadata{}, "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown metadata namespace")
}

func TestSQLite_UpdateSourceRates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureSource(ctx, model.Source{Key: "k", DisplayName: "K"}))

	require.NoError(t, st.UpdateSourceRates(ctx, "k", 0.25, 0.5))
	src, err := st.GetSource(ctx, "k")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, src.RollingPromotionRate30d, 1e-9)
	assert.InDelta(t, 0.5, src.RollingFailureRate30d, 1e-9)

	assert.Error(t, st.UpdateSourceRates(ctx, "missing", 0, 0))
}

func TestInClause(t *testing.T) {
	in, args := inClause([]string{"a", "b", "c"})
	assert.Equal(t, "?, ?, ?", in)
	assert.Equal(t, []any{"a", "b", "c"}, args)
}
