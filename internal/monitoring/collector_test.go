package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/store"
)

// mockStore implements the store methods the monitor uses. Anything else
// panics through the nil embedded interface.
type mockStore struct {
	store.Store

	mu         sync.Mutex
	sources    []model.Source
	runs       map[string][]model.Run
	rows       []store.SourceHealthRow
	reviews    map[string]model.ReviewCounts
	listErr    error
	saved      map[string]*model.SourceMetadata
	savedNS    map[string][]model.Namespace
	rates      map[string][2]float64
	reviewArgs []time.Time
}

func newMockStore(sources ...model.Source) *mockStore {
	return &mockStore{
		sources: sources,
		runs:    make(map[string][]model.Run),
		reviews: make(map[string]model.ReviewCounts),
		saved:   make(map[string]*model.SourceMetadata),
		savedNS: make(map[string][]model.Namespace),
		rates:   make(map[string][2]float64),
	}
}

func (m *mockStore) ListSources(context.Context) ([]model.Source, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sources, nil
}

func (m *mockStore) ListSourceHealthRows(context.Context, time.Time) ([]store.SourceHealthRow, error) {
	return m.rows, nil
}

func (m *mockStore) ListRunsBySource(_ context.Context, key string, _ int) ([]model.Run, error) {
	return m.runs[key], nil
}

// ReviewCounts keys canned results by "<source>/recent" and "<source>/prior".
func (m *mockStore) ReviewCounts(_ context.Context, key string, from, to time.Time) (model.ReviewCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewArgs = append(m.reviewArgs, from, to)
	if len(m.reviewArgs)%4 == 2 {
		return m.reviews[key+"/recent"], nil
	}
	return m.reviews[key+"/prior"], nil
}

func (m *mockStore) SaveSourceMetadata(_ context.Context, key string, meta *model.SourceMetadata, ns ...model.Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *meta
	m.saved[key] = &cp
	m.savedNS[key] = append(m.savedNS[key], ns...)
	return nil
}

func (m *mockStore) UpdateSourceRates(_ context.Context, key string, promo, fail float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[key] = [2]float64{promo, fail}
	return nil
}

func fixedNow() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

func TestCollector_Collect(t *testing.T) {
	st := newMockStore(
		model.Source{Key: "a", State: model.SourceStateActive},
		model.Source{Key: "b", State: model.SourceStatePaused},
	)
	st.rows = []store.SourceHealthRow{{SourceKey: "a", RunsTotal: 4, RunsFailed: 1}}
	st.runs["a"] = []model.Run{{ID: "r1", Status: model.RunStatusSuccess}}
	st.reviews["a/recent"] = model.ReviewCounts{Reviewed: 6, Rejected: 3}
	st.reviews["a/prior"] = model.ReviewCounts{Reviewed: 4, Rejected: 1}

	c := NewCollector(st, DefaultThresholds())
	c.now = fixedNow

	hs, err := c.Collect(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, hs, 2)

	a := hs[0]
	assert.Equal(t, "a", a.Source.Key)
	assert.Equal(t, 4, a.Window.RunsTotal)
	assert.Len(t, a.Runs, 1)
	assert.Equal(t, model.ReviewCounts{Reviewed: 6, Rejected: 3}, a.RecentReviews)
	assert.Equal(t, model.ReviewCounts{Reviewed: 4, Rejected: 1}, a.PriorReviews)
	assert.Equal(t, fixedNow(), a.CollectedAt)

	// Sources without window rows still get a keyed zero row.
	assert.Equal(t, store.SourceHealthRow{SourceKey: "b"}, hs[1].Window)

	// Recent window is [now-7d, now], prior is [now-14d, now-7d].
	assert.Equal(t, fixedNow().Add(-7*24*time.Hour), st.reviewArgs[0])
	assert.Equal(t, fixedNow(), st.reviewArgs[1])
	assert.Equal(t, fixedNow().Add(-14*24*time.Hour), st.reviewArgs[2])
}

func TestCollector_SelectKeys(t *testing.T) {
	st := newMockStore(model.Source{Key: "a"}, model.Source{Key: "b"})
	c := NewCollector(st, DefaultThresholds())

	hs, err := c.Collect(context.Background(), []string{"b"})
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "b", hs[0].Source.Key)

	_, err = c.Collect(context.Background(), []string{"missing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCollector_ListError(t *testing.T) {
	st := newMockStore()
	st.listErr = errors.New("db down")
	_, err := NewCollector(st, DefaultThresholds()).Collect(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list sources")
}
