package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/monitoring"
	"github.com/sells-group/ingest-cli/internal/store"
)

const origin = "https://ops.example.org"

func newTestRouter(t *testing.T) (http.Handler, *model.Run) {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	require.NoError(t, st.EnsureSource(ctx, model.Source{Key: "city-events", DisplayName: "City Events", Cadence: "FREQ=DAILY;BYHOUR=6;BYMINUTE=0"}))
	run, err := st.CreateRun(ctx, "city-events")
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusFailed, &model.RunResult{}, "feed unreachable"))

	return NewRouter(st, monitoring.DefaultThresholds(), []string{origin}), run
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", origin)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestLiveness(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestSources(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := get(t, h, "/api/v1/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	sources := decode[[]model.Source](t, rec)
	require.Len(t, sources, 1)
	assert.Equal(t, "city-events", sources[0].Key)

	rec = get(t, h, "/api/v1/sources/city-events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "City Events", decode[model.Source](t, rec).DisplayName)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/sources/nope").Code)
}

func TestSourceRuns(t *testing.T) {
	h, run := newTestRouter(t)

	rec := get(t, h, "/api/v1/sources/city-events/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]model.Run](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/sources/city-events/runs?limit=zero").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/sources/nope/runs").Code)
}

func TestRuns(t *testing.T) {
	h, run := newTestRouter(t)

	rec := get(t, h, "/api/v1/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "feed unreachable", decode[model.Run](t, rec).Error)

	rec = get(t, h, "/api/v1/runs/"+run.ID+"/candidates")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/runs/missing").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/runs/missing/candidates").Code)
}

func TestHealthAndIncidents(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := get(t, h, "/api/v1/health?source=city-events")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[[]monitoring.SourceHealth](t, rec)
	require.Len(t, health, 1)
	assert.Equal(t, "city-events", health[0].SourceKey)
	assert.Equal(t, 1, health[0].ConsecutiveFailures)

	rec = get(t, h, "/api/v1/incidents")
	require.Equal(t, http.StatusOK, rec.Code)
	incidents := decode[[]monitoring.SourceIncidents](t, rec)
	require.Len(t, incidents, 1)
	assert.NotNil(t, incidents[0].Alerts)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/health?source=nope").Code)
}

func TestMetrics(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSourceKeys(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health?source=a,%20b,,c", nil)
	assert.Equal(t, []string{"a", "b", "c"}, sourceKeys(req))
	assert.Nil(t, sourceKeys(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)))
}
