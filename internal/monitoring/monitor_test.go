package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ingest-cli/internal/config"
	"github.com/sells-group/ingest-cli/internal/metrics"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/store"
)

func failingSourceStore() *mockStore {
	src := model.Source{Key: "mon-failing", State: model.SourceStateActive, Cadence: "FREQ=DAILY;BYHOUR=6;BYMINUTE=0"}
	src.Metadata.MergeHealth(model.HealthMeta{ObservedRuns: 9, ConsecutiveLowQualityRuns: 2})
	st := newMockStore(src)
	st.rows = []store.SourceHealthRow{{SourceKey: "mon-failing", RunsTotal: 20, RunsFailed: 13, CandidatesTotal: 50, CandidatesPromoted: 10}}
	st.runs["mon-failing"] = runs(model.RunStatusFailed, model.RunStatusFailed, model.RunStatusFailed)
	return st
}

func newTestMonitor(st store.Store, alerter *Alerter) *Monitor {
	m := New(st, alerter, DefaultThresholds())
	m.collector.now = func() time.Time { return fixedNow().Add(time.Hour) }
	return m
}

func TestMonitor_Health(t *testing.T) {
	st := failingSourceStore()
	m := newTestMonitor(st, nil)

	hs, err := m.Health(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.True(t, hs[0].HasSignal(SignalHighFailureRate))
	assert.True(t, hs[0].HasSignal(SignalConsecutiveFailures))

	assert.Equal(t, [2]float64{0.2, 0.65}, st.rates["mon-failing"])
	saved := st.saved["mon-failing"]
	require.NotNil(t, saved)
	assert.Equal(t, []model.Namespace{model.NamespaceHealth}, st.savedNS["mon-failing"])
	assert.InDelta(t, hs[0].HealthScore, saved.Health.HealthScore, 1e-9)
	// Counters owned by the orchestrator survive.
	assert.Equal(t, 9, saved.Health.ObservedRuns)
	assert.Equal(t, 2, saved.Health.ConsecutiveLowQualityRuns)

	assert.InDelta(t, hs[0].HealthScore, testutil.ToFloat64(metrics.SourceHealthScore.WithLabelValues("mon-failing")), 1e-9)
}

func TestMonitor_Incidents(t *testing.T) {
	st := failingSourceStore()
	sink := &recordingSink{}
	m := newTestMonitor(st, NewAlerter(config.AlertsConfig{MinSeverity: model.SeverityHigh, CooldownHours: 24}, sink))

	res, err := m.Incidents(context.Background(), []string{"mon-failing"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	_, ok := alertByCode(res[0].Alerts, IncidentFailureSpike)
	require.True(t, ok)
	assert.Equal(t, 1, res[0].Delivered)
	require.Len(t, sink.incidents, 1)

	saved := st.saved["mon-failing"]
	require.NotNil(t, saved.Incidents)
	assert.Equal(t, len(res[0].Alerts), saved.Incidents.LastAlertCount)
	assert.Len(t, saved.Incidents.AlertHistory, len(res[0].Alerts))

	// A second pass over the persisted history is held back by the cooldown.
	st.sources[0].Metadata = *saved
	res, err = m.Incidents(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res[0].Delivered)
	assert.Len(t, st.saved["mon-failing"].Incidents.AlertHistory, 2*len(res[0].Alerts))
	assert.Len(t, sink.incidents, 1)
}

func TestMonitor_IncidentsHistoryBounded(t *testing.T) {
	st := failingSourceStore()
	m := newTestMonitor(st, nil)
	for range 40 {
		_, err := m.Incidents(context.Background(), nil)
		require.NoError(t, err)
		st.sources[0].Metadata = *st.saved["mon-failing"]
	}
	assert.Len(t, st.saved["mon-failing"].Incidents.AlertHistory, model.AlertHistoryCap)
}
