package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ingest-cli/internal/config"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/source"
	"github.com/sells-group/ingest-cli/internal/strategy"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestFinalStatus(t *testing.T) {
	tests := []struct {
		name   string
		counts model.RunCounts
		err    error
		want   model.RunStatus
	}{
		{"clean", model.RunCounts{PagesDiscovered: 5, PagesExtracted: 5}, nil, model.RunStatusSuccess},
		{"some failed", model.RunCounts{PagesDiscovered: 5, PagesExtracted: 3, PagesFailed: 2}, nil, model.RunStatusPartial},
		{"all failed", model.RunCounts{PagesDiscovered: 2, PagesFailed: 2}, nil, model.RunStatusFailed},
		{"no pages", model.RunCounts{}, nil, model.RunStatusSuccess},
		{"aborted", model.RunCounts{PagesDiscovered: 5, PagesExtracted: 4, PagesFailed: 1}, errors.New("snapshot"), model.RunStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := finalStatus(tt.counts, tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextHealth(t *testing.T) {
	h := model.HealthMeta{ConsecutiveFailures: 2, ConsecutiveLowQualityRuns: 1, ObservedRuns: 4, ObservedFailedRuns: 2, HealthScore: 70}

	failed := nextHealth(h, model.RunStatusFailed, "boom", model.RunCounts{}, 0.1, fixedNow)
	assert.Equal(t, 3, failed.ConsecutiveFailures)
	assert.Equal(t, 1, failed.ConsecutiveLowQualityRuns)
	assert.Equal(t, 5, failed.ObservedRuns)
	assert.Equal(t, 3, failed.ObservedFailedRuns)
	assert.Equal(t, "boom", failed.LastRunError)
	assert.InDelta(t, 70.0, failed.HealthScore, 1e-9)
	assert.Nil(t, failed.LastSuccessAt)
	require.NotNil(t, failed.LastRunAt)
	assert.Equal(t, fixedNow, *failed.LastRunAt)

	low := nextHealth(failed, model.RunStatusPartial, "", model.RunCounts{CandidatesTotal: 40, CandidatesCurated: 1}, 0.1, fixedNow)
	assert.Equal(t, 0, low.ConsecutiveFailures)
	assert.Equal(t, 2, low.ConsecutiveLowQualityRuns)
	assert.Equal(t, 40, low.LastRunCandidateCount)
	assert.Equal(t, 1, low.LastRunCuratedCount)
	require.NotNil(t, low.LastSuccessAt)

	good := nextHealth(low, model.RunStatusSuccess, "", model.RunCounts{CandidatesTotal: 10, CandidatesCurated: 6}, 0.1, fixedNow)
	assert.Equal(t, 0, good.ConsecutiveLowQualityRuns)
	assert.Equal(t, string(model.RunStatusSuccess), good.LastRunStatus)
}

func TestLowQuality(t *testing.T) {
	assert.True(t, lowQuality(model.RunCounts{}, 0.1))
	assert.True(t, lowQuality(model.RunCounts{CandidatesTotal: 20, CandidatesCurated: 1}, 0.1))
	assert.False(t, lowQuality(model.RunCounts{CandidatesTotal: 20, CandidatesCurated: 2}, 0.1))
}

func TestDedupePages(t *testing.T) {
	pages := []source.DiscoveredPage{
		{URL: "https://example.org/a"},
		{URL: " https://example.org/a "},
		{URL: "https://example.org/b"},
		{URL: "https://example.org/a"},
	}
	got := dedupePages(pages)
	require.Len(t, got, 2)
	assert.Equal(t, "https://example.org/a", got[0].URL)
	assert.Equal(t, "https://example.org/b", got[1].URL)
}

func TestTally(t *testing.T) {
	var c model.RunCounts
	tally(&c, []model.Candidate{
		{Status: model.CandidateStatusCurated},
		{Status: model.CandidateStatusPromoted},
		{Status: model.CandidateStatusQualityFiltered},
		{Status: model.CandidateStatusRejected},
	})
	assert.Equal(t, 4, c.CandidatesTotal)
	assert.Equal(t, 2, c.CandidatesCurated)
	assert.Equal(t, 1, c.CandidatesFiltered)
}

func TestSkipReason(t *testing.T) {
	last := fixedNow.Add(-2 * time.Hour)
	src := model.Source{State: model.SourceStateActive, Cadence: "FREQ=DAILY;BYHOUR=6;BYMINUTE=0"}

	assert.Empty(t, skipReason(src, fixedNow), "never run")

	src.Metadata.MergeHealth(model.HealthMeta{LastRunAt: &last})
	assert.Equal(t, "not due until 2026-03-11T06:00:00Z", skipReason(src, fixedNow))

	src.Cadence = "whenever"
	assert.Empty(t, skipReason(src, fixedNow))

	src.State = model.SourceStateRetired
	assert.Equal(t, "source is retired", skipReason(src, fixedNow))

	src.State = model.SourceStateDegraded
	src.Cadence = ""
	assert.Empty(t, skipReason(src, fixedNow))
}

func TestComplianceCheck(t *testing.T) {
	sel := strategy.Selection{SelectedPrimary: strategy.RSS}

	c := complianceCheck(model.Source{}, strategy.LegalRiskLow, sel, fixedNow)
	assert.True(t, c.Passed)
	assert.Empty(t, c.Reasons)

	c = complianceCheck(model.Source{}, strategy.LegalRiskHigh, sel, fixedNow)
	assert.False(t, c.Passed)
	assert.Equal(t, model.SeverityCritical, c.Severity)

	c = complianceCheck(model.Source{ProductionApproved: true}, strategy.LegalRiskHigh, sel, fixedNow)
	assert.True(t, c.Passed)

	c = complianceCheck(model.Source{}, "extreme", sel, fixedNow)
	assert.False(t, c.Passed)
	assert.Equal(t, model.SeverityWarning, c.Severity)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Ingest: config.IngestConfig{
			QualityThreshold: 0.7,
			PageTimeoutSecs:  5,
			ExtractWorkers:   4,
			PagesPerSecond:   3,
			RetryAttempts:    2,
			RetryBackoffMs:   50,
		},
		Strategy:   config.StrategyConfig{StrongRate: 0.8},
		Lifecycle:  config.LifecycleConfig{MaxConsecutiveFailures: 5},
		Monitoring: config.MonitoringConfig{LookbackDays: 14},
	}
	o := OptionsFromConfig(cfg)
	assert.InDelta(t, 0.7, o.QualityThreshold, 1e-9)
	assert.Equal(t, 5*time.Second, o.PageTimeout)
	assert.Equal(t, 4, o.Workers)
	assert.InDelta(t, 3.0, o.PagesPerSecond, 1e-9)
	assert.Equal(t, 2, o.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, o.Retry.InitialBackoff)
	assert.InDelta(t, 0.8, o.StrongRate, 1e-9)
	assert.InDelta(t, strategy.DefaultHalfLife, o.HalfLife, 1e-9)
	assert.Equal(t, 5, o.Lifecycle.MaxConsecutiveFailures)
	assert.Equal(t, 14*24*time.Hour, o.RateWindow)
	assert.Equal(t, "en-US", o.Locale)

	d := OptionsFromConfig(&config.Config{})
	assert.Equal(t, DefaultOptions().PageTimeout, d.PageTimeout)
	assert.Equal(t, 1, d.Workers)
}

func TestSyncSources(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	entries := []config.SourceEntry{
		{Key: "city-events", DisplayName: "City Events", Cadence: "FREQ=DAILY;BYHOUR=6;BYMINUTE=0", ProductionApproved: true},
		{Key: "library", DisplayName: "Library", Cadence: "FREQ=WEEKLY;BYDAY=MO;BYHOUR=7;BYMINUTE=0"},
	}
	require.NoError(t, SyncSources(ctx, st, entries))

	require.NoError(t, st.UpdateSourceState(ctx, "city-events", model.SourceStateDegraded, "FREQ=WEEKLY;BYDAY=TU;BYHOUR=6;BYMINUTE=0"))
	entries[0].DisplayName = "City Events Calendar"
	require.NoError(t, SyncSources(ctx, st, entries))

	src, err := st.GetSource(ctx, "city-events")
	require.NoError(t, err)
	assert.Equal(t, "City Events Calendar", src.DisplayName)
	assert.Equal(t, model.SourceStateDegraded, src.State)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=TU;BYHOUR=6;BYMINUTE=0", src.Cadence)
	assert.True(t, src.ProductionApproved)

	lib, err := st.GetSource(ctx, "library")
	require.NoError(t, err)
	assert.Equal(t, model.SourceStateActive, lib.State)
	assert.False(t, lib.ProductionApproved)
}
