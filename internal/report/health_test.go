package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/monitoring"
)

func rowStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = c.String()
	}
	return out
}

func TestWriteHealthXLSX(t *testing.T) {
	lastRun := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)
	rows := []monitoring.SourceHealth{
		{
			SourceKey:             "city-events",
			State:                 model.SourceStateDegraded,
			HealthScore:           35.5,
			ConsecutiveFailures:   4,
			RunsInWindow:          12,
			RollingFailureRate30d: 0.5,
			LastRunStatus:         "failed",
			LastRunError:          "all 3 pages failed",
			LastRunAt:             &lastRun,
			Signals: []monitoring.Signal{
				{Code: "high_failure_rate", Severity: model.SeverityWarning, Details: map[string]any{"rate": 0.5}},
				{Code: "consecutive_failures", Severity: model.SeverityCritical},
			},
			ComputedAt: lastRun.Add(time.Hour),
		},
		{SourceKey: "library", State: model.SourceStateActive, HealthScore: 100, ComputedAt: lastRun},
	}

	path := filepath.Join(t.TempDir(), "health.xlsx")
	require.NoError(t, WriteHealthXLSX(path, rows))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	health, ok := f.Sheet[HealthSheet]
	require.True(t, ok)
	require.Len(t, health.Rows, 3)
	assert.Equal(t, healthHeader, rowStrings(health.Rows[0]))

	first := health.Rows[1].Cells
	assert.Equal(t, "city-events", first[0].String())
	assert.Equal(t, "degraded", first[1].String())
	score, err := first[2].Float()
	require.NoError(t, err)
	assert.InDelta(t, 35.5, score, 1e-9)
	failures, err := first[3].Int()
	require.NoError(t, err)
	assert.Equal(t, 4, failures)
	assert.Equal(t, "2026-03-09T06:00:00Z", first[8].String())
	assert.Equal(t, "all 3 pages failed", first[9].String())

	assert.Equal(t, "", health.Rows[2].Cells[8].String())

	signals, ok := f.Sheet[SignalsSheet]
	require.True(t, ok)
	require.Len(t, signals.Rows, 3)
	assert.Equal(t, []string{"city-events", "high_failure_rate", "warning", `{"rate":0.5}`}, rowStrings(signals.Rows[1]))
	assert.Equal(t, []string{"city-events", "consecutive_failures", "critical", ""}, rowStrings(signals.Rows[2]))
}

func TestWriteHealthXLSX_BadPath(t *testing.T) {
	err := WriteHealthXLSX(filepath.Join(t.TempDir(), "missing", "health.xlsx"), nil)
	assert.Error(t, err)
}
