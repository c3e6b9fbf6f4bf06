package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRunsTotal(t *testing.T) {
	RunsTotal.WithLabelValues("metrics-test", "partial").Inc()
	RunsTotal.WithLabelValues("metrics-test", "partial").Inc()
	assert.InDelta(t, 2, testutil.ToFloat64(RunsTotal.WithLabelValues("metrics-test", "partial")), 1e-9)
}

func TestSourceHealthScore(t *testing.T) {
	SourceHealthScore.WithLabelValues("metrics-test").Set(72.5)
	assert.InDelta(t, 72.5, testutil.ToFloat64(SourceHealthScore.WithLabelValues("metrics-test")), 1e-9)
}
