// Package metrics exposes the Prometheus collectors for ingestion runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finalized runs per source and status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_runs_total",
			Help: "Total number of finalized ingestion runs",
		},
		[]string{"source", "status"},
	)

	// RunsSkipped counts runs skipped by cadence gating.
	RunsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_runs_skipped_total",
			Help: "Total number of runs skipped because the source was not due",
		},
		[]string{"source"},
	)

	// PagesTotal counts processed pages per source and outcome.
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_pages_total",
			Help: "Total number of pages processed",
		},
		[]string{"source", "status"},
	)

	// CandidatesTotal counts stored candidates per source and status.
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_candidates_total",
			Help: "Total number of candidates stored",
		},
		[]string{"source", "status"},
	)

	// RunDuration tracks wall time per run.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Ingestion run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"source"},
	)

	// AlertsRaised counts incident alerts per source, code and severity.
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_alerts_raised_total",
			Help: "Total number of incident alerts raised",
		},
		[]string{"source", "code", "severity"},
	)

	// SourceHealthScore is the latest computed health score per source.
	SourceHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_source_health_score",
			Help: "Latest computed health score (0-100) per source",
		},
		[]string{"source"},
	)
)
