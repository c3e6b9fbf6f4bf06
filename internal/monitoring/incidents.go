package monitoring

import (
	"math"
	"time"

	"github.com/sells-group/ingest-cli/internal/cadence"
	"github.com/sells-group/ingest-cli/internal/model"
)

// Incident codes.
const (
	IncidentZeroYieldAnomaly   = "zero_yield_anomaly"
	IncidentScheduleMiss       = "schedule_miss"
	IncidentFailureSpike       = "failure_spike"
	IncidentRejectionRateSurge = "rejection_rate_surge"
	IncidentComplianceFailure  = "compliance_failure"
)

// EvaluateIncidents inspects a source's history and returns the alerts it
// raises, stamped with h.CollectedAt. Missing history never raises an alert.
func EvaluateIncidents(h History, t Thresholds) []model.AlertEvidence {
	now := h.CollectedAt.UTC()
	var alerts []model.AlertEvidence
	raise := func(code, severity string, details map[string]any) {
		details["source_key"] = h.Source.Key
		alerts = append(alerts, model.AlertEvidence{
			Code:        code,
			Severity:    severity,
			GeneratedAt: now,
			Details:     details,
		})
	}

	if d, ok := zeroYield(h.Runs, t.YieldHistoryRuns); ok {
		raise(IncidentZeroYieldAnomaly, model.SeverityWarning, d)
	}
	if d, ok := scheduleMiss(h.Source, h.Runs, now, t.ScheduleMissFactor); ok {
		raise(IncidentScheduleMiss, model.SeverityWarning, d)
	}

	failureRate := ratio(h.Window.RunsFailed, h.Window.RunsTotal)
	consecutive := consecutiveFailures(h.Runs)
	spikeByRate := h.Window.RunsTotal > 0 && failureRate >= t.FailureSpikeRate
	spikeByStreak := consecutive >= t.ConsecutiveFailures
	if spikeByRate || spikeByStreak {
		severity := model.SeverityHigh
		if spikeByRate && spikeByStreak {
			severity = model.SeverityCritical
		}
		raise(IncidentFailureSpike, severity, map[string]any{
			"failure_rate":         round4(failureRate),
			"failure_rate_ceiling": t.FailureSpikeRate,
			"consecutive_failures": consecutive,
			"runs_in_window":       h.Window.RunsTotal,
		})
	}

	if h.RecentReviews.Reviewed >= t.MinReviews {
		recent := h.RecentReviews.RejectionRate()
		prior := h.PriorReviews.RejectionRate()
		if recent >= t.RejectionSurgeRate && recent-prior >= t.RejectionSurgeDelta {
			raise(IncidentRejectionRateSurge, model.SeverityWarning, map[string]any{
				"recent_rejection_rate": round4(recent),
				"prior_rejection_rate":  round4(prior),
				"recent_reviewed":       h.RecentReviews.Reviewed,
				"prior_reviewed":        h.PriorReviews.Reviewed,
			})
		}
	}

	if c := h.Source.Metadata.Compliance; c != nil && c.LastPreRunCheck != nil && !c.LastPreRunCheck.Passed {
		severity := model.SeverityHigh
		if c.LastPreRunCheck.Severity == model.SeverityCritical {
			severity = model.SeverityCritical
		}
		raise(IncidentComplianceFailure, severity, map[string]any{
			"check_severity": c.LastPreRunCheck.Severity,
			"reasons":        append([]string(nil), c.LastPreRunCheck.Reasons...),
			"checked_at":     c.LastPreRunCheck.CheckedAt.UTC().Format(time.RFC3339),
		})
	}
	return alerts
}

// zeroYield fires when the latest completed run produced nothing while the
// runs before it produced candidates on average.
func zeroYield(runs []model.Run, window int) (map[string]any, bool) {
	var completed []model.Run
	for _, r := range runs {
		if r.Status == model.RunStatusSuccess || r.Status == model.RunStatusPartial {
			completed = append(completed, r)
		}
	}
	if len(completed) < 2 || completed[0].Counts.CandidatesTotal != 0 {
		return nil, false
	}
	prior := completed[1:]
	if window > 0 && len(prior) > window {
		prior = prior[:window]
	}
	total := 0
	for _, r := range prior {
		total += r.Counts.CandidatesTotal
	}
	avg := float64(total) / float64(len(prior))
	if avg <= 0 {
		return nil, false
	}
	return map[string]any{
		"run_id":             completed[0].ID,
		"prior_average":      round4(avg),
		"prior_runs_sampled": len(prior),
	}, true
}

// scheduleMiss fires when an active source has not started a run within
// factor cadence intervals. Sources that never ran or carry an unparseable
// cadence are skipped.
func scheduleMiss(src model.Source, runs []model.Run, now time.Time, factor float64) (map[string]any, bool) {
	if src.State != model.SourceStateActive || len(runs) == 0 || src.Cadence == "" {
		return nil, false
	}
	rule, err := cadence.Parse(src.Cadence)
	if err != nil {
		return nil, false
	}
	last := runs[0].StartedAt
	for _, r := range runs[1:] {
		if r.StartedAt.After(last) {
			last = r.StartedAt
		}
	}
	allowed := time.Duration(float64(rule.Interval()) * factor)
	elapsed := now.Sub(last)
	if elapsed <= allowed {
		return nil, false
	}
	return map[string]any{
		"cadence":       rule.String(),
		"last_run_at":   last.UTC().Format(time.RFC3339),
		"elapsed_hours": round4(elapsed.Hours()),
		"allowed_hours": round4(allowed.Hours()),
	}, true
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
