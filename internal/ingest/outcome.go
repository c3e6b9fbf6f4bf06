package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/lifecycle"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/strategy"
)

// recordOutcome folds a finished run into the source: strategy performance,
// health counters, compliance, rolling rates, and the lifecycle decision.
func (o *Orchestrator) recordOutcome(ctx context.Context, r *run, status model.RunStatus, errMsg string, now time.Time) (*lifecycle.Decision, error) {
	meta := &r.src.Metadata
	namespaces := []model.Namespace{model.NamespaceHealth}

	if r.selection != nil && r.selection.SelectedPrimary != "" {
		name := string(r.selection.SelectedPrimary)
		perf := strategy.MergeOutcome(meta.StrategyPerformance[name], strategy.Outcome{
			Succeeded:      status != model.RunStatusFailed,
			Status:         string(status),
			CandidateCount: r.counts.CandidatesTotal,
			At:             now,
		}, o.opts.HalfLife)
		meta.MergeStrategyPerformance(name, perf)
		namespaces = append(namespaces, model.NamespaceStrategyPerformance)
	}
	if r.compliance != nil {
		meta.MergeCompliance(r.legalRisk, r.compliance)
		namespaces = append(namespaces, model.NamespaceCompliance)
	}
	meta.MergeHealth(nextHealth(meta.HealthOrZero(), status, errMsg, r.counts, o.opts.LowQualityRatio, now))

	if err := o.store.SaveSourceMetadata(ctx, r.key, meta, namespaces...); err != nil {
		return nil, eris.Wrapf(err, "ingest: save metadata for %s", r.key)
	}
	if err := o.refreshRates(ctx, r.src, now); err != nil {
		return nil, err
	}

	d := lifecycle.Evaluate(lifecycle.InputFor(*r.src, status, false), o.opts.Lifecycle, now)
	if err := lifecycle.Apply(ctx, o.store, r.src, d, now); err != nil {
		return nil, err
	}
	if d.Fired() {
		r.log.Warn("lifecycle triggered",
			zap.Strings("triggers", d.TriggerCodes),
			zap.String("severity", d.AlertSeverity),
			zap.Bool("degraded", d.ShouldTransitionToDegraded),
			zap.Bool("cadence_downgraded", d.ShouldDowngradeCadence),
		)
	}
	return &d, nil
}

// nextHealth advances the health counters by one finished run. Failed runs
// leave the low-quality streak unchanged.
func nextHealth(h model.HealthMeta, status model.RunStatus, errMsg string, c model.RunCounts, lowRatio float64, now time.Time) model.HealthMeta {
	at := now.UTC()
	h.ObservedRuns++
	h.LastRunStatus = string(status)
	h.LastRunError = errMsg
	h.LastRunAt = &at
	h.LastRunCandidateCount = c.CandidatesTotal
	h.LastRunCuratedCount = c.CandidatesCurated

	if status == model.RunStatusFailed {
		h.ObservedFailedRuns++
		h.ConsecutiveFailures++
		return h
	}
	h.ConsecutiveFailures = 0
	h.LastSuccessAt = &at
	if lowQuality(c, lowRatio) {
		h.ConsecutiveLowQualityRuns++
	} else {
		h.ConsecutiveLowQualityRuns = 0
	}
	return h
}

// lowQuality reports whether a run curated too little of what it found. A
// run with no candidates is low quality.
func lowQuality(c model.RunCounts, ratio float64) bool {
	if c.CandidatesTotal == 0 {
		return true
	}
	return float64(c.CandidatesCurated)/float64(c.CandidatesTotal) < ratio
}

func (o *Orchestrator) refreshRates(ctx context.Context, src *model.Source, now time.Time) error {
	rows, err := o.store.ListSourceHealthRows(ctx, now.Add(-o.opts.RateWindow))
	if err != nil {
		return eris.Wrap(err, "ingest: list source health rows")
	}
	for _, row := range rows {
		if row.SourceKey != src.Key {
			continue
		}
		promotion, failure := row.Rates()
		if err := o.store.UpdateSourceRates(ctx, src.Key, promotion, failure); err != nil {
			return eris.Wrapf(err, "ingest: update rates for %s", src.Key)
		}
		src.RollingPromotionRate30d, src.RollingFailureRate30d = promotion, failure
		return nil
	}
	return nil
}
