package monitoring

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/metrics"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/store"
)

// SourceIncidents is the incident evaluation of one source.
type SourceIncidents struct {
	SourceKey string                `json:"source_key"`
	Alerts    []model.AlertEvidence `json:"alerts"`
	Delivered int                   `json:"delivered"`
}

// Monitor computes and persists source health and incidents.
type Monitor struct {
	store     store.Store
	collector *Collector
	alerter   *Alerter
	th        Thresholds
}

// New creates a Monitor. alerter may be nil to skip delivery.
func New(st store.Store, alerter *Alerter, th Thresholds) *Monitor {
	return &Monitor{
		store:     st,
		collector: NewCollector(st, th),
		alerter:   alerter,
		th:        th,
	}
}

// Health computes health for the named sources (all when keys is empty),
// persists the rolling rates and health score, and returns the snapshots.
func (m *Monitor) Health(ctx context.Context, keys []string) ([]SourceHealth, error) {
	log := zap.L().With(zap.String("component", "monitoring.health"))

	histories, err := m.collector.Collect(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make([]SourceHealth, 0, len(histories))
	for _, h := range histories {
		sh := ComputeHealth(h, m.th)

		if err := m.store.UpdateSourceRates(ctx, sh.SourceKey, sh.RollingPromotionRate30d, sh.RollingFailureRate30d); err != nil {
			return nil, eris.Wrapf(err, "monitoring: update rates for %s", sh.SourceKey)
		}
		meta := h.Source.Metadata
		hm := meta.HealthOrZero()
		hm.HealthScore = sh.HealthScore
		hm.ConsecutiveFailures = sh.ConsecutiveFailures
		meta.MergeHealth(hm)
		if err := m.store.SaveSourceMetadata(ctx, sh.SourceKey, &meta, model.NamespaceHealth); err != nil {
			return nil, eris.Wrapf(err, "monitoring: save health for %s", sh.SourceKey)
		}
		metrics.SourceHealthScore.WithLabelValues(sh.SourceKey).Set(sh.HealthScore)

		log.Debug("source health computed",
			zap.String("source", sh.SourceKey),
			zap.Float64("health_score", sh.HealthScore),
			zap.Int("signals", len(sh.Signals)),
		)
		out = append(out, sh)
	}
	return out, nil
}

// Incidents evaluates incidents for the named sources (all when keys is
// empty), merges them into each source's bounded alert history, and delivers
// the ones that pass the alerter's filters.
func (m *Monitor) Incidents(ctx context.Context, keys []string) ([]SourceIncidents, error) {
	log := zap.L().With(zap.String("component", "monitoring.incidents"))

	histories, err := m.collector.Collect(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make([]SourceIncidents, 0, len(histories))
	for _, h := range histories {
		alerts := EvaluateIncidents(h, m.th)

		meta := h.Source.Metadata
		var prior []model.AlertEvidence
		if meta.Incidents != nil {
			prior = meta.Incidents.AlertHistory
		}
		meta.MergeIncidents(alerts, h.CollectedAt)
		if err := m.store.SaveSourceMetadata(ctx, h.Source.Key, &meta, model.NamespaceIncidents); err != nil {
			return nil, eris.Wrapf(err, "monitoring: save incidents for %s", h.Source.Key)
		}

		res := SourceIncidents{SourceKey: h.Source.Key, Alerts: alerts}
		for _, al := range alerts {
			metrics.AlertsRaised.WithLabelValues(h.Source.Key, al.Code, al.Severity).Inc()
		}
		if m.alerter != nil {
			res.Delivered = m.alerter.Send(ctx, h.Source.Key, m.alerter.Deliverable(alerts, prior))
		}
		if len(alerts) > 0 {
			log.Info("incidents raised",
				zap.String("source", h.Source.Key),
				zap.Int("alerts", len(alerts)),
				zap.Int("delivered", res.Delivered),
			)
		}
		out = append(out, res)
	}
	return out, nil
}
