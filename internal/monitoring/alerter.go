package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/config"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/resilience"
	"github.com/sells-group/ingest-cli/pkg/notion"
)

// IncidentSink records delivered alerts in an external incident log.
type IncidentSink interface {
	RecordIncident(ctx context.Context, inc notion.Incident) error
}

// webhookPayload is the JSON body posted for each alert.
type webhookPayload struct {
	Source      string         `json:"source"`
	Code        string         `json:"code"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Alerter delivers incident alerts best-effort. Delivery failures are logged
// and never returned.
type Alerter struct {
	webhookURL  string
	minSeverity string
	cooldown    time.Duration
	client      *http.Client
	retry       resilience.Policy
	sink        IncidentSink
}

// NewAlerter creates an Alerter from alert config. sink may be nil.
func NewAlerter(cfg config.AlertsConfig, sink IncidentSink) *Alerter {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retry := resilience.DefaultPolicy()
	retry.MaxAttempts = 2
	retry.OnRetry = resilience.LogRetries("monitoring.alerter", "webhook")
	return &Alerter{
		webhookURL:  cfg.WebhookURL,
		minSeverity: cfg.MinSeverity,
		cooldown:    time.Duration(cfg.CooldownHours) * time.Hour,
		client:      &http.Client{Timeout: timeout},
		retry:       retry,
		sink:        sink,
	}
}

// Deliverable drops alerts below the minimum severity and alerts whose code
// already appears in history within the cooldown window. history is the
// source's alert history before the new batch was merged.
func (a *Alerter) Deliverable(alerts, history []model.AlertEvidence) []model.AlertEvidence {
	minRank := model.SeverityRank(a.minSeverity)
	var out []model.AlertEvidence
	for _, al := range alerts {
		if model.SeverityRank(al.Severity) < minRank {
			continue
		}
		if a.cooldown > 0 && recentlyRaised(history, al, a.cooldown) {
			continue
		}
		out = append(out, al)
	}
	return out
}

func recentlyRaised(history []model.AlertEvidence, al model.AlertEvidence, cooldown time.Duration) bool {
	for _, h := range history {
		if h.Code != al.Code {
			continue
		}
		// Escalations are always delivered.
		if model.SeverityRank(al.Severity) > model.SeverityRank(h.Severity) {
			continue
		}
		if al.GeneratedAt.Sub(h.GeneratedAt) < cooldown {
			return true
		}
	}
	return false
}

// Send delivers alerts for one source to the webhook and the incident sink.
// It returns how many alerts reached at least one destination.
func (a *Alerter) Send(ctx context.Context, sourceKey string, alerts []model.AlertEvidence) int {
	if len(alerts) == 0 || (a.webhookURL == "" && a.sink == nil) {
		return 0
	}
	log := zap.L().With(zap.String("component", "monitoring.alerter"), zap.String("source", sourceKey))

	sent := 0
	for _, al := range alerts {
		delivered := false
		msg := Message(sourceKey, al)
		if a.webhookURL != "" {
			if err := a.postWebhook(ctx, sourceKey, msg, al); err != nil {
				log.Error("monitoring: webhook delivery failed", zap.String("code", al.Code), zap.Error(err))
			} else {
				delivered = true
			}
		}
		if a.sink != nil {
			err := a.sink.RecordIncident(ctx, notion.Incident{
				SourceKey:   sourceKey,
				Code:        al.Code,
				Severity:    al.Severity,
				Summary:     msg,
				GeneratedAt: al.GeneratedAt,
			})
			if err != nil {
				log.Error("monitoring: incident log failed", zap.String("code", al.Code), zap.Error(err))
			} else {
				delivered = true
			}
		}
		if delivered {
			log.Info("monitoring: alert sent", zap.String("code", al.Code), zap.String("severity", al.Severity))
			sent++
		}
	}
	return sent
}

func (a *Alerter) postWebhook(ctx context.Context, sourceKey, msg string, al model.AlertEvidence) error {
	payload, err := json.Marshal(webhookPayload{
		Source:      sourceKey,
		Code:        al.Code,
		Severity:    al.Severity,
		Message:     msg,
		Details:     al.Details,
		GeneratedAt: al.GeneratedAt,
	})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	return resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(payload))
		if err != nil {
			return resilience.Permanent(eris.Wrap(err, "monitoring: create webhook request"))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return eris.Wrap(err, "monitoring: webhook request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode >= 400 {
			statusErr := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return resilience.Permanent(statusErr)
		}
		return nil
	})
}

// Message renders a one-line human summary of an alert.
func Message(sourceKey string, al model.AlertEvidence) string {
	keys := make([]string, 0, len(al.Details))
	for k := range al.Details {
		if k == "source_key" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, al.Details[k]))
	}
	msg := fmt.Sprintf("[%s] %s: %s", al.Severity, sourceKey, al.Code)
	if len(parts) > 0 {
		msg += " (" + strings.Join(parts, ", ") + ")"
	}
	return msg
}
