// Package report exports health snapshots as spreadsheets for operators.
package report

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ingest-cli/internal/monitoring"
)

// Sheet names.
const (
	HealthSheet  = "Health"
	SignalsSheet = "Signals"
)

var healthHeader = []string{
	"Source", "State", "Health Score", "Consecutive Failures", "Runs In Window",
	"Promotion Rate 30d", "Failure Rate 30d", "Last Run Status", "Last Run At",
	"Last Run Error", "Signals", "Computed At",
}

var signalsHeader = []string{"Source", "Code", "Severity", "Details"}

// WriteHealthXLSX writes one row per source to the Health sheet and one row
// per advisory signal to the Signals sheet.
func WriteHealthXLSX(path string, rows []monitoring.SourceHealth) error {
	f := xlsx.NewFile()

	health, err := f.AddSheet(HealthSheet)
	if err != nil {
		return eris.Wrap(err, "report: add health sheet")
	}
	signals, err := f.AddSheet(SignalsSheet)
	if err != nil {
		return eris.Wrap(err, "report: add signals sheet")
	}
	addStrings(health, healthHeader...)
	addStrings(signals, signalsHeader...)

	for _, h := range rows {
		r := health.AddRow()
		r.AddCell().SetString(h.SourceKey)
		r.AddCell().SetString(string(h.State))
		r.AddCell().SetFloat(h.HealthScore)
		r.AddCell().SetInt(h.ConsecutiveFailures)
		r.AddCell().SetInt(h.RunsInWindow)
		r.AddCell().SetFloat(h.RollingPromotionRate30d)
		r.AddCell().SetFloat(h.RollingFailureRate30d)
		r.AddCell().SetString(h.LastRunStatus)
		r.AddCell().SetString(formatTime(h.LastRunAt))
		r.AddCell().SetString(h.LastRunError)
		r.AddCell().SetInt(len(h.Signals))
		r.AddCell().SetString(formatTime(&h.ComputedAt))

		for _, s := range h.Signals {
			details := ""
			if len(s.Details) > 0 {
				b, err := json.Marshal(s.Details)
				if err != nil {
					return eris.Wrapf(err, "report: marshal %s details", s.Code)
				}
				details = string(b)
			}
			addStrings(signals, h.SourceKey, s.Code, s.Severity, details)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addStrings(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
