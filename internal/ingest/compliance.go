package ingest

import (
	"strings"
	"time"

	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/strategy"
)

// complianceCheck runs before any page work. It never aborts the run; a
// failed check is recorded for the incident monitor.
func complianceCheck(src model.Source, legalRisk string, sel strategy.Selection, now time.Time) *model.ComplianceCheck {
	check := &model.ComplianceCheck{Passed: true, CheckedAt: now.UTC()}
	fail := func(severity, reason string) {
		check.Passed = false
		if model.SeverityRank(severity) > model.SeverityRank(check.Severity) {
			check.Severity = severity
		}
		check.Reasons = append(check.Reasons, reason)
	}

	switch strings.ToLower(strings.TrimSpace(legalRisk)) {
	case strategy.LegalRiskLow, strategy.LegalRiskMedium:
	case strategy.LegalRiskHigh:
		if !src.ProductionApproved {
			fail(model.SeverityCritical, "high legal risk source is not production approved")
		}
	default:
		fail(model.SeverityWarning, "unrecognized legal risk "+legalRisk)
	}

	if strings.EqualFold(legalRisk, strategy.LegalRiskHigh) && sel.SelectedPrimary == strategy.Render {
		fail(model.SeverityCritical, "render strategy selected for high legal risk source")
	}
	return check
}
