package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sells-group/ingest-cli/internal/model"
)

// ContractError reports module output that does not conform to the source
// contract. It is fatal to the run and never retried.
type ContractError struct {
	Module string
	Field  string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("source: contract violation in %q: %s: %s", e.Module, e.Field, e.Reason)
}

func violation(module, field, format string, args ...any) *ContractError {
	return &ContractError{Module: module, Field: field, Reason: fmt.Sprintf(format, args...)}
}

type operationChecker interface {
	missingOperations() []string
}

// ValidateModule checks the static shape of a module.
func ValidateModule(m Module) error {
	if m == nil {
		return violation("", "module", "nil module")
	}
	key := m.Key()
	if strings.TrimSpace(key) == "" {
		return violation(key, "key", "must not be empty")
	}
	if strings.TrimSpace(m.DisplayName()) == "" {
		return violation(key, "displayName", "must not be empty")
	}
	if oc, ok := m.(operationChecker); ok {
		if missing := oc.missingOperations(); len(missing) > 0 {
			return violation(key, missing[0], "operation missing")
		}
	}
	return nil
}

// ValidateHealth checks a health check result.
func ValidateHealth(module string, r HealthCheckResult) error {
	switch r.Status {
	case HealthOK, HealthDegraded, HealthFailed:
	default:
		return violation(module, "healthCheck.status", "unsupported status %q", r.Status)
	}
	if r.CheckedAt.IsZero() {
		return violation(module, "healthCheck.timestamp", "must be a valid timestamp")
	}
	if r.Diagnostics == nil {
		return violation(module, "healthCheck.diagnostics", "must be an object")
	}
	return nil
}

// ValidatePages checks discovered pages.
func ValidatePages(module string, pages []DiscoveredPage) error {
	for i, p := range pages {
		if p.SourceKey != module {
			return violation(module, fmt.Sprintf("pages[%d].sourceKey", i), "got %q", p.SourceKey)
		}
		if !ValidURL(p.URL) {
			return violation(module, fmt.Sprintf("pages[%d].url", i), "invalid http(s) url %q", p.URL)
		}
	}
	return nil
}

// ValidateCandidates checks extracted candidates, including provenance.
func ValidateCandidates(module string, cands []ExtractedCandidate) error {
	for i, c := range cands {
		field := func(name string) string { return fmt.Sprintf("candidates[%d].%s", i, name) }

		if c.SourceKey != module {
			return violation(module, field("sourceKey"), "got %q", c.SourceKey)
		}
		if strings.TrimSpace(c.Title) == "" {
			return violation(module, field("title"), "must not be empty")
		}
		if !ValidURL(c.SourceURL) {
			return violation(module, field("sourceUrl"), "invalid http(s) url %q", c.SourceURL)
		}
		for _, opt := range []struct {
			name string
			v    *string
		}{
			{"description", c.Description},
			{"reasonSnippet", c.ReasonSnippet},
			{"rawExcerpt", c.RawExcerpt},
		} {
			if opt.v != nil && strings.TrimSpace(*opt.v) == "" {
				return violation(module, field(opt.name), "must not be blank when present")
			}
		}
		if c.Metadata == nil {
			return violation(module, field("metadata"), "must be an object")
		}
		strategy, _ := c.Metadata[model.MetaExtractionStrategy].(string)
		if strings.TrimSpace(strategy) == "" {
			return violation(module, field("metadata."+model.MetaExtractionStrategy), "must be a non-empty string")
		}
		if !hasEvidence(c.Metadata) {
			return violation(module, field("metadata"), "needs one of %s", strings.Join(model.EvidencePointerKeys, ", "))
		}
	}
	return nil
}

func hasEvidence(meta map[string]any) bool {
	for _, k := range model.EvidencePointerKeys {
		v, ok := meta[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return true
	}
	return false
}

// ValidURL reports whether s is an absolute http or https URL with a host.
func ValidURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
