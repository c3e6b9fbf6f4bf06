// Package source defines the contract every pluggable source module
// implements and validates module output against it.
package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/model"
)

// HealthStatus is the outcome of a module health check.
type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
	HealthFailed   HealthStatus = "failed"
)

// Env is handed to every module call.
type Env struct {
	Logger *zap.Logger
	Locale string
}

// HealthCheckResult is returned by Module.HealthCheck.
type HealthCheckResult struct {
	Status      HealthStatus   `json:"status"`
	CheckedAt   time.Time      `json:"checked_at"`
	Diagnostics map[string]any `json:"diagnostics"`
}

// DiscoveredPage is a page a module wants extracted.
type DiscoveredPage struct {
	SourceKey string         `json:"source_key"`
	URL       string         `json:"url"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ExtractedCandidate is one record a module extracted from a page. Optional
// text fields are nil when absent and must not be blank when present.
type ExtractedCandidate struct {
	SourceKey     string            `json:"source_key"`
	SourceURL     string            `json:"source_url"`
	Title         string            `json:"title"`
	Description   *string           `json:"description,omitempty"`
	ReasonSnippet *string           `json:"reason_snippet,omitempty"`
	RawExcerpt    *string           `json:"raw_excerpt,omitempty"`
	Metadata      map[string]any    `json:"metadata"`
	TraitHints    []model.TraitHint `json:"trait_hints,omitempty"`
}

// Module is the contract a source implementation satisfies. Site-specific
// parsing lives behind it.
type Module interface {
	// Key is the unique, stable identifier of the source.
	Key() string
	// DisplayName is the human-readable source name.
	DisplayName() string
	// Discover lists the pages to extract in this run.
	Discover(ctx context.Context, env Env) ([]DiscoveredPage, error)
	// Extract returns the candidates found on a single page.
	Extract(ctx context.Context, env Env, page DiscoveredPage) ([]ExtractedCandidate, error)
	// HealthCheck probes the upstream before any page work.
	HealthCheck(ctx context.Context, env Env) (HealthCheckResult, error)
}

// StrategyDeclarer is implemented by modules that declare extraction
// strategy preferences and a legal-risk level.
type StrategyDeclarer interface {
	StrategyPreferences() []string
	LegalRisk() string
}

// ConfigVersioner is implemented by modules that fingerprint their own
// configuration. The fingerprint is recorded with every run.
type ConfigVersioner interface {
	ConfigVersion() string
}

// Funcs adapts plain functions to Module. Any nil function is reported as a
// missing operation by ValidateModule.
type Funcs struct {
	SourceKey  string
	Name       string
	DiscoverFn func(ctx context.Context, env Env) ([]DiscoveredPage, error)
	ExtractFn  func(ctx context.Context, env Env, page DiscoveredPage) ([]ExtractedCandidate, error)
	HealthFn   func(ctx context.Context, env Env) (HealthCheckResult, error)
}

func (f *Funcs) Key() string         { return f.SourceKey }
func (f *Funcs) DisplayName() string { return f.Name }

func (f *Funcs) Discover(ctx context.Context, env Env) ([]DiscoveredPage, error) {
	if f.DiscoverFn == nil {
		return nil, &ContractError{Module: f.SourceKey, Field: "discover", Reason: "operation missing"}
	}
	return f.DiscoverFn(ctx, env)
}

func (f *Funcs) Extract(ctx context.Context, env Env, page DiscoveredPage) ([]ExtractedCandidate, error) {
	if f.ExtractFn == nil {
		return nil, &ContractError{Module: f.SourceKey, Field: "extract", Reason: "operation missing"}
	}
	return f.ExtractFn(ctx, env, page)
}

func (f *Funcs) HealthCheck(ctx context.Context, env Env) (HealthCheckResult, error) {
	if f.HealthFn == nil {
		return HealthCheckResult{}, &ContractError{Module: f.SourceKey, Field: "healthCheck", Reason: "operation missing"}
	}
	return f.HealthFn(ctx, env)
}

func (f *Funcs) missingOperations() []string {
	var missing []string
	if f.DiscoverFn == nil {
		missing = append(missing, "discover")
	}
	if f.ExtractFn == nil {
		missing = append(missing, "extract")
	}
	if f.HealthFn == nil {
		missing = append(missing, "healthCheck")
	}
	return missing
}

// StringPtr returns a pointer to s, for optional candidate text fields.
func StringPtr(s string) *string { return &s }
