// Package ingest drives one source through health check, discovery,
// extraction, curation, and snapshotting, and folds the outcome back into
// the source's rolling metadata.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/ingest-cli/internal/cadence"
	"github.com/sells-group/ingest-cli/internal/lifecycle"
	"github.com/sells-group/ingest-cli/internal/metrics"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/quality"
	"github.com/sells-group/ingest-cli/internal/resilience"
	"github.com/sells-group/ingest-cli/internal/sanitize"
	"github.com/sells-group/ingest-cli/internal/snapshot"
	"github.com/sells-group/ingest-cli/internal/source"
	"github.com/sells-group/ingest-cli/internal/store"
	"github.com/sells-group/ingest-cli/internal/strategy"
)

// Result is the outcome of one orchestrated run.
type Result struct {
	SourceKey        string              `json:"source_key"`
	Skipped          bool                `json:"skipped"`
	SkipReason       string              `json:"skip_reason,omitempty"`
	RunID            string              `json:"run_id,omitempty"`
	Status           model.RunStatus     `json:"status,omitempty"`
	Counts           model.RunCounts     `json:"counts"`
	SnapshotLocation string              `json:"snapshot_location,omitempty"`
	HealthStatus     source.HealthStatus `json:"health_status,omitempty"`
	Selection        *strategy.Selection `json:"strategy_selection,omitempty"`
	Lifecycle        *lifecycle.Decision `json:"lifecycle,omitempty"`
	Error            string              `json:"error,omitempty"`
	DurationMs       int64               `json:"duration_ms"`
}

// Orchestrator runs registered source modules against the store.
type Orchestrator struct {
	store    store.Store
	registry *source.Registry
	snapshot snapshot.Writer
	gate     *quality.Gate
	opts     Options
	now      func() time.Time
}

// New creates an Orchestrator. snap may be nil to skip snapshot writing.
func New(st store.Store, reg *source.Registry, snap snapshot.Writer, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = DefaultOptions().PageTimeout
	}
	return &Orchestrator{
		store:    st,
		registry: reg,
		snapshot: snap,
		gate:     quality.New(opts.QualityThreshold),
		opts:     opts,
		now:      time.Now,
	}
}

// run carries the state of one run through its stages.
type run struct {
	key        string
	id         string
	mod        source.Module
	src        *model.Source
	env        source.Env
	log        *zap.Logger
	legalRisk  string
	counts     model.RunCounts
	summary    model.RunResult
	selection  *strategy.Selection
	compliance *model.ComplianceCheck
}

// Run executes one run of the named source. Unless force is set, a source
// that is not due by its cadence, or is paused or retired, is skipped
// without creating a run.
//
// The returned error is non-nil only when the run could not be recorded or a
// module broke its contract. Health, discovery, and page failures are
// reported through Result.Status and Result.Error.
func (o *Orchestrator) Run(ctx context.Context, key string, force bool) (*Result, error) {
	log := zap.L().With(zap.String("component", "ingest.orchestrator"), zap.String("source", key))

	mod, err := o.registry.Get(key)
	if err != nil {
		return nil, err
	}
	src, err := o.loadSource(ctx, mod)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	res := &Result{SourceKey: key}

	if !force {
		if reason := skipReason(*src, now); reason != "" {
			res.Skipped, res.SkipReason = true, reason
			metrics.RunsSkipped.WithLabelValues(key).Inc()
			log.Info("run skipped", zap.String("reason", reason))
			return res, nil
		}
	}

	created, err := o.store.CreateRun(ctx, key)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: create run for %s", key)
	}
	res.RunID = created.ID
	log = log.With(zap.String("run_id", created.ID))
	log.Info("run started", zap.Bool("force", force))

	r := &run{
		key: key,
		id:  created.ID,
		mod: mod,
		src: src,
		env: source.Env{Logger: log, Locale: o.opts.Locale},
		log: log,
	}
	r.summary.Versions = o.versions(r)

	start := time.Now()
	execErr := o.execute(ctx, r)
	elapsed := time.Since(start)

	status, errMsg := finalStatus(r.counts, execErr)
	r.summary.Counts = r.counts
	r.summary.DurationMs = elapsed.Milliseconds()

	// Finalization must land even when the caller's context is gone.
	fctx := context.WithoutCancel(ctx)
	if err := o.store.FinishRun(fctx, r.id, status, &r.summary, errMsg); err != nil {
		return nil, eris.Wrapf(err, "ingest: finish run %s", r.id)
	}

	res.Status = status
	res.Counts = r.counts
	res.SnapshotLocation = r.summary.SnapshotLocation
	res.HealthStatus = source.HealthStatus(r.summary.HealthStatus)
	res.Selection = r.selection
	res.Error = errMsg
	res.DurationMs = r.summary.DurationMs

	metrics.RunsTotal.WithLabelValues(key, string(status)).Inc()
	metrics.RunDuration.WithLabelValues(key).Observe(elapsed.Seconds())

	decision, err := o.recordOutcome(fctx, r, status, errMsg, o.now().UTC())
	if err != nil {
		log.Error("failed to record run outcome", zap.Error(err))
	}
	res.Lifecycle = decision

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("pages_discovered", r.counts.PagesDiscovered),
		zap.Int("pages_extracted", r.counts.PagesExtracted),
		zap.Int("pages_failed", r.counts.PagesFailed),
		zap.Int("candidates", r.counts.CandidatesTotal),
		zap.Int("curated", r.counts.CandidatesCurated),
		zap.Duration("elapsed", elapsed),
	}
	if status == model.RunStatusFailed {
		log.Error("run failed", append(fields, zap.String("error", errMsg))...)
	} else {
		log.Info("run complete", fields...)
	}

	var ce *source.ContractError
	if errors.As(execErr, &ce) {
		return res, ce
	}
	return res, nil
}

// RunAll runs the named sources (all registered when keys is empty) one
// after another. A source's failure never stops the others; only a contract
// violation or store error is collected and returned at the end.
func (o *Orchestrator) RunAll(ctx context.Context, keys []string, force bool) ([]Result, error) {
	mods, err := o.registry.Select(keys)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(mods))
	var errs []error
	for _, m := range mods {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := o.Run(ctx, m.Key(), force)
		if res != nil {
			out = append(out, *res)
		}
		if err != nil {
			errs = append(errs, eris.Wrapf(err, "ingest: run %s", m.Key()))
		}
	}
	return out, errors.Join(errs...)
}

func (o *Orchestrator) loadSource(ctx context.Context, mod source.Module) (*model.Source, error) {
	src, err := o.store.GetSource(ctx, mod.Key())
	if err == nil {
		return src, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "ingest: load source %s", mod.Key())
	}
	if err := o.store.EnsureSource(ctx, model.Source{Key: mod.Key(), DisplayName: mod.DisplayName(), State: model.SourceStateActive}); err != nil {
		return nil, eris.Wrapf(err, "ingest: register source %s", mod.Key())
	}
	src, err = o.store.GetSource(ctx, mod.Key())
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: load source %s", mod.Key())
	}
	return src, nil
}

// skipReason returns why a source is not run now, or "" when it is due.
// An unparseable cadence never blocks a run.
func skipReason(src model.Source, now time.Time) string {
	switch src.State {
	case model.SourceStatePaused, model.SourceStateRetired:
		return "source is " + string(src.State)
	}
	if strings.TrimSpace(src.Cadence) == "" {
		return ""
	}
	rule, err := cadence.Parse(src.Cadence)
	if err != nil {
		return ""
	}
	if !rule.Due(now, src.Metadata.HealthOrZero().LastRunAt) {
		return "not due until " + rule.Next(now).Format(time.RFC3339)
	}
	return ""
}

func (o *Orchestrator) versions(r *run) map[string]any {
	v := map[string]any{
		"quality_threshold": o.gate.Threshold,
		"half_life":         o.opts.HalfLife,
	}
	if cv, ok := r.mod.(source.ConfigVersioner); ok {
		v["source_config"] = cv.ConfigVersion()
	}
	return v
}

func (o *Orchestrator) retry(operation string) resilience.Policy {
	p := o.opts.Retry
	p.OnRetry = resilience.LogRetries("ingest.orchestrator", operation)
	return p
}

// execute drives a run from health check to snapshot. A returned error fails
// the run; counts gathered before it are kept.
func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	hc, err := r.mod.HealthCheck(ctx, r.env)
	if err != nil {
		return eris.Wrap(err, "ingest: health check")
	}
	if err := source.ValidateHealth(r.key, hc); err != nil {
		return err
	}
	r.summary.HealthStatus = string(hc.Status)
	switch hc.Status {
	case source.HealthFailed:
		return eris.Errorf("ingest: health check failed for %s", r.key)
	case source.HealthDegraded:
		r.log.Warn("source health degraded, continuing", zap.Any("diagnostics", hc.Diagnostics))
	}

	pages, err := resilience.DoVal(ctx, o.retry("discover"), func(ctx context.Context) ([]source.DiscoveredPage, error) {
		return r.mod.Discover(ctx, r.env)
	})
	if err != nil {
		return eris.Wrap(err, "ingest: discover")
	}
	if err := source.ValidatePages(r.key, pages); err != nil {
		return err
	}
	pages = dedupePages(pages)
	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = p.URL
	}

	stored, err := o.store.InsertPages(ctx, r.id, r.key, urls)
	if err != nil {
		return eris.Wrap(err, "ingest: insert pages")
	}
	r.counts.PagesDiscovered = len(stored)
	r.log.Info("pages discovered", zap.Int("count", len(stored)))

	sel := o.selectStrategy(r, urls)
	r.selection = &sel
	r.summary.SelectedStrategy = string(sel.SelectedPrimary)
	r.summary.StrategyReasoning = sel.Reasoning
	r.compliance = complianceCheck(*r.src, r.legalRisk, sel, o.now())
	if !r.compliance.Passed {
		r.log.Warn("compliance check failed",
			zap.String("severity", r.compliance.Severity),
			zap.Strings("reasons", r.compliance.Reasons),
		)
	}

	if err := o.extractPages(ctx, r, pages, stored); err != nil {
		return err
	}

	cands, err := o.store.ListCandidatesByRun(ctx, r.id)
	if err != nil {
		return eris.Wrap(err, "ingest: list run candidates")
	}
	tally(&r.counts, cands)
	for _, c := range cands {
		metrics.CandidatesTotal.WithLabelValues(r.key, string(c.Status)).Inc()
	}

	if o.snapshot != nil {
		loc, err := o.snapshot.Write(ctx, r.key, r.id, cands)
		if err != nil {
			return eris.Wrap(err, "ingest: write snapshot")
		}
		r.summary.SnapshotLocation = loc
	}
	return nil
}

func (o *Orchestrator) selectStrategy(r *run, urls []string) strategy.Selection {
	var prefs []string
	r.legalRisk = strategy.LegalRiskLow
	if c := r.src.Metadata.Compliance; c != nil && c.LegalRisk != "" {
		r.legalRisk = c.LegalRisk
	}
	if d, ok := r.mod.(source.StrategyDeclarer); ok {
		prefs = d.StrategyPreferences()
		if lr := d.LegalRisk(); lr != "" {
			r.legalRisk = lr
		}
	}
	sel := strategy.Select(strategy.Input{
		Preferences: prefs,
		Performance: r.src.Metadata.StrategyPerformance,
		Signals:     strategy.CountLinks(urls),
		LegalRisk:   r.legalRisk,
		StrongRate:  o.opts.StrongRate,
	})
	r.log.Info("strategy selected",
		zap.String("strategy", string(sel.SelectedPrimary)),
		zap.Strings("ranked", sel.Names()),
	)
	return sel
}

// extractPages processes every stored page. Page failures are isolated; a
// contract violation cancels the remaining pages and is returned.
func (o *Orchestrator) extractPages(ctx context.Context, r *run, pages []source.DiscoveredPage, stored []model.Page) error {
	var limiter *rate.Limiter
	if o.opts.PagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.opts.PagesPerSecond), 1)
	}

	var extracted, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	for i, page := range stored {
		dp := pages[i]
		g.Go(func() error {
			err := o.extractPage(gctx, r, limiter, dp, page)
			if err == nil {
				extracted.Add(1)
				metrics.PagesTotal.WithLabelValues(r.key, string(model.PageStatusExtracted)).Inc()
				return nil
			}

			failed.Add(1)
			metrics.PagesTotal.WithLabelValues(r.key, string(model.PageStatusFailed)).Inc()
			if mErr := o.store.MarkPageFailed(context.WithoutCancel(gctx), page.ID, err.Error()); mErr != nil {
				r.log.Error("failed to record page failure", zap.String("page_url", page.URL), zap.Error(mErr))
			}

			var ce *source.ContractError
			if errors.As(err, &ce) {
				return err
			}
			r.log.Warn("page failed", zap.String("page_url", page.URL), zap.Error(err))
			return nil // don't abort other pages on individual failure
		})
	}

	err := g.Wait()
	r.counts.PagesExtracted = int(extracted.Load())
	r.counts.PagesFailed = int(failed.Load())
	return err
}

func (o *Orchestrator) extractPage(ctx context.Context, r *run, limiter *rate.Limiter, dp source.DiscoveredPage, page model.Page) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "ingest: skip %s", page.URL)
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return eris.Wrapf(err, "ingest: wait to extract %s", page.URL)
		}
	}

	pctx, cancel := context.WithTimeout(ctx, o.opts.PageTimeout)
	defer cancel()

	found, err := resilience.DoVal(pctx, o.retry("extract"), func(ctx context.Context) ([]source.ExtractedCandidate, error) {
		return r.mod.Extract(ctx, r.env, dp)
	})
	if err != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return eris.Wrapf(err, "ingest: extract %s timed out after %s", page.URL, o.opts.PageTimeout)
		}
		return eris.Wrapf(err, "ingest: extract %s", page.URL)
	}
	if err := source.ValidateCandidates(r.key, found); err != nil {
		return err
	}

	cands := o.curate(r, page, found)
	if err := o.store.UpsertCandidates(ctx, cands); err != nil {
		return eris.Wrapf(err, "ingest: store candidates for %s", page.URL)
	}
	if err := o.store.MarkPageExtracted(ctx, page.ID); err != nil {
		return eris.Wrapf(err, "ingest: mark page %s extracted", page.URL)
	}
	r.log.Debug("page extracted", zap.String("page_url", page.URL), zap.Int("candidates", len(cands)))
	return nil
}

// curate sanitizes extracted candidates, scores them, and keys them.
func (o *Orchestrator) curate(r *run, page model.Page, found []source.ExtractedCandidate) []model.Candidate {
	now := o.now().UTC()
	out := make([]model.Candidate, 0, len(found))
	for _, ec := range found {
		title := sanitize.Text(ec.Title)
		if title == "" {
			title = strings.TrimSpace(ec.Title)
		}
		desc := deref(sanitize.Optional(ec.Description))
		q := o.gate.Evaluate(title, desc)

		out = append(out, model.Candidate{
			ID:            uuid.NewString(),
			RunID:         r.id,
			PageID:        page.ID,
			SourceKey:     r.key,
			SourceURL:     strings.TrimSpace(ec.SourceURL),
			Title:         title,
			Description:   desc,
			ReasonSnippet: deref(sanitize.Optional(ec.ReasonSnippet)),
			RawExcerpt:    deref(ec.RawExcerpt),
			CandidateKey:  model.CandidateKey(r.key, ec.SourceURL, title, desc),
			Status:        q.Status(),
			QualityScore:  q.Score,
			QualityFlags:  q.Flags,
			Metadata:      maps.Clone(ec.Metadata),
			TraitHints:    ec.TraitHints,
			CreatedAt:     now,
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// dedupePages keeps the first page per URL, in discovery order.
func dedupePages(pages []source.DiscoveredPage) []source.DiscoveredPage {
	seen := make(map[string]bool, len(pages))
	out := make([]source.DiscoveredPage, 0, len(pages))
	for _, p := range pages {
		u := strings.TrimSpace(p.URL)
		if seen[u] {
			continue
		}
		seen[u] = true
		p.URL = u
		out = append(out, p)
	}
	return out
}

// tally fills the candidate counters from the run's stored candidates.
func tally(c *model.RunCounts, cands []model.Candidate) {
	c.CandidatesTotal = len(cands)
	c.CandidatesCurated, c.CandidatesFiltered = 0, 0
	for _, cand := range cands {
		switch cand.Status {
		case model.CandidateStatusCurated, model.CandidateStatusPromoted:
			c.CandidatesCurated++
		case model.CandidateStatusQualityFiltered:
			c.CandidatesFiltered++
		}
	}
}

// finalStatus applies failed > partial > success. A run whose every page
// failed extracted nothing and is failed.
func finalStatus(c model.RunCounts, execErr error) (model.RunStatus, string) {
	if execErr != nil {
		return model.RunStatusFailed, execErr.Error()
	}
	switch {
	case c.PagesFailed > 0 && c.PagesExtracted == 0:
		return model.RunStatusFailed, fmt.Sprintf("all %d pages failed", c.PagesFailed)
	case c.PagesFailed > 0:
		return model.RunStatusPartial, ""
	default:
		return model.RunStatusSuccess, ""
	}
}
