// Package feed is a config-driven RSS 2.0 / Atom 1.0 source module. It is
// not tied to any site: discovery returns the configured feed URLs and
// extraction turns each <item> or <entry> into a candidate.
package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/fetcher"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/sanitize"
	"github.com/sells-group/ingest-cli/internal/source"
	"github.com/sells-group/ingest-cli/internal/strategy"
)

// Config describes one feed-backed source.
type Config struct {
	Key         string   `yaml:"key"`
	DisplayName string   `yaml:"display_name"`
	FeedURLs    []string `yaml:"feed_urls"`
	Strategies  []string `yaml:"strategies"`
	LegalRisk   string   `yaml:"legal_risk"`
	// MaxItems caps candidates per feed page. Zero means 200.
	MaxItems int `yaml:"max_items"`
}

// Module implements source.Module for RSS and Atom feeds.
type Module struct {
	cfg   Config
	fetch fetcher.Fetcher
}

var (
	_ source.Module           = (*Module)(nil)
	_ source.StrategyDeclarer = (*Module)(nil)
	_ source.ConfigVersioner  = (*Module)(nil)
)

// New creates a feed module.
func New(cfg Config, f fetcher.Fetcher) *Module {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 200
	}
	return &Module{cfg: cfg, fetch: f}
}

func (m *Module) Key() string         { return m.cfg.Key }
func (m *Module) DisplayName() string { return m.cfg.DisplayName }

// StrategyPreferences returns the configured order, defaulting to rss.
func (m *Module) StrategyPreferences() []string {
	if len(m.cfg.Strategies) == 0 {
		return []string{string(strategy.RSS)}
	}
	return m.cfg.Strategies
}

func (m *Module) LegalRisk() string {
	if m.cfg.LegalRisk == "" {
		return strategy.LegalRiskLow
	}
	return m.cfg.LegalRisk
}

// ConfigVersion fingerprints the feed configuration. Any change to the
// feed list, strategies, legal risk, or item cap yields a new version.
func (m *Module) ConfigVersion() string {
	b, _ := json.Marshal(m.cfg) //nolint:errcheck
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:6])
}

// Discover returns one page per configured feed URL.
func (m *Module) Discover(_ context.Context, _ source.Env) ([]source.DiscoveredPage, error) {
	pages := make([]source.DiscoveredPage, 0, len(m.cfg.FeedURLs))
	for _, u := range m.cfg.FeedURLs {
		pages = append(pages, source.DiscoveredPage{
			SourceKey: m.cfg.Key,
			URL:       strings.TrimSpace(u),
			Metadata:  map[string]any{"kind": "feed"},
		})
	}
	return pages, nil
}

// item is decoded from either an RSS <item> or an Atom <entry>. RSS carries
// the link as text, Atom as an href attribute.
type item struct {
	XMLName     xml.Name
	Title       string     `xml:"title"`
	Links       []link     `xml:"link"`
	GUID        string     `xml:"guid"`
	ID          string     `xml:"id"`
	Description string     `xml:"description"`
	Summary     string     `xml:"summary"`
	Encoded     string     `xml:"encoded"`
	Content     string     `xml:"content"`
	Categories  []category `xml:"category"`
}

type link struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Text string `xml:",chardata"`
}

type category struct {
	Text string `xml:",chardata"`
	Term string `xml:"term,attr"`
}

func (it item) link() string {
	var fallback string
	for _, l := range it.Links {
		u := strings.TrimSpace(l.Href)
		if u == "" {
			u = strings.TrimSpace(l.Text)
		}
		if u == "" {
			continue
		}
		if l.Rel == "" || l.Rel == "alternate" {
			return u
		}
		if fallback == "" {
			fallback = u
		}
	}
	return fallback
}

func (it item) guid() string {
	for _, g := range []string{it.GUID, it.ID} {
		if g = strings.TrimSpace(g); g != "" {
			return g
		}
	}
	return it.link()
}

func (it item) body() string {
	for _, s := range []string{it.Description, it.Summary, it.Encoded, it.Content} {
		if c := sanitize.Text(s); c != "" {
			return c
		}
	}
	return ""
}

// Extract downloads a feed and emits one candidate per titled item.
func (m *Module) Extract(ctx context.Context, env source.Env, page source.DiscoveredPage) ([]source.ExtractedCandidate, error) {
	body, err := m.fetch.Download(ctx, page.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: download %s", page.URL)
	}
	defer body.Close() //nolint:errcheck

	items, errCh := fetcher.StreamXML[item](ctx, body, "item", "entry")

	var out []source.ExtractedCandidate
	skipped := 0
	for it := range items {
		if len(out) >= m.cfg.MaxItems {
			continue
		}
		c, ok := m.candidate(page, it)
		if !ok {
			skipped++
			continue
		}
		out = append(out, c)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "feed: parse %s", page.URL)
	}

	if env.Logger != nil {
		env.Logger.Debug("feed extracted",
			zap.String("page_url", page.URL),
			zap.Int("candidates", len(out)),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

func (m *Module) candidate(page source.DiscoveredPage, it item) (source.ExtractedCandidate, bool) {
	title := sanitize.Text(it.Title)
	if title == "" {
		return source.ExtractedCandidate{}, false
	}
	detail := it.link()
	sourceURL := page.URL
	if source.ValidURL(detail) {
		sourceURL = detail
	}

	meta := map[string]any{
		model.MetaExtractionStrategy: string(strategy.RSS),
		"listing_url":                page.URL,
		"feed_format":                it.XMLName.Local,
	}
	if source.ValidURL(detail) {
		meta["detail_url"] = detail
	}
	if g := it.guid(); g != "" {
		meta["feed_item_guid"] = g
	}

	c := source.ExtractedCandidate{
		SourceKey: m.cfg.Key,
		SourceURL: sourceURL,
		Title:     title,
		Metadata:  meta,
	}
	if d := it.body(); d != "" {
		c.Description = &d
	}
	for _, cat := range it.Categories {
		opt := model.NormalizeText(strings.TrimSpace(cat.Term + " " + cat.Text))
		if opt == "" {
			continue
		}
		c.TraitHints = append(c.TraitHints, model.TraitHint{
			TraitType:   "category",
			TraitOption: strings.ReplaceAll(opt, " ", "-"),
			Source:      "feed",
		})
	}
	return c, true
}

// HealthCheck requests the first feed URL once. Transport errors and 404/410
// fail; any other non-2xx response is degraded.
func (m *Module) HealthCheck(ctx context.Context, _ source.Env) (source.HealthCheckResult, error) {
	res := source.HealthCheckResult{Status: source.HealthOK, Diagnostics: map[string]any{}}
	if len(m.cfg.FeedURLs) == 0 {
		res.Status = source.HealthFailed
		res.Diagnostics["reason"] = "no feed urls configured"
		res.CheckedAt = time.Now().UTC()
		return res, nil
	}

	target := m.cfg.FeedURLs[0]
	start := time.Now()
	code, err := m.fetch.Status(ctx, target)
	res.CheckedAt = time.Now().UTC()
	res.Diagnostics["url"] = target
	res.Diagnostics["latency_ms"] = time.Since(start).Milliseconds()

	switch {
	case err != nil:
		res.Status = source.HealthFailed
		res.Diagnostics["error"] = err.Error()
	case code == http.StatusNotFound || code == http.StatusGone:
		res.Status = source.HealthFailed
		res.Diagnostics["status_code"] = code
	case code < 200 || code >= 300:
		res.Status = source.HealthDegraded
		res.Diagnostics["status_code"] = code
	default:
		res.Diagnostics["status_code"] = code
	}
	return res, nil
}
