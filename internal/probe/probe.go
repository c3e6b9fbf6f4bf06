// Package probe inspects a candidate new source's landing page and recommends
// an extraction strategy. It never writes to the store.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/strategy"
)

const maxBody = 256 * 1024

// Options configures a Prober.
type Options struct {
	UserAgent   string
	Timeout     time.Duration
	Client      *http.Client
	Preferences []string
	LegalRisk   string
	StrongRate  float64
}

// Report is the probe outcome for one URL.
type Report struct {
	URL            string             `json:"url"`
	FinalURL       string             `json:"final_url,omitempty"`
	Reachable      bool               `json:"reachable"`
	StatusCode     int                `json:"status_code,omitempty"`
	Blocked        bool               `json:"blocked"`
	BlockType      BlockType          `json:"block_type,omitempty"`
	RobotsFound    bool               `json:"robots_found"`
	RobotsAllowed  bool               `json:"robots_allowed"`
	Sitemaps       []string           `json:"sitemaps,omitempty"`
	Signals        strategy.Signals   `json:"signals"`
	Recommendation strategy.Selection `json:"recommendation"`
	Notes          []string           `json:"notes,omitempty"`
}

// Prober fetches landing pages and robots files.
type Prober struct {
	client *http.Client
	opts   Options
	log    *zap.Logger
}

// New creates a Prober.
func New(opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Prober{
		client: client,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "probe.prober")),
	}
}

// Probe fetches rawURL, counts structural signals, checks robots.txt and the
// sitemap, and returns a strategy recommendation. An unreachable page is
// reported, not returned as an error.
func (p *Prober) Probe(ctx context.Context, rawURL string) (*Report, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "probe: parse url")
	}
	rep := &Report{URL: target.String(), RobotsAllowed: true}
	log := p.log.With(zap.String("url", rep.URL))

	var (
		wg       sync.WaitGroup
		rb       robots
		robotsOK bool
		sitemap  bool
	)
	base := target.Scheme + "://" + target.Host
	wg.Add(2)
	go func() {
		defer wg.Done()
		body, status, err := p.get(ctx, base+"/robots.txt")
		if err != nil || status != http.StatusOK {
			return
		}
		robotsOK = true
		rb = parseRobots(bytes.NewReader(body), p.opts.UserAgent)
	}()
	go func() {
		defer wg.Done()
		sitemap = p.exists(ctx, base+"/sitemap.xml")
	}()

	body, resp, err := p.fetch(ctx, target.String())
	wg.Wait()
	if err != nil {
		log.Info("landing page unreachable", zap.Error(err))
		rep.Notes = append(rep.Notes, "landing page unreachable: "+err.Error())
	} else {
		rep.Reachable = true
		rep.StatusCode = resp.StatusCode
		rep.FinalURL = resp.Request.URL.String()

		bt := detectBlock(resp, body)
		rep.BlockType = bt
		switch {
		case bt.Blocking():
			rep.Blocked = true
			rep.Notes = append(rep.Notes, fmt.Sprintf("landing page blocked (%s)", bt))
		case resp.StatusCode >= 400:
			rep.Notes = append(rep.Notes, fmt.Sprintf("landing page returned %d", resp.StatusCode))
		default:
			scan, err := scanPage(bytes.NewReader(body), resp.Request.URL)
			if err != nil {
				return nil, err
			}
			rep.Signals = scan.signals
			if bt == BlockJSShell {
				rep.Signals.DynamicHints++
			}
		}
	}

	if robotsOK {
		rep.RobotsFound = true
		rep.RobotsAllowed = rb.Allowed(target.EscapedPath())
		rep.Sitemaps = rb.sitemaps
		if !rep.RobotsAllowed {
			rep.Notes = append(rep.Notes, "robots.txt disallows "+target.EscapedPath())
		}
	}
	if len(rep.Sitemaps) == 0 && sitemap {
		rep.Sitemaps = []string{base + "/sitemap.xml"}
	}
	if rep.Signals.SitemapLinks == 0 {
		rep.Signals.SitemapLinks = len(rep.Sitemaps)
	}

	rep.Recommendation = strategy.Select(strategy.Input{
		Preferences: p.opts.Preferences,
		Signals:     rep.Signals,
		LegalRisk:   p.opts.LegalRisk,
		StrongRate:  p.opts.StrongRate,
	})
	log.Info("probe complete",
		zap.Bool("reachable", rep.Reachable),
		zap.Bool("blocked", rep.Blocked),
		zap.Bool("robots_allowed", rep.RobotsAllowed),
		zap.String("recommended", string(rep.Recommendation.SelectedPrimary)),
	)
	return rep, nil
}

// fetch GETs a page and reads at most maxBody bytes of it.
func (p *Prober) fetch(ctx context.Context, u string) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, eris.Wrap(err, "probe: create request")
	}
	if p.opts.UserAgent != "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "probe: get %s", u)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, nil, eris.Wrapf(err, "probe: read %s", u)
	}
	return body, resp, nil
}

func (p *Prober) get(ctx context.Context, u string) ([]byte, int, error) {
	body, resp, err := p.fetch(ctx, u)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (p *Prober) exists(ctx context.Context, u string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false
	}
	if p.opts.UserAgent != "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func normalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, eris.New("probe: empty url")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, eris.Errorf("probe: no host in %q", raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}
