package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ingest-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RequestsPerSecond is the default per-host rate. HostRates overrides it
	// for individual hosts.
	RequestsPerSecond float64
	Burst             int
	HostRates         map[string]float64
	Retry             resilience.Policy
	Client            *http.Client
}

// hostLimiter halves its rate after a 429 and recovers by 20% per success,
// never leaving [initial/4, initial].
type hostLimiter struct {
	mu      sync.Mutex
	lim     *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

func newHostLimiter(rps float64, burst int) *hostLimiter {
	r := rate.Limit(rps)
	return &hostLimiter{lim: rate.NewLimiter(r, burst), initial: r, current: r}
}

func (h *hostLimiter) Wait(ctx context.Context) error { return h.lim.Wait(ctx) }

func (h *hostLimiter) slowDown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = max(h.current/2, h.initial/4)
	h.lim.SetLimit(h.current)
}

func (h *hostLimiter) recover() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = min(h.current*1.2, h.initial)
	h.lim.SetLimit(h.current)
}

func (h *hostLimiter) limit() rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// HTTPFetcher implements Fetcher over net/http.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*hostLimiter
}

// NewHTTPFetcher creates an HTTPFetcher, filling zero options with defaults.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ingest-cli/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.LogRetries("fetcher.http", "download")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPFetcher{client: client, opts: opts, limiters: make(map[string]*hostLimiter)}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *hostLimiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.limiters[host]; ok {
		return l
	}
	rps := f.opts.RequestsPerSecond
	if r, ok := f.opts.HostRates[host]; ok && r > 0 {
		rps = r
	}
	l := newHostLimiter(rps, f.opts.Burst)
	f.limiters[host] = l
	return l
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, resilience.Permanent(eris.Wrapf(err, "fetcher: build request for %s", rawURL))
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	lim := f.limiterFor(rawURL)
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: get %s", rawURL)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		lim.slowDown()
		zap.L().Warn("rate limited, slowing host",
			zap.String("component", "fetcher.http"),
			zap.String("url", rawURL),
			zap.Float64("rate", float64(lim.limit())),
		)
	} else if resp.StatusCode < 400 {
		lim.recover()
	}
	return resp, nil
}

// Download fetches rawURL and returns its body. 408, 429, and 5xx responses
// and transport failures are retried under the configured policy; other
// non-2xx statuses fail immediately.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (io.ReadCloser, error) {
		resp, err := f.get(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.Body, nil
		}
		_ = resp.Body.Close()
		statusErr := eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, resilience.Permanent(statusErr)
	})
}

// Status fetches rawURL once and reports the response status.
func (f *HTTPFetcher) Status(ctx context.Context, rawURL string) (int, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
