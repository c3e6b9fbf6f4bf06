// Package notion keeps the incident log in a Notion database.
package notion

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond is Notion's published average request limit.
const DefaultRequestsPerSecond = 3

// Client is the slice of the Notion API the incident log uses.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// Option tunes an API client.
type Option func(*apiClient)

// WithRequestsPerSecond sets the request budget. Zero or less disables
// throttling.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *apiClient) {
		c.limiter = nil
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithCallTimeout bounds each API call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *apiClient) { c.timeout = d }
}

type apiClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
	timeout time.Duration
	log     *zap.Logger
}

// NewClient returns a throttled Client authenticated with an integration
// token.
func NewClient(token string, opts ...Option) Client {
	c := &apiClient{
		api:     notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(DefaultRequestsPerSecond, 1),
		timeout: 15 * time.Second,
		log:     zap.L().With(zap.String("component", "notion.client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call waits for a request slot, then runs fn under the per-call timeout.
func (c *apiClient) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrapf(err, "notion: %s: wait for rate limit", op)
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	c.log.Debug("notion call", zap.String("op", op), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	if err != nil {
		return eris.Wrapf(err, "notion: %s", op)
	}
	return nil
}

func (c *apiClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	var resp *notionapi.DatabaseQueryResponse
	err := c.call(ctx, "query database "+dbID, func(ctx context.Context) error {
		var err error
		resp, err = c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
		return err
	})
	return resp, err
}

func (c *apiClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	var page *notionapi.Page
	err := c.call(ctx, "create page", func(ctx context.Context) error {
		var err error
		page, err = c.api.Page.Create(ctx, req)
		return err
	})
	return page, err
}

func (c *apiClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	var page *notionapi.Page
	err := c.call(ctx, "update page "+pageID, func(ctx context.Context) error {
		var err error
		page, err = c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
		return err
	})
	return page, err
}
