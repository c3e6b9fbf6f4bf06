package notion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	resp, _ := args.Get(0).(*notionapi.DatabaseQueryResponse)
	return resp, args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	page, _ := args.Get(0).(*notionapi.Page)
	return page, args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	page, _ := args.Get(0).(*notionapi.Page)
	return page, args.Error(1)
}

func TestNewClient_Options(t *testing.T) {
	c := NewClient("token").(*apiClient)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, DefaultRequestsPerSecond, float64(c.limiter.Limit()), 1e-9)

	c = NewClient("token", WithRequestsPerSecond(0), WithCallTimeout(time.Second)).(*apiClient)
	assert.Nil(t, c.limiter)
	assert.Equal(t, time.Second, c.timeout)
}

func TestCall_WrapsErrorWithOp(t *testing.T) {
	c := NewClient("token", WithRequestsPerSecond(0)).(*apiClient)
	err := c.call(context.Background(), "create page", func(context.Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: create page")
}

func TestCall_AppliesTimeout(t *testing.T) {
	c := NewClient("token", WithRequestsPerSecond(0), WithCallTimeout(time.Minute)).(*apiClient)
	var hasDeadline bool
	require.NoError(t, c.call(context.Background(), "op", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}))
	assert.True(t, hasDeadline)
}

func TestCall_CancelledWhileWaiting(t *testing.T) {
	c := NewClient("token", WithRequestsPerSecond(0.001)).(*apiClient)
	// The first token is free; the second wait outlasts the context.
	require.NoError(t, c.call(context.Background(), "op", func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := c.call(ctx, "op", func(context.Context) error { called = true; return nil })
	assert.Error(t, err)
	assert.False(t, called)
}
