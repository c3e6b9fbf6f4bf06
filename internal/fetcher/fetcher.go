// Package fetcher downloads feeds, pages, and robots files with per-host rate
// limiting and transient-only retries.
package fetcher

import (
	"context"
	"io"
)

// Fetcher retrieves remote documents.
type Fetcher interface {
	// Download returns the body of a 2xx GET response.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// Status issues a GET and returns the response status code without
	// retrying. Used by health checks.
	Status(ctx context.Context, url string) (int, error)
}
