package snapshot

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/resilience"
)

// HTTPWriter PUTs snapshots to an object store endpoint at
// <baseURL>/<sourceKey>/<runId>.jsonl.
type HTTPWriter struct {
	baseURL string
	token   string
	client  *http.Client
	retry   resilience.Policy
}

// NewHTTPWriter creates an HTTPWriter. token, when set, is sent as a bearer token.
func NewHTTPWriter(baseURL, token string, timeout time.Duration) *HTTPWriter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := resilience.DefaultPolicy()
	retry.OnRetry = resilience.LogRetries("snapshot.http", "put")
	return &HTTPWriter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

func (w *HTTPWriter) Write(ctx context.Context, sourceKey, runID string, cands []model.Candidate) (string, error) {
	data, err := Encode(cands)
	if err != nil {
		return "", err
	}
	target := w.baseURL + "/" + ObjectPath(sourceKey, runID)

	err = resilience.Do(ctx, w.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
		if err != nil {
			return resilience.Permanent(eris.Wrap(err, "snapshot: build request"))
		}
		req.Header.Set("Content-Type", "application/x-ndjson")
		// Snapshots are immutable; the store must refuse to replace one.
		req.Header.Set("If-None-Match", "*")
		if w.token != "" {
			req.Header.Set("Authorization", "Bearer "+w.token)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return eris.Wrapf(err, "snapshot: put %s", target)
		}
		defer resp.Body.Close() //nolint:errcheck
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		statusErr := eris.Errorf("snapshot: put %s returned status %d", target, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return resilience.Permanent(statusErr)
	})
	if err != nil {
		return "", err
	}
	return target, nil
}
