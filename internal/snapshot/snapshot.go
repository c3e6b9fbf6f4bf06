// Package snapshot writes the immutable per-run candidate artifact: one JSON
// record per line, addressed as <sourceKey>/<runId>.jsonl.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/model"
)

// Writer stores a run's snapshot and returns its location.
type Writer interface {
	Write(ctx context.Context, sourceKey, runID string, cands []model.Candidate) (string, error)
}

// ObjectPath returns the relative artifact path for a run.
func ObjectPath(sourceKey, runID string) string {
	return path.Join(sourceKey, runID+".jsonl")
}

// Encode renders candidates as newline-delimited JSON.
func Encode(cands []model.Candidate) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range cands {
		if err := enc.Encode(&cands[i]); err != nil {
			return nil, eris.Wrapf(err, "snapshot: encode candidate %s", cands[i].CandidateKey)
		}
	}
	return buf.Bytes(), nil
}

// Options selects and configures a writer.
type Options struct {
	// Target is a local directory, an ftp:// URL, or an http(s):// base URL.
	Target  string
	Token   string
	Timeout time.Duration
}

// New returns the writer matching the target's scheme.
func New(opts Options) (Writer, error) {
	target := strings.TrimSpace(opts.Target)
	if target == "" {
		return nil, eris.New("snapshot: empty target")
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		dir := target
		if err == nil && u.Scheme == "file" {
			dir = u.Path
		}
		return NewLocalWriter(dir), nil
	}
	switch u.Scheme {
	case "ftp":
		return NewFTPWriter(target, opts.Timeout)
	case "http", "https":
		return NewHTTPWriter(target, opts.Token, opts.Timeout), nil
	default:
		return nil, eris.Errorf("snapshot: unsupported target scheme %q", u.Scheme)
	}
}
