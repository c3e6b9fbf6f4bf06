package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/resilience"
)

func testCandidates() []model.Candidate {
	return []model.Candidate{
		{ID: "c1", RunID: "run-1", SourceKey: "city-events", Title: "Plant a <garden>", CandidateKey: "k1", Status: model.CandidateStatusCurated},
		{ID: "c2", RunID: "run-1", SourceKey: "city-events", Title: "Host a swap", CandidateKey: "k2", Status: model.CandidateStatusQualityFiltered},
	}
}

func decodeLines(t *testing.T, data []byte) []model.Candidate {
	t.Helper()
	var out []model.Candidate
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var c model.Candidate
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		out = append(out, c)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "city-events/run-1.jsonl", ObjectPath("city-events", "run-1"))
}

func TestEncode(t *testing.T) {
	data, err := Encode(testCandidates())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Plant a <garden>")

	got := decodeLines(t, data)
	require.Len(t, got, 2)
	assert.Equal(t, "k2", got[1].CandidateKey)

	empty, err := Encode(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLocalWriter(t *testing.T) {
	dir := t.TempDir()
	w := NewLocalWriter(dir)

	loc, err := w.Write(context.Background(), "city-events", "run-1", testCandidates())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "city-events", "run-1.jsonl"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, data), 2)

	_, err = w.Write(context.Background(), "city-events", "run-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestHTTPWriter(t *testing.T) {
	var body []byte
	var gotPath, ifNoneMatch, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		ifNoneMatch = r.Header.Get("If-None-Match")
		auth = r.Header.Get("Authorization")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	w := NewHTTPWriter(srv.URL+"/snapshots/", "secret", time.Second)
	loc, err := w.Write(context.Background(), "city-events", "run-1", testCandidates())
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/snapshots/city-events/run-1.jsonl", loc)
	assert.Equal(t, "/snapshots/city-events/run-1.jsonl", gotPath)
	assert.Equal(t, "*", ifNoneMatch)
	assert.Equal(t, "Bearer secret", auth)
	assert.Len(t, decodeLines(t, body), 2)
}

func TestHTTPWriter_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewHTTPWriter(srv.URL, "", time.Second)
	w.retry = resilience.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	_, err := w.Write(context.Background(), "k", "r", testCandidates())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPWriter_ConflictIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer srv.Close()

	w := NewHTTPWriter(srv.URL, "", time.Second)
	w.retry = resilience.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	_, err := w.Write(context.Background(), "k", "r", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "412")
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseFTPTarget(t *testing.T) {
	host, base, user, pass, err := parseFTPTarget("ftp://ingest:pw@files.example.org/snapshots/")
	require.NoError(t, err)
	assert.Equal(t, "files.example.org:21", host)
	assert.Equal(t, "/snapshots", base)
	assert.Equal(t, "ingest", user)
	assert.Equal(t, "pw", pass)

	_, _, user, pass, err = parseFTPTarget("ftp://files.example.org:2121")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", user)
	assert.Equal(t, "anonymous@", pass)

	_, _, _, _, err = parseFTPTarget("sftp://files.example.org")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	w, err := New(Options{Target: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalWriter{}, w)

	w, err = New(Options{Target: "file:///var/lib/ingest"})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ingest", w.(*LocalWriter).dir)

	w, err = New(Options{Target: "https://objects.example.org/bucket"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPWriter{}, w)

	w, err = New(Options{Target: "ftp://files.example.org/snap"})
	require.NoError(t, err)
	assert.IsType(t, &FTPWriter{}, w)

	_, err = New(Options{Target: "s3://bucket"})
	assert.Error(t, err)
	_, err = New(Options{})
	assert.Error(t, err)
}
