package snapshot

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/model"
)

// LocalWriter writes snapshots under a directory. Existing artifacts are
// never overwritten.
type LocalWriter struct {
	dir string
}

// NewLocalWriter creates a LocalWriter rooted at dir.
func NewLocalWriter(dir string) *LocalWriter {
	return &LocalWriter{dir: dir}
}

func (w *LocalWriter) Write(_ context.Context, sourceKey, runID string, cands []model.Candidate) (string, error) {
	data, err := Encode(cands)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(w.dir, filepath.FromSlash(ObjectPath(sourceKey, runID)))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", eris.Wrap(err, "snapshot: create directory")
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return "", eris.Errorf("snapshot: %s already exists", dst)
	}
	if err != nil {
		return "", eris.Wrap(err, "snapshot: create file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck
		return "", eris.Wrap(err, "snapshot: write file")
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "snapshot: close file")
	}
	return dst, nil
}
