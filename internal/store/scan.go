package store

import (
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/model"
)

// scannable is satisfied by pgx.Row, pgx.Rows, *sql.Row, and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

// scanSource returns the driver's no-rows error unwrapped so callers can map it.
func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var meta []byte
	if err := row.Scan(&src.Key, &src.DisplayName, &src.State, &src.ProductionApproved, &src.Cadence,
		&src.RollingPromotionRate30d, &src.RollingFailureRate30d, &meta, &src.CreatedAt, &src.UpdatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		// Malformed namespaces are dropped by the tolerant decoder; only
		// syntactically invalid JSON fails here.
		if err := json.Unmarshal(meta, &src.Metadata); err != nil {
			zap.L().With(zap.String("component", "store")).Warn("unreadable source metadata, using empty",
				zap.String("source", src.Key), zap.Error(err))
			src.Metadata = model.SourceMetadata{}
		}
	}
	return &src, nil
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summary []byte
	if err := row.Scan(&r.ID, &r.SourceKey, &r.Status,
		&r.Counts.PagesDiscovered, &r.Counts.PagesExtracted, &r.Counts.PagesFailed,
		&r.Counts.CandidatesTotal, &r.Counts.CandidatesCurated, &r.Counts.CandidatesFiltered,
		&summary, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	if len(summary) > 0 {
		r.Summary = &model.RunResult{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return nil, eris.Wrap(err, "unmarshal run summary")
		}
	}
	return &r, nil
}

func scanCandidate(row scannable) (*model.Candidate, error) {
	var c model.Candidate
	var flags, meta, hints []byte
	if err := row.Scan(&c.ID, &c.RunID, &c.PageID, &c.SourceKey, &c.SourceURL, &c.Title, &c.Description,
		&c.ReasonSnippet, &c.RawExcerpt, &c.CandidateKey, &c.Status, &c.QualityScore,
		&flags, &meta, &hints, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(flags, &c.QualityFlags); err != nil {
		return nil, eris.Wrap(err, "unmarshal quality flags")
	}
	if err := unmarshalIfSet(meta, &c.Metadata); err != nil {
		return nil, eris.Wrap(err, "unmarshal candidate metadata")
	}
	if err := unmarshalIfSet(hints, &c.TraitHints); err != nil {
		return nil, eris.Wrap(err, "unmarshal trait hints")
	}
	return &c, nil
}

func unmarshalIfSet(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

type encodedCandidate struct {
	flags    []byte
	metadata []byte
	hints    []byte
}

func encodeCandidate(c model.Candidate) (encodedCandidate, error) {
	var enc encodedCandidate
	var err error

	flags := c.QualityFlags
	if flags == nil {
		flags = []string{}
	}
	if enc.flags, err = json.Marshal(flags); err != nil {
		return enc, eris.Wrapf(err, "marshal quality flags for %s", c.CandidateKey)
	}
	meta := c.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	if enc.metadata, err = json.Marshal(meta); err != nil {
		return enc, eris.Wrapf(err, "marshal metadata for %s", c.CandidateKey)
	}
	hints := c.TraitHints
	if hints == nil {
		hints = []model.TraitHint{}
	}
	if enc.hints, err = json.Marshal(hints); err != nil {
		return enc, eris.Wrapf(err, "marshal trait hints for %s", c.CandidateKey)
	}
	return enc, nil
}

// dedupeByKey keeps the last candidate for each candidate key. A single
// INSERT ... ON CONFLICT statement cannot touch the same row twice.
func dedupeByKey(cands []model.Candidate) []model.Candidate {
	idx := make(map[string]int, len(cands))
	out := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		if i, ok := idx[c.CandidateKey]; ok {
			out[i] = c
			continue
		}
		idx[c.CandidateKey] = len(out)
		out = append(out, c)
	}
	return out
}

func namespaceJSON(meta *model.SourceMetadata, ns model.Namespace) ([]byte, error) {
	if meta == nil {
		return nil, eris.New("store: nil source metadata")
	}
	v, ok := meta.Value(ns)
	if !ok {
		return nil, eris.Errorf("store: unknown metadata namespace %q", ns)
	}
	b, err := json.Marshal(v)
	return b, eris.Wrapf(err, "store: marshal metadata namespace %s", ns)
}
