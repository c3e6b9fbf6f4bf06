package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ingest-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	key                        TEXT PRIMARY KEY,
	display_name               TEXT NOT NULL,
	state                      TEXT NOT NULL DEFAULT 'active',
	production_approved        INTEGER NOT NULL DEFAULT 0,
	cadence                    TEXT NOT NULL DEFAULT '',
	rolling_promotion_rate_30d REAL NOT NULL DEFAULT 0,
	rolling_failure_rate_30d   REAL NOT NULL DEFAULT 0,
	metadata                   TEXT NOT NULL DEFAULT '{}',
	created_at                 DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at                 DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id                          TEXT PRIMARY KEY,
	source_key                  TEXT NOT NULL REFERENCES sources(key),
	status                      TEXT NOT NULL DEFAULT 'running',
	pages_discovered            INTEGER NOT NULL DEFAULT 0,
	pages_extracted             INTEGER NOT NULL DEFAULT 0,
	pages_failed                INTEGER NOT NULL DEFAULT 0,
	candidates_total            INTEGER NOT NULL DEFAULT 0,
	candidates_curated          INTEGER NOT NULL DEFAULT 0,
	candidates_quality_filtered INTEGER NOT NULL DEFAULT 0,
	summary                     TEXT,
	error                       TEXT NOT NULL DEFAULT '',
	started_at                  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at                 DATETIME
);

CREATE TABLE IF NOT EXISTS pages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	source_key TEXT NOT NULL,
	url        TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'discovered',
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (run_id, url)
);

CREATE TABLE IF NOT EXISTS candidates (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	page_id        TEXT NOT NULL,
	source_key     TEXT NOT NULL,
	source_url     TEXT NOT NULL,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	reason_snippet TEXT NOT NULL DEFAULT '',
	raw_excerpt    TEXT NOT NULL DEFAULT '',
	candidate_key  TEXT NOT NULL UNIQUE,
	status         TEXT NOT NULL,
	quality_score  REAL NOT NULL DEFAULT 0,
	quality_flags  TEXT NOT NULL DEFAULT '[]',
	metadata       TEXT NOT NULL DEFAULT '{}',
	trait_hints    TEXT NOT NULL DEFAULT '[]',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS candidate_runs (
	candidate_key TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	page_id       TEXT NOT NULL,
	status        TEXT NOT NULL,
	quality_score REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (candidate_key, run_id)
);

CREATE TABLE IF NOT EXISTS drafts (
	id           TEXT PRIMARY KEY,
	candidate_id TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS promotion_sync_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	candidate_id TEXT NOT NULL,
	target_id    TEXT,
	outcome      TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS candidate_reviews (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	candidate_id TEXT NOT NULL,
	decision     TEXT NOT NULL,
	reviewed_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_source_started ON runs(source_key, started_at);
CREATE INDEX IF NOT EXISTS idx_candidates_source_created ON candidates(source_key, created_at);
CREATE INDEX IF NOT EXISTS idx_candidate_runs_run ON candidate_runs(run_id);
CREATE INDEX IF NOT EXISTS idx_promotion_sync_log_candidate ON promotion_sync_log(candidate_id);
CREATE INDEX IF NOT EXISTS idx_candidate_reviews_reviewed ON candidate_reviews(reviewed_at);
`

// Ping checks connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sources ---

func (s *SQLiteStore) EnsureSource(ctx context.Context, src model.Source) error {
	now := time.Now().UTC()
	state := src.State
	if state == "" {
		state = model.SourceStateActive
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (key, display_name, state, production_approved, cadence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET display_name = excluded.display_name,
		   production_approved = excluded.production_approved, updated_at = excluded.updated_at`,
		src.Key, src.DisplayName, string(state), src.ProductionApproved, src.Cadence, now, now,
	)
	return eris.Wrapf(err, "sqlite: ensure source %s", src.Key)
}

func (s *SQLiteStore) GetSource(ctx context.Context, key string) (*model.Source, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: source %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source %s", key)
	}
	return src, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		out = append(out, *src)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) SaveSourceMetadata(ctx context.Context, key string, meta *model.SourceMetadata, namespaces ...model.Namespace) error {
	for _, ns := range namespaces {
		raw, err := namespaceJSON(meta, ns)
		if err != nil {
			return err
		}
		res, err := s.db.ExecContext(ctx,
			`UPDATE sources SET metadata = json_set(
			   CASE WHEN json_valid(metadata) THEN
			     CASE WHEN json_type(metadata) = 'object' THEN metadata ELSE '{}' END
			   ELSE '{}' END,
			   '$.' || ?, json(?)), updated_at = ?
			 WHERE key = ?`,
			string(ns), string(raw), time.Now().UTC(), key,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save source metadata %s.%s", key, ns)
		}
		if err := checkRowsAffected(res, "source", key); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) UpdateSourceState(ctx context.Context, key string, state model.SourceState, cadence string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET state = ?, cadence = ?, updated_at = ? WHERE key = ?`,
		string(state), cadence, time.Now().UTC(), key,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update source state %s", key)
	}
	return checkRowsAffected(res, "source", key)
}

func (s *SQLiteStore) UpdateSourceRates(ctx context.Context, key string, promotionRate, failureRate float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET rolling_promotion_rate_30d = ?, rolling_failure_rate_30d = ?, updated_at = ? WHERE key = ?`,
		promotionRate, failureRate, time.Now().UTC(), key,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update source rates %s", key)
	}
	return checkRowsAffected(res, "source", key)
}

func (s *SQLiteStore) ListSourceHealthRows(ctx context.Context, since time.Time) ([]SourceHealthRow, error) {
	q := strings.ReplaceAll(healthRowsQuery, "$1", "?")
	ts := since.UTC()
	rows, err := s.db.QueryContext(ctx, q, ts, ts, ts, ts)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list source health rows")
	}
	defer rows.Close() //nolint:errcheck

	var out []SourceHealthRow
	for rows.Next() {
		var r SourceHealthRow
		if err := rows.Scan(&r.SourceKey, &r.RunsTotal, &r.RunsFailed, &r.CandidatesTotal, &r.CandidatesPromoted); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source health row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list source health rows iterate")
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, sourceKey string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source_key, status, started_at) VALUES (?, ?, ?, ?)`,
		id, sourceKey, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run for %s", sourceKey)
	}
	return &model.Run{ID: id, SourceKey: sourceKey, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult, errMsg string) error {
	if !status.IsTerminal() {
		return eris.Errorf("sqlite: finish run %s: status %q is not terminal", runID, status)
	}
	var counts model.RunCounts
	var summary sql.NullString
	if result != nil {
		counts = result.Counts
		b, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal run summary")
		}
		summary = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, pages_discovered = ?, pages_extracted = ?, pages_failed = ?,
		   candidates_total = ?, candidates_curated = ?, candidates_quality_filtered = ?,
		   summary = ?, error = ?, finished_at = ?
		 WHERE id = ? AND status = 'running'`,
		string(status), counts.PagesDiscovered, counts.PagesExtracted, counts.PagesFailed,
		counts.CandidatesTotal, counts.CandidatesCurated, counts.CandidatesFiltered,
		summary, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "running run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRunsBySource(ctx context.Context, sourceKey string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE source_key = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		sourceKey, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list runs for %s", sourceKey)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- Pages ---

func (s *SQLiteStore) InsertPages(ctx context.Context, runID, sourceKey string, urls []string) ([]model.Page, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert pages: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pages (id, run_id, source_key, url, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert pages: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	pages := make([]model.Page, 0, len(urls))
	for _, u := range urls {
		p := model.Page{
			ID:        uuid.New().String(),
			RunID:     runID,
			SourceKey: sourceKey,
			URL:       u,
			Status:    model.PageStatusDiscovered,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.RunID, p.SourceKey, p.URL, string(p.Status), now, now); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert page %s", u)
		}
		pages = append(pages, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert pages: commit")
	}
	return pages, nil
}

func (s *SQLiteStore) MarkPageExtracted(ctx context.Context, pageID string) error {
	return s.markPage(ctx, pageID, model.PageStatusExtracted, "")
}

func (s *SQLiteStore) MarkPageFailed(ctx context.Context, pageID, errMsg string) error {
	return s.markPage(ctx, pageID, model.PageStatusFailed, errMsg)
}

func (s *SQLiteStore) markPage(ctx context.Context, pageID string, status model.PageStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = 'discovered'`,
		string(status), errMsg, time.Now().UTC(), pageID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark page %s %s", pageID, status)
	}
	return checkRowsAffected(res, "discovered page", pageID)
}

// --- Candidates ---

func (s *SQLiteStore) UpsertCandidates(ctx context.Context, cands []model.Candidate) error {
	if len(cands) == 0 {
		return nil
	}
	cands = dedupeByKey(cands)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert candidates: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range cands {
		enc, err := encodeCandidate(c)
		if err != nil {
			return err
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO candidates (id, run_id, page_id, source_key, source_url, title, description,
			   reason_snippet, raw_excerpt, candidate_key, status, quality_score, quality_flags,
			   metadata, trait_hints, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (candidate_key) DO UPDATE SET
			   source_url = excluded.source_url, title = excluded.title, description = excluded.description,
			   reason_snippet = excluded.reason_snippet, raw_excerpt = excluded.raw_excerpt,
			   quality_score = excluded.quality_score, quality_flags = excluded.quality_flags,
			   metadata = excluded.metadata, trait_hints = excluded.trait_hints, updated_at = excluded.updated_at`,
			c.ID, c.RunID, c.PageID, c.SourceKey, c.SourceURL, c.Title, c.Description,
			c.ReasonSnippet, c.RawExcerpt, c.CandidateKey, string(c.Status), c.QualityScore,
			string(enc.flags), string(enc.metadata), string(enc.hints), created, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert candidate %s", c.CandidateKey)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO candidate_runs (candidate_key, run_id, page_id, status, quality_score)
			 VALUES (?, ?, ?, ?, ?) ON CONFLICT (candidate_key, run_id) DO NOTHING`,
			c.CandidateKey, c.RunID, c.PageID, string(c.Status), c.QualityScore,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: link candidate %s", c.CandidateKey)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: upsert candidates: commit")
}

func (s *SQLiteStore) ListCandidatesByRun(ctx context.Context, runID string) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, strings.ReplaceAll(candidateByRunQuery, "$1", "?"), runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list candidates for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func (s *SQLiteStore) ReviewCounts(ctx context.Context, sourceKey string, from, to time.Time) (model.ReviewCounts, error) {
	var rc model.ReviewCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN cr.decision = 'rejected' THEN 1 ELSE 0 END), 0)
		 FROM candidate_reviews cr JOIN candidates c ON c.id = cr.candidate_id
		 WHERE c.source_key = ? AND cr.reviewed_at >= ? AND cr.reviewed_at < ?`,
		sourceKey, from.UTC(), to.UTC(),
	).Scan(&rc.Reviewed, &rc.Rejected)
	return rc, eris.Wrapf(err, "sqlite: review counts for %s", sourceKey)
}

// --- Promotion ---

func (s *SQLiteStore) ListDraftLinks(ctx context.Context) ([]model.DraftLink, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, candidate_id FROM drafts ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list draft links")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DraftLink
	for rows.Next() {
		var l model.DraftLink
		if err := rows.Scan(&l.DraftID, &l.CandidateID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan draft link")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list draft links iterate")
}

func (s *SQLiteStore) ListCandidateStates(ctx context.Context, ids []string) ([]model.CandidateState, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, `SELECT id, status FROM candidates WHERE id IN (`+in+`) ORDER BY id`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidate states")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CandidateState
	for rows.Next() {
		var cs model.CandidateState
		if err := rows.Scan(&cs.ID, &cs.Status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate state")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list candidate states iterate")
}

func (s *SQLiteStore) ListSuccessSyncLogs(ctx context.Context) ([]model.SyncLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, candidate_id, target_id, outcome, created_at FROM promotion_sync_log
		 WHERE outcome = ? ORDER BY id`, model.SyncOutcomeSuccess)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sync logs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SyncLogEntry
	for rows.Next() {
		var e model.SyncLogEntry
		if err := rows.Scan(&e.ID, &e.CandidateID, &e.TargetID, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync log")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sync logs iterate")
}

func (s *SQLiteStore) MarkCandidatesPromoted(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, idArgs := inClause(ids)
	args := append([]any{string(model.CandidateStatusPromoted), time.Now().UTC()}, idArgs...)
	args = append(args, string(model.CandidateStatusPromoted))
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET status = ?, updated_at = ? WHERE id IN (`+in+`) AND status <> ?`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: mark candidates promoted")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) InsertSyncLogs(ctx context.Context, entries []model.SyncLogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert sync logs: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, e := range entries {
		created := e.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO promotion_sync_log (candidate_id, target_id, outcome, created_at) VALUES (?, ?, ?, ?)`,
			e.CandidateID, e.TargetID, e.Outcome, created,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert sync log for %s", e.CandidateID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: insert sync logs: commit")
	}
	return len(entries), nil
}

// InsertDraft records a downstream draft for a candidate. Drafts are normally
// written by the curation system; this exists for local fixtures and tests.
func (s *SQLiteStore) InsertDraft(ctx context.Context, draftID, candidateID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (id, candidate_id, created_at) VALUES (?, ?, ?)`,
		draftID, candidateID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert draft %s", draftID)
}

// InsertReview records a curation decision for a candidate.
func (s *SQLiteStore) InsertReview(ctx context.Context, candidateID string, decision model.ReviewDecision, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO candidate_reviews (candidate_id, decision, reviewed_at) VALUES (?, ?, ?)`,
		candidateID, string(decision), at.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert review for %s", candidateID)
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}
