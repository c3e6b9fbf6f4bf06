package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/db"
	"github.com/sells-group/ingest-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	key                        TEXT PRIMARY KEY,
	display_name               TEXT NOT NULL,
	state                      TEXT NOT NULL DEFAULT 'active',
	production_approved        BOOLEAN NOT NULL DEFAULT false,
	cadence                    TEXT NOT NULL DEFAULT '',
	rolling_promotion_rate_30d DOUBLE PRECISION NOT NULL DEFAULT 0,
	rolling_failure_rate_30d   DOUBLE PRECISION NOT NULL DEFAULT 0,
	metadata                   JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
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
	summary                     JSONB,
	error                       TEXT NOT NULL DEFAULT '',
	started_at                  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at                 TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_source_started ON runs(source_key, started_at DESC);

CREATE TABLE IF NOT EXISTS pages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	source_key TEXT NOT NULL,
	url        TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'discovered',
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	quality_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	quality_flags  JSONB NOT NULL DEFAULT '[]'::jsonb,
	metadata       JSONB NOT NULL DEFAULT '{}'::jsonb,
	trait_hints    JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_candidates_source_created ON candidates(source_key, created_at);

CREATE TABLE IF NOT EXISTS candidate_runs (
	candidate_key TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	page_id       TEXT NOT NULL,
	status        TEXT NOT NULL,
	quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (candidate_key, run_id)
);

CREATE INDEX IF NOT EXISTS idx_candidate_runs_run ON candidate_runs(run_id);

CREATE TABLE IF NOT EXISTS drafts (
	id           TEXT PRIMARY KEY,
	candidate_id TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS promotion_sync_log (
	id           BIGSERIAL PRIMARY KEY,
	candidate_id TEXT NOT NULL,
	target_id    TEXT,
	outcome      TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_promotion_sync_log_candidate ON promotion_sync_log(candidate_id);

CREATE TABLE IF NOT EXISTS candidate_reviews (
	id           BIGSERIAL PRIMARY KEY,
	candidate_id TEXT NOT NULL,
	decision     TEXT NOT NULL,
	reviewed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_candidate_reviews_reviewed ON candidate_reviews(reviewed_at);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Sources ---

func (s *PostgresStore) EnsureSource(ctx context.Context, src model.Source) error {
	now := time.Now().UTC()
	state := src.State
	if state == "" {
		state = model.SourceStateActive
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sources (key, display_name, state, production_approved, cadence, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (key) DO UPDATE SET display_name = EXCLUDED.display_name,
		   production_approved = EXCLUDED.production_approved, updated_at = EXCLUDED.updated_at`,
		src.Key, src.DisplayName, string(state), src.ProductionApproved, src.Cadence, now,
	)
	return eris.Wrapf(err, "postgres: ensure source %s", src.Key)
}

const sourceColumns = `key, display_name, state, production_approved, cadence,
	rolling_promotion_rate_30d, rolling_failure_rate_30d, metadata, created_at, updated_at`

func (s *PostgresStore) GetSource(ctx context.Context, key string) (*model.Source, error) {
	src, err := scanSource(s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: source %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source %s", key)
	}
	return src, nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		out = append(out, *src)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) SaveSourceMetadata(ctx context.Context, key string, meta *model.SourceMetadata, namespaces ...model.Namespace) error {
	for _, ns := range namespaces {
		raw, err := namespaceJSON(meta, ns)
		if err != nil {
			return err
		}
		tag, err := s.pool.Exec(ctx,
			`UPDATE sources SET metadata = jsonb_set(
			   CASE WHEN jsonb_typeof(metadata) = 'object' THEN metadata ELSE '{}'::jsonb END,
			   ARRAY[$1::text], $2::jsonb, true), updated_at = $3
			 WHERE key = $4`,
			string(ns), raw, time.Now().UTC(), key,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: save source metadata %s.%s", key, ns)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "postgres: source %s", key)
		}
	}
	return nil
}

func (s *PostgresStore) UpdateSourceState(ctx context.Context, key string, state model.SourceState, cadence string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET state = $1, cadence = $2, updated_at = $3 WHERE key = $4`,
		string(state), cadence, time.Now().UTC(), key,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update source state %s", key)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: source %s", key)
	}
	return nil
}

func (s *PostgresStore) UpdateSourceRates(ctx context.Context, key string, promotionRate, failureRate float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET rolling_promotion_rate_30d = $1, rolling_failure_rate_30d = $2, updated_at = $3 WHERE key = $4`,
		promotionRate, failureRate, time.Now().UTC(), key,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update source rates %s", key)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: source %s", key)
	}
	return nil
}

const healthRowsQuery = `
SELECT s.key,
	(SELECT COUNT(*) FROM runs r WHERE r.source_key = s.key AND r.started_at >= $1),
	(SELECT COUNT(*) FROM runs r WHERE r.source_key = s.key AND r.started_at >= $1 AND r.status = 'failed'),
	(SELECT COUNT(*) FROM candidates c WHERE c.source_key = s.key AND c.created_at >= $1),
	(SELECT COUNT(*) FROM candidates c WHERE c.source_key = s.key AND c.created_at >= $1 AND c.status = 'pushed_to_studio')
FROM sources s
ORDER BY s.key`

func (s *PostgresStore) ListSourceHealthRows(ctx context.Context, since time.Time) ([]SourceHealthRow, error) {
	rows, err := s.pool.Query(ctx, healthRowsQuery, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list source health rows")
	}
	defer rows.Close()

	var out []SourceHealthRow
	for rows.Next() {
		var r SourceHealthRow
		if err := rows.Scan(&r.SourceKey, &r.RunsTotal, &r.RunsFailed, &r.CandidatesTotal, &r.CandidatesPromoted); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source health row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list source health rows iterate")
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, sourceKey string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source_key, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, sourceKey, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert run for %s", sourceKey)
	}
	return &model.Run{ID: id, SourceKey: sourceKey, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult, errMsg string) error {
	if !status.IsTerminal() {
		return eris.Errorf("postgres: finish run %s: status %q is not terminal", runID, status)
	}
	var counts model.RunCounts
	var summary []byte
	if result != nil {
		counts = result.Counts
		var err error
		if summary, err = json.Marshal(result); err != nil {
			return eris.Wrap(err, "postgres: marshal run summary")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, pages_discovered = $2, pages_extracted = $3, pages_failed = $4,
		   candidates_total = $5, candidates_curated = $6, candidates_quality_filtered = $7,
		   summary = $8, error = $9, finished_at = $10
		 WHERE id = $11 AND status = 'running'`,
		string(status), counts.PagesDiscovered, counts.PagesExtracted, counts.PagesFailed,
		counts.CandidatesTotal, counts.CandidatesCurated, counts.CandidatesFiltered,
		summary, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: running run %s", runID)
	}
	return nil
}

const runColumns = `id, source_key, status, pages_discovered, pages_extracted, pages_failed,
	candidates_total, candidates_curated, candidates_quality_filtered, summary, error, started_at, finished_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRunsBySource(ctx context.Context, sourceKey string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM runs WHERE source_key = $1 ORDER BY started_at DESC LIMIT $2`,
		sourceKey, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list runs for %s", sourceKey)
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// --- Pages ---

func (s *PostgresStore) InsertPages(ctx context.Context, runID, sourceKey string, urls []string) ([]model.Page, error) {
	now := time.Now().UTC()
	pages := make([]model.Page, 0, len(urls))
	rows := make([][]any, 0, len(urls))
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
		pages = append(pages, p)
		rows = append(rows, []any{p.ID, p.RunID, p.SourceKey, p.URL, string(p.Status), now, now})
	}
	if _, err := db.CopyRows(ctx, s.pool, "pages",
		[]string{"id", "run_id", "source_key", "url", "status", "created_at", "updated_at"}, rows); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert pages for run %s", runID)
	}
	return pages, nil
}

func (s *PostgresStore) MarkPageExtracted(ctx context.Context, pageID string) error {
	return s.markPage(ctx, pageID, model.PageStatusExtracted, "")
}

func (s *PostgresStore) MarkPageFailed(ctx context.Context, pageID, errMsg string) error {
	return s.markPage(ctx, pageID, model.PageStatusFailed, errMsg)
}

func (s *PostgresStore) markPage(ctx context.Context, pageID string, status model.PageStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pages SET status = $1, error = $2, updated_at = $3 WHERE id = $4 AND status = 'discovered'`,
		string(status), errMsg, time.Now().UTC(), pageID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark page %s %s", pageID, status)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: discovered page %s", pageID)
	}
	return nil
}

// --- Candidates ---

var candidateMerge = db.Merge{
	Table: "candidates",
	Columns: []string{
		"id", "run_id", "page_id", "source_key", "source_url", "title", "description",
		"reason_snippet", "raw_excerpt", "candidate_key", "status", "quality_score",
		"quality_flags", "metadata", "trait_hints", "created_at", "updated_at",
	},
	Key: []string{"candidate_key"},
	// Status is owned by curation once a row exists.
	Update: []string{
		"source_url", "title", "description", "reason_snippet", "raw_excerpt",
		"quality_score", "quality_flags", "metadata", "trait_hints", "updated_at",
	},
}

var candidateRunMerge = db.Merge{
	Table:   "candidate_runs",
	Columns: []string{"candidate_key", "run_id", "page_id", "status", "quality_score"},
	Key:     []string{"candidate_key", "run_id"},
	Ignore:  true,
}

func (s *PostgresStore) UpsertCandidates(ctx context.Context, cands []model.Candidate) error {
	if len(cands) == 0 {
		return nil
	}
	cands = dedupeByKey(cands)
	now := time.Now().UTC()

	candRows := make([][]any, 0, len(cands))
	linkRows := make([][]any, 0, len(cands))
	for _, c := range cands {
		enc, err := encodeCandidate(c)
		if err != nil {
			return err
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		candRows = append(candRows, []any{
			c.ID, c.RunID, c.PageID, c.SourceKey, c.SourceURL, c.Title, c.Description,
			c.ReasonSnippet, c.RawExcerpt, c.CandidateKey, string(c.Status), c.QualityScore,
			enc.flags, enc.metadata, enc.hints, created, now,
		})
		linkRows = append(linkRows, []any{c.CandidateKey, c.RunID, c.PageID, string(c.Status), c.QualityScore})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert candidates: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := candidateMerge.Run(ctx, tx, candRows); err != nil {
		return eris.Wrap(err, "postgres: upsert candidates")
	}
	if _, err := candidateRunMerge.Run(ctx, tx, linkRows); err != nil {
		return eris.Wrap(err, "postgres: link candidates to run")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: upsert candidates: commit tx")
}

const candidateByRunQuery = `
SELECT c.id, cr.run_id, cr.page_id, c.source_key, c.source_url, c.title, c.description,
	c.reason_snippet, c.raw_excerpt, c.candidate_key, cr.status, cr.quality_score,
	c.quality_flags, c.metadata, c.trait_hints, c.created_at
FROM candidate_runs cr
JOIN candidates c ON c.candidate_key = cr.candidate_key
WHERE cr.run_id = $1
ORDER BY c.candidate_key`

func (s *PostgresStore) ListCandidatesByRun(ctx context.Context, runID string) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx, candidateByRunQuery, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list candidates for run %s", runID)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func (s *PostgresStore) ReviewCounts(ctx context.Context, sourceKey string, from, to time.Time) (model.ReviewCounts, error) {
	var rc model.ReviewCounts
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN cr.decision = 'rejected' THEN 1 ELSE 0 END), 0)
		 FROM candidate_reviews cr JOIN candidates c ON c.id = cr.candidate_id
		 WHERE c.source_key = $1 AND cr.reviewed_at >= $2 AND cr.reviewed_at < $3`,
		sourceKey, from.UTC(), to.UTC(),
	).Scan(&rc.Reviewed, &rc.Rejected)
	return rc, eris.Wrapf(err, "postgres: review counts for %s", sourceKey)
}

// --- Promotion ---

func (s *PostgresStore) ListDraftLinks(ctx context.Context) ([]model.DraftLink, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, candidate_id FROM drafts ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list draft links")
	}
	defer rows.Close()

	var out []model.DraftLink
	for rows.Next() {
		var l model.DraftLink
		if err := rows.Scan(&l.DraftID, &l.CandidateID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan draft link")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list draft links iterate")
}

func (s *PostgresStore) ListCandidateStates(ctx context.Context, ids []string) ([]model.CandidateState, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, status FROM candidates WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidate states")
	}
	defer rows.Close()

	var out []model.CandidateState
	for rows.Next() {
		var cs model.CandidateState
		if err := rows.Scan(&cs.ID, &cs.Status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate state")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list candidate states iterate")
}

func (s *PostgresStore) ListSuccessSyncLogs(ctx context.Context) ([]model.SyncLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, candidate_id, target_id, outcome, created_at FROM promotion_sync_log
		 WHERE outcome = $1 ORDER BY id`, model.SyncOutcomeSuccess)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sync logs")
	}
	defer rows.Close()

	var out []model.SyncLogEntry
	for rows.Next() {
		var e model.SyncLogEntry
		if err := rows.Scan(&e.ID, &e.CandidateID, &e.TargetID, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync log")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sync logs iterate")
}

func (s *PostgresStore) MarkCandidatesPromoted(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET status = $1, updated_at = $2 WHERE id = ANY($3) AND status <> $1`,
		string(model.CandidateStatusPromoted), time.Now().UTC(), ids,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: mark candidates promoted")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) InsertSyncLogs(ctx context.Context, entries []model.SyncLogEntry) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		created := e.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows = append(rows, []any{e.CandidateID, e.TargetID, e.Outcome, created})
	}
	n, err := db.CopyRows(ctx, s.pool, "promotion_sync_log", []string{"candidate_id", "target_id", "outcome", "created_at"}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert sync logs")
	}
	return int(n), nil
}
