package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge describes a keyed bulk write. Rows are staged in a temp table with
// COPY, then folded into Table with INSERT ... ON CONFLICT (Key).
type Merge struct {
	Table   string
	Columns []string
	Key     []string
	// Update lists the columns overwritten on conflict. Nil means every
	// non-key column.
	Update []string
	// Ignore keeps existing rows untouched on conflict.
	Ignore bool
}

// Validate rejects a merge that cannot produce a statement.
func (m Merge) Validate() error {
	switch {
	case m.Table == "":
		return eris.New("db: merge: table is required")
	case len(m.Columns) == 0:
		return eris.Errorf("db: merge %s: no columns", m.Table)
	case len(m.Key) == 0:
		return eris.Errorf("db: merge %s: no conflict key", m.Table)
	}
	return nil
}

// Run stages rows and merges them inside tx. The staging table is dropped
// when tx commits.
func (m Merge) Run(ctx context.Context, tx pgx.Tx, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := m.Validate(); err != nil {
		return 0, err
	}

	stage := m.stagingTable()
	create := "CREATE TEMP TABLE " + pgx.Identifier{stage}.Sanitize() +
		" (LIKE " + ident(m.Table).Sanitize() + " INCLUDING DEFAULTS) ON COMMIT DROP"
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: create staging table", m.Table)
	}
	if _, err := CopyRows(ctx, tx, stage, m.Columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s", m.Table)
	}
	tag, err := tx.Exec(ctx, m.SQL(stage))
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: insert on conflict", m.Table)
	}
	return tag.RowsAffected(), nil
}

// SQL renders the merge statement reading from the staging table.
func (m Merge) SQL(stage string) string {
	cols := quoteList(m.Columns)
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(ident(m.Table).Sanitize())
	b.WriteString(" (" + cols + ") SELECT " + cols + " FROM ")
	b.WriteString(pgx.Identifier{stage}.Sanitize())
	b.WriteString(" ON CONFLICT (" + quoteList(m.Key) + ")")

	update := m.updateColumns()
	if m.Ignore || len(update) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}
	b.WriteString(" DO UPDATE SET ")
	for i, col := range update {
		if i > 0 {
			b.WriteString(", ")
		}
		q := pgx.Identifier{col}.Sanitize()
		b.WriteString(q + " = EXCLUDED." + q)
	}
	return b.String()
}

func (m Merge) stagingTable() string {
	return "_stage_" + strings.ReplaceAll(m.Table, ".", "_")
}

func (m Merge) updateColumns() []string {
	if m.Update != nil {
		return m.Update
	}
	key := make(map[string]bool, len(m.Key))
	for _, k := range m.Key {
		key[k] = true
	}
	var out []string
	for _, c := range m.Columns {
		if !key[c] {
			out = append(out, c)
		}
	}
	return out
}
