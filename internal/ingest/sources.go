package ingest

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/config"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/store"
)

// SourceRecord is the durable row for a configured source. New sources
// start active.
func SourceRecord(e config.SourceEntry) model.Source {
	return model.Source{
		Key:                e.Key,
		DisplayName:        e.DisplayName,
		State:              model.SourceStateActive,
		ProductionApproved: e.ProductionApproved,
		Cadence:            e.Cadence,
	}
}

// SyncSources makes sure every configured source has a row. Existing rows
// keep their state and cadence, which lifecycle automation owns.
func SyncSources(ctx context.Context, st store.Store, entries []config.SourceEntry) error {
	for _, e := range entries {
		if err := st.EnsureSource(ctx, SourceRecord(e)); err != nil {
			return eris.Wrapf(err, "ingest: sync source %s", e.Key)
		}
	}
	return nil
}
