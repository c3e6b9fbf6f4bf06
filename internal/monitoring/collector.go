package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/store"
)

// runHistoryLimit caps how many recent runs are loaded per source.
const runHistoryLimit = 50

// Collector gathers per-source history from the store.
type Collector struct {
	store store.Store
	th    Thresholds
	now   func() time.Time
}

// NewCollector creates a new history collector.
func NewCollector(st store.Store, th Thresholds) *Collector {
	return &Collector{store: st, th: th, now: time.Now}
}

// Collect returns the history of the named sources, or of every source when
// keys is empty. An unknown key is an error.
func (c *Collector) Collect(ctx context.Context, keys []string) ([]History, error) {
	now := c.now().UTC()

	sources, err := c.store.ListSources(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sources")
	}
	selected, err := selectSources(sources, keys)
	if err != nil {
		return nil, err
	}

	since := now.AddDate(0, 0, -c.th.LookbackDays)
	rows, err := c.store.ListSourceHealthRows(ctx, since)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list source health rows")
	}
	windows := make(map[string]store.SourceHealthRow, len(rows))
	for _, r := range rows {
		windows[r.SourceKey] = r
	}

	limit := max(runHistoryLimit, c.th.YieldHistoryRuns+1)
	out := make([]History, 0, len(selected))
	for _, src := range selected {
		runs, err := c.store.ListRunsBySource(ctx, src.Key, limit)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list runs for %s", src.Key)
		}
		recent, err := c.store.ReviewCounts(ctx, src.Key, now.Add(-c.th.ReviewWindow), now)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: recent reviews for %s", src.Key)
		}
		prior, err := c.store.ReviewCounts(ctx, src.Key, now.Add(-2*c.th.ReviewWindow), now.Add(-c.th.ReviewWindow))
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: prior reviews for %s", src.Key)
		}
		window := windows[src.Key]
		window.SourceKey = src.Key
		out = append(out, History{
			Source:        src,
			Runs:          runs,
			Window:        window,
			RecentReviews: recent,
			PriorReviews:  prior,
			CollectedAt:   now,
		})
	}
	return out, nil
}

func selectSources(all []model.Source, keys []string) ([]model.Source, error) {
	if len(keys) == 0 {
		return all, nil
	}
	byKey := make(map[string]model.Source, len(all))
	for _, s := range all {
		byKey[s.Key] = s
	}
	out := make([]model.Source, 0, len(keys))
	for _, k := range keys {
		s, ok := byKey[k]
		if !ok {
			return nil, eris.Wrapf(store.ErrNotFound, "monitoring: source %s", k)
		}
		out = append(out, s)
	}
	return out, nil
}
