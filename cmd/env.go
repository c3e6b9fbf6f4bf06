package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/config"
	"github.com/sells-group/ingest-cli/internal/fetcher"
	"github.com/sells-group/ingest-cli/internal/monitoring"
	"github.com/sells-group/ingest-cli/internal/resilience"
	"github.com/sells-group/ingest-cli/internal/source"
	"github.com/sells-group/ingest-cli/internal/source/feed"
	"github.com/sells-group/ingest-cli/internal/store"
	"github.com/sells-group/ingest-cli/pkg/notion"
)

// initStore opens the configured store and brings its schema up to date.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newFetcher(c config.FetchConfig, ing config.IngestConfig) *fetcher.HTTPFetcher {
	retry := resilience.DefaultPolicy()
	if ing.RetryAttempts > 0 {
		retry.MaxAttempts = ing.RetryAttempts
	}
	if ing.RetryBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(ing.RetryBackoffMs) * time.Millisecond
	}
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         c.UserAgent,
		Timeout:           time.Duration(c.TimeoutSecs) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		HostRates:         c.HostRates,
		Retry:             retry,
	})
}

// loadRegistry reads the sources file and builds one module per entry.
func loadRegistry() (*source.Registry, []config.SourceEntry, error) {
	file, err := config.LoadSources(cfg.Sources.File)
	if err != nil {
		return nil, nil, err
	}
	reg, err := feed.NewRegistry(file.Sources, newFetcher(cfg.Fetch, cfg.Ingest))
	if err != nil {
		return nil, nil, err
	}
	return reg, file.Sources, nil
}

// newMonitor wires the alerter when deliver is set. The Notion incident log
// is attached only when both its token and database are configured.
func newMonitor(st store.Store, deliver bool) *monitoring.Monitor {
	var alerter *monitoring.Alerter
	if deliver {
		var sink monitoring.IncidentSink
		if cfg.Notion.Token != "" && cfg.Notion.IncidentDB != "" {
			sink = notion.NewIncidentLog(notion.NewClient(cfg.Notion.Token), cfg.Notion.IncidentDB)
		}
		alerter = monitoring.NewAlerter(cfg.Alerts, sink)
	}
	return monitoring.New(st, alerter, monitoring.ThresholdsFromConfig(cfg.Monitoring))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
