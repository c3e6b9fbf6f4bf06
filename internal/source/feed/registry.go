package feed

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/config"
	"github.com/sells-group/ingest-cli/internal/fetcher"
	"github.com/sells-group/ingest-cli/internal/source"
)

// ConfigFor maps a registry file entry onto a feed module config.
func ConfigFor(e config.SourceEntry) Config {
	return Config{
		Key:         e.Key,
		DisplayName: e.DisplayName,
		FeedURLs:    e.FeedURLs,
		Strategies:  e.Strategies,
		LegalRisk:   e.LegalRisk,
		MaxItems:    e.MaxItems,
	}
}

// NewRegistry registers one feed module per entry, in file order. A module
// that violates the contract fails the whole registry.
func NewRegistry(entries []config.SourceEntry, f fetcher.Fetcher) (*source.Registry, error) {
	reg := source.NewRegistry()
	for _, e := range entries {
		if err := reg.Register(New(ConfigFor(e), f)); err != nil {
			return nil, eris.Wrapf(err, "feed: register %s", e.Key)
		}
	}
	return reg, nil
}
