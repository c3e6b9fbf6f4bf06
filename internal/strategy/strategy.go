// Package strategy ranks extraction strategies per source and keeps their
// rolling performance up to date.
package strategy

import "strings"

// Strategy is a named extraction technique.
type Strategy string

const (
	RSS         Strategy = "rss"
	ICS         Strategy = "ics"
	APIJSON     Strategy = "api_json"
	SitemapHTML Strategy = "sitemap_html"
	HTMLListing Strategy = "html_listing"
	Render      Strategy = "render"
)

// DefaultOrder is used when a source declares no usable preferences.
var DefaultOrder = []Strategy{RSS, ICS, APIJSON, SitemapHTML, HTMLListing, Render}

var aliases = map[string]Strategy{
	"rss":          RSS,
	"atom":         RSS,
	"feed":         RSS,
	"ics":          ICS,
	"ical":         ICS,
	"calendar":     ICS,
	"api_json":     APIJSON,
	"json":         APIJSON,
	"api":          APIJSON,
	"sitemap_html": SitemapHTML,
	"sitemap":      SitemapHTML,
	"html_listing": HTMLListing,
	"html":         HTMLListing,
	"render":       Render,
	"headless":     Render,
}

// Parse maps a configured name to a supported strategy.
func Parse(s string) (Strategy, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	st, ok := aliases[key]
	return st, ok
}

// Normalize maps a configured preference list onto the supported strategies.
// Unrecognized entries are dropped, duplicates removed, order preserved.
func Normalize(prefs []string) []Strategy {
	out := make([]Strategy, 0, len(prefs))
	seen := make(map[Strategy]bool, len(prefs))
	for _, p := range prefs {
		st, ok := Parse(p)
		if !ok || seen[st] {
			continue
		}
		seen[st] = true
		out = append(out, st)
	}
	return out
}

// IsStatic reports whether a strategy reads structured or server-rendered
// content without executing scripts.
func (s Strategy) IsStatic() bool {
	return s != Render
}
