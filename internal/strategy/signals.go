package strategy

import (
	"net/url"
	"strings"
)

// Signals are structural hints counted from a source's discovered links and
// landing page.
type Signals struct {
	FeedLinks     int `json:"feed_links"`
	CalendarLinks int `json:"calendar_links"`
	APILinks      int `json:"api_links"`
	SitemapLinks  int `json:"sitemap_links"`
	DynamicHints  int `json:"dynamic_hints"`
}

// Count returns the structural signal count that backs a strategy.
// HTML listing and render have no dedicated structural signal.
func (s Signals) Count(st Strategy) int {
	switch st {
	case RSS:
		return s.FeedLinks
	case ICS:
		return s.CalendarLinks
	case APIJSON:
		return s.APILinks
	case SitemapHTML:
		return s.SitemapLinks
	default:
		return 0
	}
}

// Static is the total of all static structural signals.
func (s Signals) Static() int {
	return s.FeedLinks + s.CalendarLinks + s.APILinks + s.SitemapLinks
}

// Add returns the element-wise sum of two signal sets.
func (s Signals) Add(o Signals) Signals {
	return Signals{
		FeedLinks:     s.FeedLinks + o.FeedLinks,
		CalendarLinks: s.CalendarLinks + o.CalendarLinks,
		APILinks:      s.APILinks + o.APILinks,
		SitemapLinks:  s.SitemapLinks + o.SitemapLinks,
		DynamicHints:  s.DynamicHints + o.DynamicHints,
	}
}

// CountLinks classifies links by URL shape.
func CountLinks(links []string) Signals {
	var s Signals
	for _, raw := range links {
		s = s.Add(ClassifyLink(raw))
	}
	return s
}

// ClassifyLink returns the signal a single link contributes.
func ClassifyLink(raw string) Signals {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "webcal:") {
		return Signals{CalendarLinks: 1}
	}
	u, err := url.Parse(lower)
	if err != nil {
		return Signals{}
	}
	p := u.Path
	q := u.RawQuery

	switch {
	case strings.HasSuffix(p, ".ics") || strings.Contains(q, "ical") || strings.HasSuffix(p, "/ical"):
		return Signals{CalendarLinks: 1}
	case strings.HasSuffix(p, ".rss") || strings.HasSuffix(p, ".atom") ||
		strings.HasSuffix(p, "/feed") || strings.HasSuffix(p, "/feed/") ||
		strings.HasSuffix(p, "/rss") || strings.Contains(p, "/feeds/") ||
		(strings.HasSuffix(p, ".xml") && (strings.Contains(p, "rss") || strings.Contains(p, "feed") || strings.Contains(p, "atom"))):
		return Signals{FeedLinks: 1}
	case strings.Contains(p, "sitemap") && strings.HasSuffix(p, ".xml"):
		return Signals{SitemapLinks: 1}
	case strings.HasSuffix(p, ".json") || strings.Contains(p, "/api/") || strings.Contains(p, "/wp-json/"):
		return Signals{APILinks: 1}
	}
	return Signals{}
}
