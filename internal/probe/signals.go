package probe

import (
	"io"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/ingest-cli/internal/strategy"
)

// scriptHeavy is the number of script tags past which a page counts as
// script-heavy.
const scriptHeavy = 10

// spaRoots are mount-point ids used by client-rendered frameworks.
var spaRoots = map[string]bool{
	"root":      true,
	"app":       true,
	"__next":    true,
	"__nuxt":    true,
	"___gatsby": true,
}

// pageScan is what a landing page walk collects.
type pageScan struct {
	signals strategy.Signals
	links   []string
	scripts int
}

// scanPage counts structural signals on a landing page. Relative links are
// resolved against base and each distinct link is counted once.
func scanPage(r io.Reader, base *url.URL) (pageScan, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return pageScan{}, eris.Wrap(err, "probe: parse html")
	}

	var s pageScan
	seen := make(map[string]bool)
	addLink := func(href string) (string, bool) {
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return "", false
		}
		if u, err := base.Parse(href); err == nil && !strings.HasPrefix(strings.ToLower(href), "webcal:") {
			u.Fragment = ""
			href = u.String()
		}
		if seen[href] {
			return "", false
		}
		seen[href] = true
		s.links = append(s.links, href)
		return href, true
	}

	var noscript bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Link:
				rel := strings.ToLower(attr(n, "rel"))
				typ := strings.ToLower(attr(n, "type"))
				href, ok := addLink(attr(n, "href"))
				switch {
				case !ok:
				case strings.Contains(rel, "alternate") && (strings.Contains(typ, "rss") || strings.Contains(typ, "atom")):
					s.signals.FeedLinks++
				case strings.Contains(typ, "calendar"):
					s.signals.CalendarLinks++
				case strings.Contains(rel, "sitemap"):
					s.signals.SitemapLinks++
				case strings.Contains(typ, "json") && strings.Contains(rel, "alternate"):
					s.signals.APILinks++
				default:
					s.signals = s.signals.Add(strategy.ClassifyLink(href))
				}
			case atom.A:
				if href, ok := addLink(attr(n, "href")); ok {
					s.signals = s.signals.Add(strategy.ClassifyLink(href))
				}
			case atom.Script:
				s.scripts++
			case atom.Noscript:
				noscript = true
			case atom.Div:
				if spaRoots[strings.ToLower(attr(n, "id"))] && !hasElementChild(n) {
					s.signals.DynamicHints++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if noscript {
		s.signals.DynamicHints++
	}
	if s.scripts >= scriptHeavy {
		s.signals.DynamicHints++
	}
	return s, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasElementChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return true
		}
	}
	return false
}
