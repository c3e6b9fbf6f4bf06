package probe

import (
	"bufio"
	"io"
	"strings"
)

type robotsRule struct {
	allow   bool
	pattern string
}

// robots is the subset of a robots.txt that applies to one user agent.
type robots struct {
	rules    []robotsRule
	sitemaps []string
}

// parseRobots reads robots.txt and keeps the group that best matches agent.
// A group naming the agent's product token wins over the "*" group.
func parseRobots(r io.Reader, agent string) robots {
	token := strings.ToLower(productToken(agent))

	var (
		out       robots
		specific  []robotsRule
		wildcard  []robotsRule
		matched   bool
		anyGroup  bool
		groupOpen bool
		curAgents []string
		curRules  []robotsRule
	)
	flush := func() {
		for _, a := range curAgents {
			switch {
			case a == "*":
				wildcard = append(wildcard, curRules...)
			case a != "" && token != "" && strings.Contains(token, a):
				specific = append(specific, curRules...)
				matched = true
			}
		}
		curAgents, curRules = nil, nil
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		field = strings.ToLower(strings.TrimSpace(field))
		value = strings.TrimSpace(value)

		switch field {
		case "user-agent":
			if groupOpen {
				flush()
				groupOpen = false
			}
			curAgents = append(curAgents, strings.ToLower(value))
			anyGroup = true
		case "allow", "disallow":
			if !anyGroup {
				continue
			}
			groupOpen = true
			if value == "" {
				// "Disallow:" with no path allows everything.
				continue
			}
			curRules = append(curRules, robotsRule{allow: field == "allow", pattern: value})
		case "sitemap":
			if value != "" {
				out.sitemaps = append(out.sitemaps, value)
			}
		}
	}
	flush()

	if matched {
		out.rules = specific
	} else {
		out.rules = wildcard
	}
	return out
}

// Allowed applies longest-match precedence; Allow wins a tie.
func (r robots) Allowed(path string) bool {
	if path == "" {
		path = "/"
	}
	best, allowed := -1, true
	for _, rule := range r.rules {
		if !matchRule(rule.pattern, path) {
			continue
		}
		n := len(rule.pattern)
		if n > best || (n == best && rule.allow) {
			best, allowed = n, rule.allow
		}
	}
	return allowed
}

// matchRule matches a robots path pattern as a prefix, where "*" matches any
// run of characters and a trailing "$" anchors the end.
func matchRule(pattern, path string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	pattern = strings.TrimSuffix(pattern, "$")

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(path, parts[0]) {
		return false
	}
	rest := path[len(parts[0]):]
	for i, part := range parts[1:] {
		last := i == len(parts)-2
		if last && anchored {
			return strings.HasSuffix(rest, part)
		}
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	if anchored {
		return rest == ""
	}
	return true
}

// productToken returns "ingest-cli" for "ingest-cli/1.0 (+https://...)".
func productToken(agent string) string {
	agent = strings.TrimSpace(agent)
	if i := strings.IndexAny(agent, "/ "); i >= 0 {
		agent = agent[:i]
	}
	return agent
}
