package probe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const robotsFixture = `# events site
User-agent: *
Disallow: /private
Allow: /private/events
Disallow: /*.pdf$

User-agent: BadBot
User-agent: OtherBot
Disallow: /

Sitemap: https://example.org/sitemap-events.xml
`

func TestParseRobots_Wildcard(t *testing.T) {
	rb := parseRobots(strings.NewReader(robotsFixture), "ingest-cli/1.0 (+https://example.org)")

	assert.True(t, rb.Allowed("/"))
	assert.True(t, rb.Allowed("/events"))
	assert.False(t, rb.Allowed("/private"))
	assert.False(t, rb.Allowed("/private/admin"))
	assert.True(t, rb.Allowed("/private/events/2026"))
	assert.False(t, rb.Allowed("/files/agenda.pdf"))
	assert.True(t, rb.Allowed("/files/agenda.pdf.html"))
	assert.Equal(t, []string{"https://example.org/sitemap-events.xml"}, rb.sitemaps)
}

func TestParseRobots_SpecificGroupWins(t *testing.T) {
	rb := parseRobots(strings.NewReader(robotsFixture), "OtherBot/2.0")
	assert.False(t, rb.Allowed("/events"))

	rb = parseRobots(strings.NewReader(robotsFixture), "BadBot")
	assert.False(t, rb.Allowed("/"))
}

func TestParseRobots_EmptyDisallowAllowsAll(t *testing.T) {
	rb := parseRobots(strings.NewReader("User-agent: *\nDisallow:\n"), "ingest-cli")
	assert.True(t, rb.Allowed("/anything"))
	assert.Empty(t, rb.rules)
}

func TestMatchRule(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"/blog", "/blog/post", true},
		{"/blog", "/blo", false},
		{"/*/calendar", "/city/calendar/2026", true},
		{"/*.ics$", "/feeds/all.ics", true},
		{"/*.ics$", "/feeds/all.ics?x=1", false},
		{"/exact$", "/exact", true},
		{"/exact$", "/exactly", false},
		{"/a*b*c", "/a-x-b-y-c-z", true},
		{"/a*b*c", "/a-x-c-y-b", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchRule(tt.pattern, tt.path), "%s vs %s", tt.pattern, tt.path)
	}
}

func TestProductToken(t *testing.T) {
	assert.Equal(t, "ingest-cli", productToken("ingest-cli/1.0 (+https://example.org)"))
	assert.Equal(t, "Mozilla", productToken("Mozilla 5.0"))
	assert.Equal(t, "bot", productToken(" bot "))
}
