// Package sanitize strips markup from extracted text before it is scored or
// stored.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text removes every HTML tag, decodes entities, and collapses whitespace.
func Text(s string) string {
	if s == "" {
		return ""
	}
	cleaned := html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(cleaned), " ")
}

// Optional applies Text to an optional field. A field that is blank after
// cleaning becomes nil.
func Optional(s *string) *string {
	if s == nil {
		return nil
	}
	c := Text(*s)
	if c == "" {
		return nil
	}
	return &c
}
