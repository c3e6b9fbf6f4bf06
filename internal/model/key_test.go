package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateKey_StableUnderNormalization(t *testing.T) {
	t.Parallel()

	base := CandidateKey("city-events", "https://example.org/events/42", "Build a Community Garden", "Join neighbors to plant beds.")

	variants := []struct {
		name                     string
		src, url, title, descr string
	}{
		{"case", "CITY-EVENTS", "HTTPS://EXAMPLE.ORG/events/42", "build a community garden", "JOIN NEIGHBORS TO PLANT BEDS."},
		{"whitespace", "  city-events ", " https://example.org/events/42 ", "Build  a\tCommunity   Garden", "Join neighbors\nto plant beds."},
		{"punctuation", "city_events", "https://example.org/events/42/", "Build a Community Garden!", "Join neighbors, to plant beds"},
		{"fragment", "city-events", "https://example.org/events/42#top", "Build a Community Garden", "Join neighbors to plant beds."},
		{"accents", "city-events", "https://example.org/events/42", "Búild a Commünity Garden", "Join neighbors to plant beds."},
	}

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, base, CandidateKey(v.src, v.url, v.title, v.descr))
		})
	}
}

func TestCandidateKey_ChangesWithContent(t *testing.T) {
	t.Parallel()

	base := CandidateKey("city-events", "https://example.org/events/42", "Build a Community Garden", "Join neighbors.")

	assert.NotEqual(t, base, CandidateKey("other-source", "https://example.org/events/42", "Build a Community Garden", "Join neighbors."))
	assert.NotEqual(t, base, CandidateKey("city-events", "https://example.org/events/43", "Build a Community Garden", "Join neighbors."))
	assert.NotEqual(t, base, CandidateKey("city-events", "https://example.org/events/42", "Build a Community Orchard", "Join neighbors."))
	assert.NotEqual(t, base, CandidateKey("city-events", "https://example.org/events/42", "Build a Community Garden", "Join friends."))
	assert.Len(t, base, 64)
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  Hello,   World!  ", "hello world"},
		{"Café--Crème", "cafe creme"},
		{"ÉCOLE", "ecole"},
		{"a b", "a b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeText(tt.in), tt.in)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://example.org/a", NormalizeURL("HTTPS://Example.ORG/a/#frag"))
	assert.Equal(t, "https://example.org", NormalizeURL("https://example.org/"))
	assert.Equal(t, "not a url", NormalizeURL("Not a URL"))
}
