package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CandidateKey returns the content address of a candidate: a SHA-256 over the
// normalized source key, source URL, title, and description. Differences in
// case, accents, punctuation, and whitespace do not change the key.
func CandidateKey(sourceKey, sourceURL, title, description string) string {
	parts := []string{
		NormalizeText(sourceKey),
		NormalizeURL(sourceURL),
		NormalizeText(title),
		NormalizeText(description),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

var folder = cases.Fold()

// NormalizeText folds case, strips diacritics, replaces punctuation and
// symbols with spaces, and collapses whitespace.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = folder.String(out)

	var b strings.Builder
	b.Grow(len(out))
	space := false
	for _, r := range out {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// NormalizeURL lowercases scheme and host, drops the fragment and trailing
// slash, and falls back to NormalizeText for values that are not absolute URLs.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return NormalizeText(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}
