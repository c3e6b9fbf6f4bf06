package probe

import (
	"net/http"
	"strings"
)

// BlockType describes anti-bot protection seen on a landing page.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	// BlockJSShell is a page that renders nothing without JavaScript. It is
	// not a block for the probe; it counts as a dynamic hint.
	BlockJSShell BlockType = "js_shell"
)

// detectBlock inspects a landing page response for challenge pages and
// script-only shells.
func detectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" ||
			strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return BlockCloudflare
	}
	if strings.Contains(lower, "captcha") {
		return BlockCaptcha
	}

	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return BlockJSShell
		}
	}
	return BlockNone
}

// Blocking reports whether the page cannot be read by a static fetcher.
func (b BlockType) Blocking() bool {
	return b == BlockCloudflare || b == BlockCaptcha
}
