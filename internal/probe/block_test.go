package probe

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		header   http.Header
		body     string
		want     BlockType
		blocking bool
	}{
		{"cloudflare ray", 403, http.Header{"Cf-Ray": {"abc123"}}, "", BlockCloudflare, true},
		{"cloudflare server", 503, http.Header{"Server": {"cloudflare"}}, "", BlockCloudflare, true},
		{"challenge page", 200, http.Header{}, "<p>Checking your browser before accessing</p>", BlockCloudflare, true},
		{"captcha", 200, http.Header{}, "<p>Please complete the reCAPTCHA to continue</p>", BlockCaptcha, true},
		{"js shell", 200, http.Header{}, "<html><noscript>Enable JavaScript to continue</noscript></html>", BlockJSShell, false},
		{"clean", 200, http.Header{}, "<html><body><h1>Events</h1></body></html>", BlockNone, false},
		{"plain 403", 403, http.Header{}, "forbidden", BlockNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: tt.header}
			got := detectBlock(resp, []byte(tt.body))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.blocking, got.Blocking())
		})
	}
}

func TestDetectBlock_NilResponse(t *testing.T) {
	assert.Equal(t, BlockNone, detectBlock(nil, nil))
}
