package fetch

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-automation block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockRateLimit  BlockType = "rate_limit"
	BlockForbidden  BlockType = "forbidden"
	BlockCaptcha    BlockType = "captcha"
	BlockCloudflare BlockType = "cloudflare"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock checks an HTTP response for explicit block signals: 429/403
// status codes, CAPTCHA markers, Cloudflare challenge pages, and JS-only
// shells that hide content from non-browser clients.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	// Cloudflare: 403/503 with cf-* headers.
	if resp.StatusCode == 403 || resp.StatusCode == 503 {
		if resp.Header.Get("cf-ray") != "" ||
			resp.Header.Get("cf-cache-status") != "" ||
			resp.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, BlockRateLimit
	}

	lower := strings.ToLower(string(body))

	// Captcha markers.
	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") {
		return true, BlockCaptcha
	}

	// Cloudflare challenge page markers.
	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") {
		return true, BlockCloudflare
	}

	if resp.StatusCode == http.StatusForbidden {
		return true, BlockForbidden
	}

	// JS-only shell: very small body with noscript or meta refresh.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, "meta http-equiv=\"refresh\"") {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
