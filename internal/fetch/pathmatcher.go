package fetch

import (
	"net/url"
	"path"
	"strings"
)

// defaultDisallowPatterns are used when no custom patterns are configured.
// Login and account pages never contain lead content and tend to be the
// pages most aggressively defended.
var defaultDisallowPatterns = []string{
	"/login/*",
	"/signin/*",
	"/account/*",
	"/admin/*",
}

// PathMatcher filters URLs against glob-style disallow patterns supplied by
// configuration. Uses path.Match plus a segmented match so "/admin/*" also
// matches "/admin/deep/path".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns (e.g. "/login/*").
// Falls back to the default patterns if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultDisallowPatterns
	}
	return &PathMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsDisallowed checks whether a URL matches any disallow pattern.
// Unparseable URLs are treated as disallowed.
func (m *PathMatcher) IsDisallowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	urlPath := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(strings.ToLower(pattern), urlPath) {
			return true
		}
	}
	return false
}

// matchSegmented performs glob matching where a pattern like "/admin/*"
// matches both "/admin/users" and "/admin/a/b/c".
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}

	return false
}
