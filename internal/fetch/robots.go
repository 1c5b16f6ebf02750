package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// RobotsCache fetches and caches robots.txt per host. A host whose
// robots.txt cannot be fetched or parsed is treated as allowing everything,
// matching crawler convention.
type RobotsCache struct {
	mu        sync.Mutex
	client    *http.Client
	userAgent string
	groups    map[string]*robotstxt.Group
}

// NewRobotsCache creates a RobotsCache using the given HTTP client.
func NewRobotsCache(client *http.Client, userAgent string) *RobotsCache {
	return &RobotsCache{
		client:    client,
		userAgent: userAgent,
		groups:    map[string]*robotstxt.Group{},
	}
}

// Allowed reports whether robots directives permit fetching rawURL.
func (rc *RobotsCache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	group := rc.groupFor(ctx, u)
	if group == nil {
		return true
	}
	return group.Test(u.Path)
}

func (rc *RobotsCache) groupFor(ctx context.Context, u *url.URL) *robotstxt.Group {
	key := u.Scheme + "://" + u.Host

	rc.mu.Lock()
	if group, ok := rc.groups[key]; ok {
		rc.mu.Unlock()
		return group
	}
	rc.mu.Unlock()

	group := rc.fetchGroup(ctx, key)

	rc.mu.Lock()
	rc.groups[key] = group
	rc.mu.Unlock()
	return group
}

func (rc *RobotsCache) fetchGroup(ctx context.Context, base string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		zap.L().Debug("fetch: robots.txt unreachable", zap.String("base", base), zap.Error(err))
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		zap.L().Debug("fetch: robots.txt parse failed", zap.String("base", base), zap.Error(err))
		return nil
	}
	return data.FindGroup(rc.userAgent)
}
