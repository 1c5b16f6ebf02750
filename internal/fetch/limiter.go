package fetch

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On a block signal it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes around
// the configured initial rate.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnBlock halves the rate after a 429 or block page.
func (a *AdaptiveLimiter) OnBlock() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("fetch: reducing rate after block signal",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// DomainLimiters hands out one adaptive limiter per domain so that
// concurrent sessions hitting the same host share a budget.
type DomainLimiters struct {
	mu          sync.Mutex
	limiters    map[string]*AdaptiveLimiter
	defaultRate rate.Limit
	burst       int
}

// NewDomainLimiters creates a registry with the given default per-domain rate.
func NewDomainLimiters(defaultRate rate.Limit, burst int) *DomainLimiters {
	return &DomainLimiters{
		limiters:    make(map[string]*AdaptiveLimiter),
		defaultRate: defaultRate,
		burst:       burst,
	}
}

// For returns the limiter for rawURL's host, creating it on first use with
// the given rate (or the registry default when r is zero).
func (d *DomainLimiters) For(rawURL string, r rate.Limit) *AdaptiveLimiter {
	host := hostOf(rawURL)

	d.mu.Lock()
	defer d.mu.Unlock()

	if lim, ok := d.limiters[host]; ok {
		return lim
	}
	if r <= 0 {
		r = d.defaultRate
	}
	lim := NewAdaptiveLimiter(r, d.burst)
	d.limiters[host] = lim
	return lim
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
