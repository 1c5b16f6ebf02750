package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestAdaptiveLimiter_SuccessGrowthCapped(t *testing.T) {
	l := NewAdaptiveLimiter(1.0, 1)

	l.OnSuccess()
	assert.InDelta(t, 1.2, float64(l.Limit()), 1e-9)

	// Repeated successes saturate at 2x the initial rate.
	for i := 0; i < 20; i++ {
		l.OnSuccess()
	}
	assert.InDelta(t, 2.0, float64(l.Limit()), 1e-9)
}

func TestAdaptiveLimiter_BlockHalvesWithFloor(t *testing.T) {
	l := NewAdaptiveLimiter(1.0, 1)

	l.OnBlock()
	assert.InDelta(t, 0.5, float64(l.Limit()), 1e-9)

	// Repeated blocks bottom out at a quarter of the initial rate.
	for i := 0; i < 10; i++ {
		l.OnBlock()
	}
	assert.InDelta(t, 0.25, float64(l.Limit()), 1e-9)
}

func TestAdaptiveLimiter_RecoversAfterBlock(t *testing.T) {
	l := NewAdaptiveLimiter(1.0, 1)

	l.OnBlock()
	l.OnSuccess()
	assert.InDelta(t, 0.6, float64(l.Limit()), 1e-9)
}

func TestDomainLimiters_SharedPerHost(t *testing.T) {
	d := NewDomainLimiters(rate.Limit(0.5), 1)

	a := d.For("https://example.com/thread/1", 0)
	b := d.For("https://example.com/thread/2", 0)
	other := d.For("https://other.com/page", 0)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.InDelta(t, 0.5, float64(a.Limit()), 1e-9)
}

func TestDomainLimiters_SourceRateOverride(t *testing.T) {
	d := NewDomainLimiters(rate.Limit(0.5), 1)

	l := d.For("https://fast.example.com/", 4.0)
	assert.InDelta(t, 4.0, float64(l.Limit()), 1e-9)

	// First registration wins for the host.
	again := d.For("https://fast.example.com/other", 9.0)
	assert.Same(t, l, again)
}
