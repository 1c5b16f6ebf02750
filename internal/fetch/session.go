package fetch

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadscout/internal/config"
)

// defaultUserAgents is the rotation pool used when none is configured.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Page is a raw snapshot fetched by a session.
type Page struct {
	URL        string
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}

// Session is an isolated browsing context for one source: its own cookie
// jar and User-Agent, sharing per-domain rate budgets with sibling sessions.
// One source's blocking never bleeds into another's session state.
type Session struct {
	client    *http.Client
	cfg       config.FetchConfig
	limiters  *DomainLimiters
	matcher   *PathMatcher
	robots    *RobotsCache
	userAgent string
	sourceRPS rate.Limit
	minDelay  time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// NewSession creates an isolated session for one source. disallow patterns
// come from source config merged with global config; srcRPS overrides the
// default per-domain rate when positive.
func NewSession(cfg config.FetchConfig, limiters *DomainLimiters, disallow []string, srcRPS float64, minDelayMS int) *Session {
	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Timeout: cfg.Timeout(),
		Jar:     jar,
	}

	agents := cfg.UserAgents
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	ua := agents[rand.IntN(len(agents))]

	patterns := append(append([]string{}, cfg.DisallowPaths...), disallow...)
	matcher := NewPathMatcher(patterns)

	var robots *RobotsCache
	if cfg.RespectRobots {
		robots = NewRobotsCache(client, ua)
	}

	minDelay := time.Duration(minDelayMS) * time.Millisecond
	if minDelay <= 0 {
		minDelay = time.Duration(cfg.MinDelayMS) * time.Millisecond
	}

	return &Session{
		client:    client,
		cfg:       cfg,
		limiters:  limiters,
		matcher:   matcher,
		robots:    robots,
		userAgent: ua,
		sourceRPS: rate.Limit(srcRPS),
		minDelay:  minDelay,
	}
}

// UserAgent returns the User-Agent this session presents.
func (s *Session) UserAgent() string { return s.userAgent }

// Get fetches a URL respecting disallow lists, robots directives, the
// domain rate budget, and the minimum inter-request delay. Explicit block
// signals escalate to exponential backoff up to the retry cap, then surface
// as a BLOCKED fetch error.
func (s *Session) Get(ctx context.Context, rawURL string) (*Page, error) {
	if s.matcher.IsDisallowed(rawURL) {
		return nil, ErrDisallowed
	}
	if s.robots != nil && !s.robots.Allowed(ctx, rawURL) {
		return nil, ErrDisallowed
	}

	limiter := s.limiters.For(rawURL, s.sourceRPS)

	retryCap := s.cfg.RetryCap
	if retryCap <= 0 {
		retryCap = 3
	}

	// retryCap bounds total attempts, so cap 3 means three requests on the
	// wire and not one more.
	var lastErr error
	for attempt := 1; attempt <= retryCap; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetch: rate limiter wait")
		}
		if err := s.waitMinDelay(ctx); err != nil {
			return nil, err
		}

		page, err := s.doGet(ctx, rawURL)
		if err == nil {
			limiter.OnSuccess()
			return page, nil
		}
		lastErr = err

		var fe *Error
		if !errors.As(err, &fe) {
			return nil, err
		}

		switch fe.Kind {
		case KindBlocked:
			limiter.OnBlock()
		case KindTimeout, KindNetwork:
			// Retryable; fall through to backoff.
		default:
			return nil, err
		}

		if attempt == retryCap {
			break
		}

		zap.L().Warn("fetch: retrying after failure",
			zap.String("url", rawURL),
			zap.String("kind", string(fe.Kind)),
			zap.Int("attempt", attempt),
		)
		if err := s.backoff(ctx, attempt-1); err != nil {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func (s *Session) doGet(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "es-PE,es;q=0.9,en;q=0.7")

	resp, err := s.client.Do(req)
	if err != nil {
		kind := KindNetwork
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = KindTimeout
		}
		return nil, NewError(kind, rawURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	maxBody := s.cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 2 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, NewError(KindNetwork, rawURL, err)
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, NewError(KindBlocked, rawURL,
			eris.Errorf("block signal %q (status %d)", blockType, resp.StatusCode))
	}

	if resp.StatusCode >= 500 {
		return nil, NewError(KindNetwork, rawURL,
			eris.Errorf("server error %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(KindNetwork, rawURL,
			eris.Errorf("unexpected status %d", resp.StatusCode))
	}

	return &Page{
		URL:        rawURL,
		Body:       body,
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// waitMinDelay enforces the minimum inter-request delay for this session.
func (s *Session) waitMinDelay(ctx context.Context) error {
	s.mu.Lock()
	wait := s.minDelay - time.Since(s.lastRequest)
	s.lastRequest = time.Now()
	s.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Session) backoff(ctx context.Context, attempt int) error {
	base := time.Second
	maxBackoff := 60 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
