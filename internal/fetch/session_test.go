package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadscout/internal/config"
)

func fastFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		TimeoutSecs:  5,
		RetryCap:     1,
		DefaultRPS:   100,
		DefaultBurst: 10,
		MaxBodyBytes: 1 << 20,
	}
}

func newTestSession(cfg config.FetchConfig) *Session {
	limiters := NewDomainLimiters(rate.Limit(cfg.DefaultRPS), cfg.DefaultBurst)
	return NewSession(cfg, limiters, nil, 0, 0)
}

func TestSession_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte("<html><body>hola viajeros</body></html>")) //nolint:errcheck
	}))
	defer srv.Close()

	s := newTestSession(fastFetchConfig())

	page, err := s.Get(context.Background(), srv.URL+"/threads/1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(page.Body), "hola viajeros")
	assert.False(t, page.FetchedAt.IsZero())
}

func TestSession_DisallowedPathNeverFetched(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	cfg := fastFetchConfig()
	cfg.DisallowPaths = []string{"/login/*"}
	s := newTestSession(cfg)

	_, err := s.Get(context.Background(), srv.URL+"/login/step1")
	assert.ErrorIs(t, err, ErrDisallowed)
	assert.Zero(t, hits.Load())
}

func TestSession_RespectsRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private/\n")) //nolint:errcheck
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>contenido publico</body></html>")) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := fastFetchConfig()
	cfg.RespectRobots = true
	s := newTestSession(cfg)

	_, err := s.Get(context.Background(), srv.URL+"/private/page")
	assert.ErrorIs(t, err, ErrDisallowed)

	page, err := s.Get(context.Background(), srv.URL+"/public/page")
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "publico")
}

func TestSession_BlockedSurfacesAfterRetryCap(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := newTestSession(fastFetchConfig())
	before := s.limiters.For(srv.URL, 0).Limit()

	_, err := s.Get(context.Background(), srv.URL+"/threads/1")
	require.Error(t, err)
	assert.Equal(t, KindBlocked, KindOf(err))

	// RetryCap counts total attempts, so cap 1 means a single request.
	assert.Equal(t, int32(1), hits.Load())

	// Each block signal halves the shared domain budget.
	assert.Less(t, float64(s.limiters.For(srv.URL, 0).Limit()), float64(before))
}

func TestSession_RetryCapBoundsTotalAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := fastFetchConfig()
	cfg.RetryCap = 3
	s := newTestSession(cfg)

	_, err := s.Get(context.Background(), srv.URL+"/threads/1")
	require.Error(t, err)
	assert.Equal(t, KindBlocked, KindOf(err))

	// Cap 3 means exactly three requests on the wire, never a fourth.
	assert.Equal(t, int32(3), hits.Load())
}

func TestSession_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("<html><body>recuperado</body></html>")) //nolint:errcheck
	}))
	defer srv.Close()

	cfg := fastFetchConfig()
	cfg.RetryCap = 2

	page, err := newTestSession(cfg).Get(context.Background(), srv.URL+"/threads/1")
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "recuperado")
	assert.Equal(t, int32(2), hits.Load())
}
