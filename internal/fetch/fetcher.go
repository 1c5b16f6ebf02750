// Package fetch implements the rate-limited fetch layer: isolated per-source
// sessions, per-domain rate budgets, robots and disallow-list honoring,
// block detection with backoff, and lazy artifact streams.
package fetch

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
)

// Stream is a lazy, finite sequence of artifacts from one source. Consumers
// range over Artifacts and then check Err.
type Stream struct {
	ch chan model.RawArtifact

	mu  sync.Mutex
	err error
}

// Artifacts returns the artifact channel. It is closed when the source is
// exhausted or the stream fails.
func (s *Stream) Artifacts() <-chan model.RawArtifact { return s.ch }

// Err returns the terminal error, if any. Valid after Artifacts is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Fetcher produces artifact streams for configured sources. Domain rate
// budgets are shared across all sessions it creates.
type Fetcher struct {
	cfg      config.FetchConfig
	limiters *DomainLimiters
}

// NewFetcher creates a Fetcher with shared per-domain limiters.
func NewFetcher(cfg config.FetchConfig) *Fetcher {
	burst := cfg.DefaultBurst
	if burst < 1 {
		burst = 1
	}
	return &Fetcher{
		cfg:      cfg,
		limiters: NewDomainLimiters(rate.Limit(cfg.DefaultRPS), burst),
	}
}

// Fetch starts fetching a source and returns its artifact stream. Artifacts
// whose cursor is at or below checkpoint are skipped, making a resumed job
// restart where it left off. Cancelling ctx stops the stream after the page
// in flight.
func (f *Fetcher) Fetch(ctx context.Context, source model.SourceConfig, checkpoint int) *Stream {
	stream := &Stream{ch: make(chan model.RawArtifact)}

	go func() {
		defer close(stream.ch)

		strategy, err := StrategyFor(source.Type)
		if err != nil {
			stream.fail(err)
			return
		}

		session := NewSession(f.cfg, f.limiters, source.DisallowPaths, source.RequestsPerSecond, source.MinDelayMS)
		if err := f.crawl(ctx, stream, session, strategy, source, checkpoint); err != nil {
			stream.fail(err)
		}
	}()

	return stream
}

func (f *Fetcher) crawl(
	ctx context.Context,
	stream *Stream,
	session *Session,
	strategy SourceStrategy,
	source model.SourceConfig,
	checkpoint int,
) error {
	log := zap.L().With(zap.String("source", source.ID), zap.String("strategy", strategy.Name()))

	parallel := source.Concurrency
	if parallel <= 0 {
		parallel = f.cfg.PerSourceParallel
	}
	if parallel <= 0 {
		parallel = 1
	}

	maxArtifacts := source.MaxArtifacts
	if maxArtifacts <= 0 {
		maxArtifacts = 200
	}

	queue := strategy.BuildRequests(source)
	seen := make(map[string]bool, len(queue))
	for _, u := range queue {
		seen[u] = true
	}

	cursor := 0
	emitted := 0

	for len(queue) > 0 && emitted < maxArtifacts {
		// Drain one batch; pages within a batch fetch in parallel under the
		// per-source ceiling, batches stay ordered so same-source artifacts
		// keep capture order.
		batch := queue
		if len(batch) > parallel {
			batch = batch[:parallel]
		}
		queue = queue[len(batch):]

		results := make([]*ParseResult, len(batch))
		var fetchErr error
		var mu sync.Mutex

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(parallel)
		for i, pageURL := range batch {
			g.Go(func() error {
				page, err := session.Get(gCtx, pageURL)
				if err != nil {
					if errors.Is(err, ErrDisallowed) {
						log.Info("fetch: skipping disallowed url", zap.String("url", pageURL))
						return nil
					}
					mu.Lock()
					if fetchErr == nil {
						fetchErr = err
					}
					mu.Unlock()
					return nil
				}

				if blocked, blockType := strategy.DetectBlock(page); blocked {
					mu.Lock()
					if fetchErr == nil {
						fetchErr = NewError(KindBlocked, pageURL,
							errors.New("strategy block signal "+string(blockType)))
					}
					mu.Unlock()
					return nil
				}

				parsed, err := strategy.ParseArtifacts(page, source)
				if err != nil {
					// Parse failures degrade to an empty page, never abort.
					log.Warn("fetch: page parse failed", zap.String("url", pageURL), zap.Error(err))
					return nil
				}
				results[i] = &parsed
				return nil
			})
		}
		_ = g.Wait()

		if fetchErr != nil {
			return fetchErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		for _, parsed := range results {
			if parsed == nil {
				continue
			}
			for _, artifact := range parsed.Artifacts {
				cursor++
				if cursor <= checkpoint {
					continue
				}
				artifact.Cursor = cursor
				if artifact.Signals.UserAgent == "" {
					artifact.Signals.UserAgent = session.UserAgent()
				}

				select {
				case stream.ch <- artifact:
					emitted++
				case <-ctx.Done():
					return ctx.Err()
				}
				if emitted >= maxArtifacts {
					break
				}
			}
			for _, follow := range parsed.Follow {
				if follow == "" || seen[follow] {
					continue
				}
				seen[follow] = true
				queue = append(queue, follow)
			}
		}
	}

	log.Info("fetch: source exhausted",
		zap.Int("artifacts", emitted),
		zap.Int("cursor", cursor),
	)
	return nil
}
