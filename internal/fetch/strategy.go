package fetch

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/model"
)

// ParseResult is what a strategy extracts from one fetched page.
type ParseResult struct {
	// Artifacts are the raw text snapshots found on the page.
	Artifacts []model.RawArtifact
	// Follow lists additional same-source URLs to fetch (thread pages,
	// pagination links).
	Follow []string
}

// SourceStrategy encapsulates per-platform scraping quirks behind a fixed
// capability set. The fetcher dispatches over the source type rather than an
// inheritance hierarchy.
type SourceStrategy interface {
	Name() string

	// BuildRequests returns the seed URLs for a source.
	BuildRequests(source model.SourceConfig) []string

	// ParseArtifacts extracts artifacts and follow-up URLs from a page.
	// Parse failures on a single page degrade to an empty result.
	ParseArtifacts(page *Page, source model.SourceConfig) (ParseResult, error)

	// DetectBlock lets a strategy recognize platform-specific soft blocks
	// that the generic detector misses.
	DetectBlock(page *Page) (bool, BlockType)
}

// StrategyFor returns the strategy registered for a source type.
func StrategyFor(t model.SourceType) (SourceStrategy, error) {
	switch t {
	case model.SourceForumThread:
		return &ForumStrategy{}, nil
	case model.SourceGenericWeb:
		return &GenericWebStrategy{}, nil
	default:
		return nil, eris.Errorf("fetch: no strategy for source type %q", t)
	}
}
