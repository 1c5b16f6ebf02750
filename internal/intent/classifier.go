// Package intent infers the travel-funnel phase of a message through a
// three-stage analysis: token quality, entity and tense recognition, then
// pragmatic phase resolution.
package intent

import (
	"context"
	"fmt"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
)

// ErrorCode identifies a classification failure class.
type ErrorCode string

const (
	// CodeModelUnavailable means the remote backend could not serve the
	// request. Callers fall back to the heuristic classifier.
	CodeModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"
)

// Error is a typed classification failure.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("intent: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classifier infers trip intent from normalized text.
type Classifier interface {
	Classify(ctx context.Context, text model.NormalizedText) (model.IntentResult, error)
}

// NewClassifier builds the configured classifier backend. The anthropic
// backend wraps the heuristic one as its degradation path.
func NewClassifier(cfg config.IntentConfig, anthropicCfg config.AnthropicConfig) Classifier {
	heuristic := NewHeuristic(cfg)
	if cfg.Backend == "anthropic" && anthropicCfg.Key != "" {
		return NewAnthropic(anthropicCfg, heuristic)
	}
	return heuristic
}
