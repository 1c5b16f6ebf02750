package intent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/resilience"
)

const classifySystemPrompt = `You classify travel-forum messages about trips to the Cusco region.
Return ONLY a JSON object with fields:
  phase: one of DREAMING, PLANNING, BOOKING, UNKNOWN
  tense: one of PAST, PRESENT, FUTURE, AMBIGUOUS
  price_terms: boolean
  confidence: number 0..1
BOOKING requires concrete purchase intent for a trip that has not happened yet.
Messages about past trips or sarcastic wishes are UNKNOWN.`

// remoteResult is the JSON shape the model is instructed to return.
type remoteResult struct {
	Phase      string  `json:"phase"`
	Tense      string  `json:"tense"`
	PriceTerms bool    `json:"price_terms"`
	Confidence float64 `json:"confidence"`
}

// Anthropic classifies via the Messages API, guarded by a circuit breaker.
// Any remote failure degrades to the heuristic classifier, so a model outage
// never stalls a running job.
type Anthropic struct {
	client   sdk.Client
	model    string
	breaker  *resilience.CircuitBreaker
	fallback *Heuristic
}

// NewAnthropic creates the remote classifier backend.
func NewAnthropic(cfg config.AnthropicConfig, fallback *Heuristic) *Anthropic {
	breaker := resilience.NewCircuitBreaker(3, 30*time.Second)
	breaker.OnStateChange(func(from, to resilience.CircuitState) {
		zap.L().Warn("intent: classifier circuit state change",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	})
	return &Anthropic{
		client:   sdk.NewClient(option.WithAPIKey(cfg.Key)),
		model:    cfg.Model,
		breaker:  breaker,
		fallback: fallback,
	}
}

// Classify tries the remote model and falls back to the heuristic rules on
// MODEL_UNAVAILABLE. The heuristic result is returned alongside the error so
// callers can use the degraded classification while recording the failure
// against the job. The entity pass always runs locally; the gazetteer is
// authoritative for flagship detection either way.
func (a *Anthropic) Classify(ctx context.Context, text model.NormalizedText) (model.IntentResult, error) {
	result, err := a.classifyRemote(ctx, text)
	if err == nil {
		return result, nil
	}

	zap.L().Warn("intent: remote classify failed, using heuristic fallback", zap.Error(err))
	fallback, _ := a.fallback.Classify(ctx, text)
	return fallback, err
}

// classifyRemote performs one guarded Messages call. Failures come back as
// *Error with code MODEL_UNAVAILABLE.
func (a *Anthropic) classifyRemote(ctx context.Context, text model.NormalizedText) (model.IntentResult, error) {
	if err := a.breaker.Allow(); err != nil {
		return model.IntentResult{}, &Error{Code: CodeModelUnavailable, Err: err}
	}

	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: 256,
		System:    []sdk.TextBlockParam{{Text: classifySystemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(text.CanonicalText)),
		},
	})
	if err != nil {
		a.breaker.RecordFailure()
		return model.IntentResult{}, &Error{
			Code: CodeModelUnavailable,
			Err:  eris.Wrap(err, "create message"),
		}
	}
	a.breaker.RecordSuccess()

	var raw strings.Builder
	for _, block := range msg.Content {
		raw.WriteString(block.Text)
	}

	var parsed remoteResult
	if err := json.Unmarshal([]byte(extractJSON(raw.String())), &parsed); err != nil {
		return model.IntentResult{}, &Error{
			Code: CodeModelUnavailable,
			Err:  eris.Wrap(err, "parse model response"),
		}
	}

	return model.IntentResult{
		Phase:      parsePhase(parsed.Phase),
		Entities:   findEntities(text.CanonicalText),
		Tense:      parseTense(parsed.Tense),
		PriceTerms: parsed.PriceTerms,
		Confidence: clamp01(parsed.Confidence),
	}, nil
}

// extractJSON trims any prose the model wraps around the JSON object.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func parsePhase(s string) model.Phase {
	switch model.Phase(strings.ToUpper(s)) {
	case model.PhaseDreaming, model.PhasePlanning, model.PhaseBooking:
		return model.Phase(strings.ToUpper(s))
	default:
		return model.PhaseUnknown
	}
}

func parseTense(s string) model.Tense {
	switch model.Tense(strings.ToUpper(s)) {
	case model.TensePast, model.TensePresent, model.TenseFuture:
		return model.Tense(strings.ToUpper(s))
	default:
		return model.TenseAmbiguous
	}
}
