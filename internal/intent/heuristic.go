package intent

import (
	"context"
	"strings"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
)

// Marker vocabularies, Spanish and English mixed since the sources code-switch.
var (
	bookingMarkers = []string{
		"reservar", "reserva", "reservo", "cotizacion", "cotización", "cotizar",
		"precio", "cuanto cuesta", "cuánto cuesta", "disponibilidad", "pagar",
		"book", "booking", "quote", "price", "how much", "availability", "deposit",
		"whatsapp", "wa.me",
	}
	planningMarkers = []string{
		"itinerario", "cuantos dias", "cuántos días", "que llevar", "qué llevar",
		"mejor epoca", "mejor época", "como llegar", "cómo llegar", "recomiendan",
		"itinerary", "how many days", "best time", "how to get", "recommend",
		"recommendations", "tips",
	}
	priceMarkers = []string{
		"precio", "costo", "cuesta", "soles", "usd", "dolares", "dólares",
		"price", "cost", "budget", "s/", "$", ":money:",
	}

	futureMarkers = []string{
		"voy a", "iremos", "viajare", "viajaré", "ire", "iré", "quiero ir",
		"planeo", "proximo", "próximo", "proxima", "próxima", "en junio",
		"will", "going to", "planning to", "next month", "next year", "soon",
	}
	pastMarkers = []string{
		"fui", "fuimos", "estuve", "estuvimos", "visite", "visité", "viaje el",
		"el año pasado", "el ano pasado", "hace un año", "hace un ano",
		"went", "visited", "last year", "last month", "we did", "i did",
	}
	presentMarkers = []string{
		"estoy en", "estamos en", "ahora", "hoy", "esta semana",
		"i am in", "we are in", "right now", "today", "this week",
	}

	// Sarcasm or hypothetical framing that voids purchase intent.
	sarcasmMarkers = []string{
		"ojala pudiera", "ojalá pudiera", "si fuera rico", "si fuera millonario",
		"en mis sueños", "en mis suenos", "jaja", "jajaja",
		"if only", "in my dreams", "yeah right", "lol sure",
	}
)

// Heuristic is the deterministic rule-based classifier. Pure, no I/O.
type Heuristic struct {
	minTokenQuality float64
	minConfidence   float64
}

// NewHeuristic creates the rule-based classifier.
func NewHeuristic(cfg config.IntentConfig) *Heuristic {
	return &Heuristic{
		minTokenQuality: cfg.MinTokenQuality,
		minConfidence:   cfg.MinConfidence,
	}
}

// Classify runs the three stages. It never returns an error; unparseable
// input yields UNKNOWN with zero confidence.
func (h *Heuristic) Classify(_ context.Context, text model.NormalizedText) (model.IntentResult, error) {
	// Stage 1: token quality gate. Mostly-noise messages (link dumps, emoji
	// strings, single-word fragments) cannot carry classifiable intent.
	quality := tokenQuality(text.Tokens)
	if quality < h.minTokenQuality || len(text.Tokens) < 3 {
		return model.IntentResult{
			Phase:      model.PhaseUnknown,
			Tense:      model.TenseAmbiguous,
			Confidence: 0,
		}, nil
	}

	canonical := text.CanonicalText

	// Stage 2: entities, tense, price terms.
	entities := findEntities(canonical)
	tense := detectTense(canonical)
	price := containsAny(canonical, priceMarkers)

	// Stage 3: pragmatic phase resolution. Booking language only counts as
	// purchase intent when the trip is not already in the past and the
	// framing is not sarcastic.
	phase, phaseConf := resolvePhase(canonical, entities, tense)

	confidence := clamp01(quality * phaseConf)
	if confidence < h.minConfidence {
		phase = model.PhaseUnknown
	}

	return model.IntentResult{
		Phase:      phase,
		Entities:   entities,
		Tense:      tense,
		PriceTerms: price,
		Confidence: confidence,
	}, nil
}

func resolvePhase(canonical string, entities []model.NamedEntity, tense model.Tense) (model.Phase, float64) {
	if containsAny(canonical, sarcasmMarkers) || tense == model.TensePast {
		return model.PhaseUnknown, 0.4
	}

	booking := containsAny(canonical, bookingMarkers)
	planning := containsAny(canonical, planningMarkers)

	switch {
	case booking && (tense == model.TenseFuture || tense == model.TensePresent):
		return model.PhaseBooking, 0.9
	case booking && tense == model.TenseAmbiguous && len(entities) > 0:
		// Price questions about a concrete destination read as booking even
		// without an explicit tense marker.
		return model.PhaseBooking, 0.7
	case planning && tense == model.TenseFuture:
		return model.PhasePlanning, 0.8
	case planning && len(entities) > 0:
		return model.PhasePlanning, 0.6
	case len(entities) > 0:
		return model.PhaseDreaming, 0.5
	default:
		return model.PhaseUnknown, 0.3
	}
}

// detectTense picks the dominant temporal orientation by marker count.
func detectTense(canonical string) model.Tense {
	future := countMarkers(canonical, futureMarkers)
	past := countMarkers(canonical, pastMarkers)
	present := countMarkers(canonical, presentMarkers)

	switch {
	case future > past && future >= present:
		return model.TenseFuture
	case past > future && past >= present:
		return model.TensePast
	case present > 0:
		return model.TensePresent
	default:
		return model.TenseAmbiguous
	}
}

// tokenQuality is the share of tokens that are plain words: not emoji
// tokens, not URLs, not bare digit runs.
func tokenQuality(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	words := 0
	for _, t := range tokens {
		if strings.HasPrefix(t, ":") || strings.Contains(t, "/") || isDigits(t) {
			continue
		}
		words++
	}
	return float64(words) / float64(len(tokens))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '+' && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func countMarkers(s string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(s, m) {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
