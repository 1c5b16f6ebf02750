package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/normalize"
)

func newHeuristic() *Heuristic {
	return NewHeuristic(config.IntentConfig{
		MinTokenQuality: 0.3,
		MinConfidence:   0.2,
	})
}

func classify(t *testing.T, text string) model.IntentResult {
	t.Helper()
	norm := normalize.New("es", nil).Normalize(text)
	result, err := newHeuristic().Classify(context.Background(), norm)
	require.NoError(t, err)
	return result
}

func TestClassify_BookingWithPriceAndDestination(t *testing.T) {
	result := classify(t, "precio tour Valle Sagrado, mi whatsapp es +51 987 654 321")

	assert.Equal(t, model.PhaseBooking, result.Phase)
	assert.True(t, result.PriceTerms)
	assert.True(t, result.HasFlagshipEntity())
	assert.Greater(t, result.Confidence, 0.2)
}

func TestClassify_BookingFutureTense(t *testing.T) {
	result := classify(t, "voy a reservar el camino inca para el próximo mes, cuánto cuesta el tour")

	assert.Equal(t, model.PhaseBooking, result.Phase)
	assert.Equal(t, model.TenseFuture, result.Tense)
}

func TestClassify_PlanningQuestions(t *testing.T) {
	result := classify(t, "voy a ir a machu picchu, cuantos dias recomiendan para el itinerario")

	assert.Equal(t, model.PhasePlanning, result.Phase)
	assert.Equal(t, model.TenseFuture, result.Tense)
	assert.True(t, result.HasFlagshipEntity())
}

func TestClassify_DreamingMention(t *testing.T) {
	result := classify(t, "que hermosa se ve la montaña de colores en las fotos")

	assert.Equal(t, model.PhaseDreaming, result.Phase)
	assert.False(t, result.HasFlagshipEntity())
}

func TestClassify_PastTripIsUnknown(t *testing.T) {
	result := classify(t, "fuimos a machu picchu el año pasado y el precio del tour valió cada sol")

	assert.Equal(t, model.PhaseUnknown, result.Phase)
	assert.Equal(t, model.TensePast, result.Tense)
}

func TestClassify_SarcasmIsUnknown(t *testing.T) {
	result := classify(t, "jajaja si fuera millonario reservaba el tour privado a machu picchu mañana mismo")

	assert.Equal(t, model.PhaseUnknown, result.Phase)
}

func TestClassify_LowQualityGate(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"emoji string", "😍 🔥 ✈️ 💸"},
		{"too short", "wow"},
		{"digit noise", "987 654 321 111 222"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classify(t, tt.text)
			assert.Equal(t, model.PhaseUnknown, result.Phase)
			assert.Zero(t, result.Confidence)
		})
	}
}

func TestClassify_EntitiesInOrderOfAppearance(t *testing.T) {
	result := classify(t, "primero ollantaytambo y después machu picchu con el boleto turistico")

	require.Len(t, result.Entities, 3)
	assert.Equal(t, "ollantaytambo", result.Entities[0].Text)
	assert.Equal(t, "machu picchu", result.Entities[1].Text)
	assert.Equal(t, model.EntityService, result.Entities[2].Kind)
}

func TestClassify_NoMarkersNoEntities(t *testing.T) {
	result := classify(t, "hola amigos como están todos por aquí")

	assert.Equal(t, model.PhaseUnknown, result.Phase)
}
