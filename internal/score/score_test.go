package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
)

func testScoreConfig() config.ScoreConfig {
	return config.ScoreConfig{
		WhatsAppPhone:    35,
		ValidEmail:       15,
		PhaseBooking:     30,
		PhasePlanning:    20,
		FlagshipLandmark: 10,
		PriceMarkers:     10,
		DisposableEmail:  -15,
		BotSuspicion:     -50,
		HotFloor:         80,
		WarmFloor:        50,
		SQLThreshold:     80,
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testScoreConfig(), 0.5)
	require.NoError(t, err)
	return e
}

func whatsappContacts() model.ContactSet {
	return model.ContactSet{
		Phones: []model.Phone{{Number: "+51987654321", Region: "PE", WhatsAppEligible: true}},
	}
}

func TestScore_HotBookingLead(t *testing.T) {
	e := newEngine(t)

	result := e.Score(
		whatsappContacts(),
		model.IntentResult{
			Phase:      model.PhaseBooking,
			PriceTerms: true,
			Entities:   []model.NamedEntity{{Text: "valle sagrado", Kind: model.EntityLandmark, Flagship: true}},
		},
		model.AuthenticityResult{BotProbability: 0.1},
	)

	// 35 + 30 + 10 + 10
	assert.Equal(t, 85, result.Score)
	assert.Equal(t, model.TierHot, result.Tier)
	assert.True(t, result.Qualified)
	assert.Equal(t, 35, result.Breakdown[ContribWhatsApp])
	assert.Equal(t, 30, result.Breakdown[ContribPhase])
}

func TestScore_DreamingContributesNothing(t *testing.T) {
	e := newEngine(t)

	result := e.Score(
		whatsappContacts(),
		model.IntentResult{Phase: model.PhaseDreaming},
		model.AuthenticityResult{},
	)

	assert.Equal(t, 35, result.Score)
	assert.NotContains(t, result.Breakdown, ContribPhase)
}

func TestScore_ClampsToZero(t *testing.T) {
	e := newEngine(t)

	// Disposable email only, and the address is disposable so it does not
	// count as a valid email either.
	result := e.Score(
		model.ContactSet{Emails: []model.Email{{Address: "x@mailinator.com", Disposable: true}}},
		model.IntentResult{Phase: model.PhaseDreaming},
		model.AuthenticityResult{},
	)

	assert.Equal(t, 0, result.Score)
	assert.Equal(t, model.TierCold, result.Tier)
	assert.False(t, result.Qualified)
	assert.Equal(t, -15, result.Breakdown[ContribDisposable])
}

func TestScore_BotSuspicionPenalty(t *testing.T) {
	e := newEngine(t)

	contacts := whatsappContacts()
	intent := model.IntentResult{Phase: model.PhaseBooking, PriceTerms: true}

	clean := e.Score(contacts, intent, model.AuthenticityResult{BotProbability: 0.49})
	suspect := e.Score(contacts, intent, model.AuthenticityResult{BotProbability: 0.5})

	assert.Equal(t, 75, clean.Score)
	assert.Equal(t, 25, suspect.Score)
	assert.Equal(t, -50, suspect.Breakdown[ContribBot])
}

func TestTierFor_Boundaries(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		score int
		tier  model.Tier
	}{
		{0, model.TierCold},
		{49, model.TierCold},
		{50, model.TierWarm},
		{79, model.TierWarm},
		{80, model.TierHot},
		{100, model.TierHot},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.tier, e.TierFor(tt.score), "score %d", tt.score)
	}
}

func TestScore_Idempotent(t *testing.T) {
	e := newEngine(t)

	contacts := whatsappContacts()
	intent := model.IntentResult{Phase: model.PhasePlanning}
	auth := model.AuthenticityResult{BotProbability: 0.6}

	first := e.Score(contacts, intent, auth)
	second := e.Score(contacts, intent, auth)
	assert.Equal(t, first, second)
}

func TestValidate_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.ScoreConfig)
	}{
		{"negative positive contribution", func(c *config.ScoreConfig) { c.WhatsAppPhone = -5 }},
		{"positive penalty", func(c *config.ScoreConfig) { c.BotSuspicion = 10 }},
		{"warm above hot", func(c *config.ScoreConfig) { c.WarmFloor = 90 }},
		{"sql out of range", func(c *config.ScoreConfig) { c.SQLThreshold = 120 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testScoreConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, 0.5)
			assert.Error(t, err)
		})
	}
}
