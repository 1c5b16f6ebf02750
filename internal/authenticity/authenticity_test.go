package authenticity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
)

func defaultConfig() config.AuthenticityConfig {
	return config.AuthenticityConfig{
		HeadlessWeight:      0.4,
		TimingWeight:        0.3,
		IPReputationWeight:  0.3,
		HoneypotOverride:    true,
		TimingVarianceFloor: 25.0,
		DatacenterCIDRs:     []string{"203.0.113.0/24", "198.51.100.0/24"},
		SoftSuspicion:       0.5,
		HardRejection:       0.8,
	}
}

func TestAnalyze_CleanSignals(t *testing.T) {
	d := New(defaultConfig())

	result := d.Analyze(model.EnvironmentSignals{
		ClientIP:          "81.45.220.10",
		InteractionGapsMS: []float64{12000, 45000, 7000, 90000},
	})

	assert.Zero(t, result.BotProbability)
	assert.False(t, d.SoftSuspect(result))
	assert.False(t, d.HardReject(result))
}

func TestAnalyze_HoneypotOverridesEverything(t *testing.T) {
	d := New(defaultConfig())

	// Even with every weighted signal clean, a tripped honeypot is conclusive.
	result := d.Analyze(model.EnvironmentSignals{
		HoneypotTriggered: true,
		InteractionGapsMS: []float64{12000, 45000, 7000},
	})

	assert.Equal(t, 1.0, result.BotProbability)
	assert.Equal(t, 1.0, result.SignalBreakdown[SignalHoneypot])
	assert.True(t, d.HardReject(result))
}

func TestAnalyze_HoneypotOverrideDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.HoneypotOverride = false
	d := New(cfg)

	result := d.Analyze(model.EnvironmentSignals{HoneypotTriggered: true})

	assert.Less(t, result.BotProbability, 1.0)
	assert.NotContains(t, result.SignalBreakdown, SignalHoneypot)
}

func TestAnalyze_HeadlessMarkers(t *testing.T) {
	d := New(defaultConfig())

	result := d.Analyze(model.EnvironmentSignals{HeadlessMarkers: true})

	assert.Equal(t, 1.0, result.SignalBreakdown[SignalHeadless])
	assert.InDelta(t, 0.4, result.BotProbability, 1e-9)
	assert.False(t, d.HardReject(result))
}

func TestAnalyze_RoboticTiming(t *testing.T) {
	d := New(defaultConfig())

	// Identical intervals have zero variance: maximal timing suspicion.
	result := d.Analyze(model.EnvironmentSignals{
		InteractionGapsMS: []float64{5000, 5000, 5000, 5000},
	})

	assert.Equal(t, 1.0, result.SignalBreakdown[SignalTiming])
	assert.InDelta(t, 0.3, result.BotProbability, 1e-9)
}

func TestAnalyze_DatacenterIP(t *testing.T) {
	d := New(defaultConfig())

	result := d.Analyze(model.EnvironmentSignals{ClientIP: "203.0.113.77"})
	assert.Equal(t, 1.0, result.SignalBreakdown[SignalIP])
	assert.InDelta(t, 0.3, result.BotProbability, 1e-9)

	residential := d.Analyze(model.EnvironmentSignals{ClientIP: "190.40.12.9"})
	assert.Zero(t, residential.SignalBreakdown[SignalIP])
}

func TestAnalyze_AllSignalsCrossHardThreshold(t *testing.T) {
	d := New(defaultConfig())

	result := d.Analyze(model.EnvironmentSignals{
		HeadlessMarkers:   true,
		ClientIP:          "198.51.100.5",
		InteractionGapsMS: []float64{3000, 3000, 3000},
	})

	assert.InDelta(t, 1.0, result.BotProbability, 1e-9)
	assert.True(t, d.SoftSuspect(result))
	assert.True(t, d.HardReject(result))
}

func TestAnalyze_InvalidCIDRSkipped(t *testing.T) {
	cfg := defaultConfig()
	cfg.DatacenterCIDRs = []string{"not-a-cidr", "203.0.113.0/24"}
	d := New(cfg)

	result := d.Analyze(model.EnvironmentSignals{ClientIP: "203.0.113.9"})
	assert.Equal(t, 1.0, result.SignalBreakdown[SignalIP])
}

func TestAnalyze_TooFewGapsIsNeutral(t *testing.T) {
	d := New(defaultConfig())

	result := d.Analyze(model.EnvironmentSignals{InteractionGapsMS: []float64{5000}})
	assert.Zero(t, result.SignalBreakdown[SignalTiming])
}
