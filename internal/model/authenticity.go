package model

// AuthenticityResult aggregates behavioral and environmental signals into a
// bot-probability estimate with a per-signal contribution breakdown.
type AuthenticityResult struct {
	BotProbability  float64            `json:"bot_probability"`
	SignalBreakdown map[string]float64 `json:"signal_breakdown,omitempty"`
}
