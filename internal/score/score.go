// Package score implements additive lead scoring and tier assignment.
package score

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
)

// Contribution names used in score breakdowns and logs.
const (
	ContribWhatsApp   = "whatsapp_phone"
	ContribEmail      = "valid_email"
	ContribPhase      = "phase"
	ContribFlagship   = "flagship_landmark"
	ContribPrice      = "price_markers"
	ContribDisposable = "disposable_email"
	ContribBot        = "bot_suspicion"
)

// Result is a scored lead outcome: the clamped total, its contribution
// breakdown, the tier, and whether the lead clears the sales-qualified bar.
type Result struct {
	Score     int            `json:"score"`
	Breakdown map[string]int `json:"breakdown"`
	Tier      model.Tier     `json:"tier"`
	Qualified bool           `json:"qualified"`
}

// Engine computes lead scores from a fixed contribution table. Scoring the
// same inputs twice always yields the same result.
type Engine struct {
	cfg           config.ScoreConfig
	softSuspicion float64
}

// New creates an Engine. softSuspicion is the bot-probability threshold at
// which the suspicion penalty applies.
func New(cfg config.ScoreConfig, softSuspicion float64) (*Engine, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, softSuspicion: softSuspicion}, nil
}

// Validate checks that a ScoreConfig is internally consistent.
func Validate(c config.ScoreConfig) error {
	var errs []string

	positives := map[string]int{
		"whatsapp_phone":    c.WhatsAppPhone,
		"valid_email":       c.ValidEmail,
		"phase_booking":     c.PhaseBooking,
		"phase_planning":    c.PhasePlanning,
		"flagship_landmark": c.FlagshipLandmark,
		"price_markers":     c.PriceMarkers,
	}
	for name, v := range positives {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	if c.DisposableEmail > 0 {
		errs = append(errs, "disposable_email must be <= 0")
	}
	if c.BotSuspicion > 0 {
		errs = append(errs, "bot_suspicion must be <= 0")
	}

	if c.WarmFloor < 0 || c.WarmFloor > 100 {
		errs = append(errs, "warm_floor must be in [0,100]")
	}
	if c.HotFloor < 0 || c.HotFloor > 100 {
		errs = append(errs, "hot_floor must be in [0,100]")
	}
	if c.WarmFloor >= c.HotFloor {
		errs = append(errs, "warm_floor must be below hot_floor")
	}
	if c.SQLThreshold < 0 || c.SQLThreshold > 100 {
		errs = append(errs, "sql_threshold must be in [0,100]")
	}

	if len(errs) > 0 {
		return eris.New("score: invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}

// Score computes the additive score for one lead's classification outputs.
func (e *Engine) Score(contacts model.ContactSet, intent model.IntentResult, auth model.AuthenticityResult) Result {
	breakdown := make(map[string]int)

	if contacts.HasWhatsApp() {
		breakdown[ContribWhatsApp] = e.cfg.WhatsAppPhone
	}
	if contacts.HasValidEmail() {
		breakdown[ContribEmail] = e.cfg.ValidEmail
	}

	// UNKNOWN and DREAMING phases contribute nothing.
	switch intent.Phase {
	case model.PhaseBooking:
		breakdown[ContribPhase] = e.cfg.PhaseBooking
	case model.PhasePlanning:
		breakdown[ContribPhase] = e.cfg.PhasePlanning
	}

	if intent.HasFlagshipEntity() {
		breakdown[ContribFlagship] = e.cfg.FlagshipLandmark
	}
	if intent.PriceTerms {
		breakdown[ContribPrice] = e.cfg.PriceMarkers
	}
	if contacts.HasDisposableEmail() {
		breakdown[ContribDisposable] = e.cfg.DisposableEmail
	}
	if auth.BotProbability >= e.softSuspicion {
		breakdown[ContribBot] = e.cfg.BotSuspicion
	}

	total := 0
	for _, v := range breakdown {
		total += v
	}
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	return Result{
		Score:     total,
		Breakdown: breakdown,
		Tier:      e.TierFor(total),
		Qualified: total >= e.cfg.SQLThreshold,
	}
}

// TierFor maps a clamped score to its tier band.
func (e *Engine) TierFor(score int) model.Tier {
	switch {
	case score >= e.cfg.HotFloor:
		return model.TierHot
	case score >= e.cfg.WarmFloor:
		return model.TierWarm
	default:
		return model.TierCold
	}
}
