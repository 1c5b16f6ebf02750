// Package authenticity estimates how likely an artifact was produced by an
// automated agent rather than a person, from the environment signals the
// fetch layer observed.
package authenticity

import (
	"math"
	"net"

	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
)

// Signal names in the breakdown map.
const (
	SignalHeadless = "headless"
	SignalTiming   = "timing"
	SignalIP       = "ip_reputation"
	SignalHoneypot = "honeypot"
)

// Detector computes bot probability as a weighted sum of independent
// signals. Deterministic for a given input and configuration.
type Detector struct {
	cfg            config.AuthenticityConfig
	datacenterNets []*net.IPNet
}

// New creates a Detector. Unparseable datacenter CIDRs are skipped with a
// warning rather than failing startup.
func New(cfg config.AuthenticityConfig) *Detector {
	d := &Detector{cfg: cfg}
	for _, cidr := range cfg.DatacenterCIDRs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			zap.L().Warn("authenticity: skipping invalid datacenter cidr", zap.String("cidr", cidr))
			continue
		}
		d.datacenterNets = append(d.datacenterNets, ipNet)
	}
	return d
}

// Analyze scores the signals of one artifact. The honeypot trigger is
// conclusive: when the override is enabled it forces probability 1.0 no
// matter what the weighted signals say.
func (d *Detector) Analyze(signals model.EnvironmentSignals) model.AuthenticityResult {
	breakdown := map[string]float64{
		SignalHeadless: d.headlessScore(signals),
		SignalTiming:   d.timingScore(signals.InteractionGapsMS),
		SignalIP:       d.ipScore(signals.ClientIP),
	}

	probability := d.cfg.HeadlessWeight*breakdown[SignalHeadless] +
		d.cfg.TimingWeight*breakdown[SignalTiming] +
		d.cfg.IPReputationWeight*breakdown[SignalIP]

	if signals.HoneypotTriggered && d.cfg.HoneypotOverride {
		breakdown[SignalHoneypot] = 1.0
		probability = 1.0
	}

	return model.AuthenticityResult{
		BotProbability:  clamp01(probability),
		SignalBreakdown: breakdown,
	}
}

// SoftSuspect reports whether the probability crosses the soft threshold
// that applies the score penalty without discarding the lead.
func (d *Detector) SoftSuspect(r model.AuthenticityResult) bool {
	return r.BotProbability >= d.cfg.SoftSuspicion
}

// HardReject reports whether the probability crosses the discard threshold.
func (d *Detector) HardReject(r model.AuthenticityResult) bool {
	return r.BotProbability >= d.cfg.HardRejection
}

func (d *Detector) headlessScore(signals model.EnvironmentSignals) float64 {
	if signals.HeadlessMarkers || signals.NavigatorWebdriver {
		return 1.0
	}
	return 0
}

// timingScore flags suspiciously regular interaction intervals. Human
// posting rhythms vary widely; near-constant gaps indicate scripting.
func (d *Detector) timingScore(gapsMS []float64) float64 {
	if len(gapsMS) < 2 {
		return 0
	}

	mean := 0.0
	for _, g := range gapsMS {
		mean += g
	}
	mean /= float64(len(gapsMS))
	if mean <= 0 {
		return 1.0
	}

	variance := 0.0
	for _, g := range gapsMS {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gapsMS))

	// Coefficient of variation, as a percentage of the mean interval.
	cv := 100 * math.Sqrt(variance) / mean
	if cv >= d.cfg.TimingVarianceFloor {
		return 0
	}
	return 1 - cv/d.cfg.TimingVarianceFloor
}

func (d *Detector) ipScore(ip string) float64 {
	if ip == "" {
		return 0
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return 0
	}
	for _, ipNet := range d.datacenterNets {
		if ipNet.Contains(parsed) {
			return 1.0
		}
	}
	return 0
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
