// Package fusion collapses the active signals for an (entity, claim) pair
// into a single combined confidence using noisy-OR: independent pieces of
// evidence reinforce each other without any one of them needing to be
// certain, and the combined value never exceeds 1.
package fusion

import (
	"time"

	"github.com/meridianhq/meridian/config"
	"github.com/meridianhq/meridian/signal"
)

// Weights maps sources and claim types to multipliers applied to each
// signal's confidence before fusion. Missing keys weigh 1.0.
type Weights struct {
	Sources map[string]float64
	Claims  map[string]float64
}

// WeightsFromConfig snapshots the weight tables out of a parsed rules file.
// Fusion holds its own copy so a hot reload swaps weights atomically.
func WeightsFromConfig(rules *config.RulesFile) Weights {
	w := Weights{
		Sources: make(map[string]float64, len(rules.Weights.Sources)),
		Claims:  make(map[string]float64, len(rules.Weights.Claims)),
	}
	for k, v := range rules.Weights.Sources {
		w.Sources[k] = v
	}
	for k, v := range rules.Weights.Claims {
		w.Claims[k] = v
	}
	return w
}

func (w Weights) source(s signal.Source) float64 {
	if v, ok := w.Sources[string(s)]; ok {
		return v
	}
	return 1.0
}

func (w Weights) claim(claimType string) float64 {
	if v, ok := w.Claims[claimType]; ok {
		return v
	}
	return 1.0
}

// For returns the effective weight for one signal: source weight times
// claim-type weight.
func (w Weights) For(sig *signal.Signal) float64 {
	return w.source(sig.Source) * w.claim(sig.ClaimType)
}

// Combine fuses the given signals at time now. Evidence signals enter the
// noisy-OR product after time decay and weighting; retractions are applied
// afterward as an unweighted discount, so a retraction with confidence 1
// zeroes the claim no matter how much supporting evidence exists.
func Combine(signals []*signal.Signal, w Weights, now time.Time, decayRatePerDay float64) float64 {
	survival := 1.0 // probability no evidence is true
	retained := 1.0 // fraction surviving retraction

	for _, sig := range signals {
		c := sig.EffectiveConfidence(now, decayRatePerDay)
		if sig.Retraction {
			retained *= 1 - c
			continue
		}
		survival *= 1 - c*w.For(sig)
	}

	combined := (1 - survival) * retained
	if combined < 0 {
		combined = 0
	}
	if combined > 1 {
		combined = 1
	}
	return combined
}
