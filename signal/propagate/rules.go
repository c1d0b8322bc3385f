// Package propagate ripples fused confidence through the entity hierarchy.
// Evidence about an entity usually says something weaker about its parent
// (a person leaving weakens the account) and, when strong enough, about
// its children (an account at risk shadows its projects).
package propagate

import (
	"github.com/meridianhq/meridian/config"
)

// Rule parametrizes one propagation direction for one claim type.
type Rule struct {
	DecayFactor float64
	Threshold   float64 // minimum confidence before the direction fires
	MaxDepth    int     // hierarchy levels traversed; 0 = unbounded
}

// RuleSet resolves propagation rules per claim type, falling back to the
// directional defaults when a claim has no override.
type RuleSet struct {
	up     Rule
	down   Rule
	claims map[string]config.ClaimRules
}

// RulesFromConfig snapshots the propagation section of a parsed rules
// file. Like fusion weights, the engine holds its own copy so a hot
// reload swaps the whole set atomically.
func RulesFromConfig(rules *config.RulesFile) *RuleSet {
	rs := &RuleSet{
		up: Rule{
			DecayFactor: config.DefaultUpDecayFactor,
			MaxDepth:    config.DefaultUpMaxDepth,
		},
		down: Rule{
			DecayFactor: config.DefaultDownDecayFactor,
			Threshold:   config.DefaultDownThreshold,
			MaxDepth:    config.DefaultDownMaxDepth,
		},
		claims: make(map[string]config.ClaimRules, len(rules.Propagation.Claims)),
	}
	rs.up = applySpec(rs.up, &rules.Propagation.Up)
	rs.down = applySpec(rs.down, &rules.Propagation.Down)
	for claim, cr := range rules.Propagation.Claims {
		rs.claims[claim] = cr
	}
	return rs
}

// ForClaim returns the up and down rules in effect for a claim type.
func (rs *RuleSet) ForClaim(claimType string) (up, down Rule) {
	up, down = rs.up, rs.down
	cr, ok := rs.claims[claimType]
	if !ok {
		return up, down
	}
	up = applySpec(up, cr.Up)
	down = applySpec(down, cr.Down)
	return up, down
}

func applySpec(base Rule, spec *config.RuleSpec) Rule {
	if spec == nil {
		return base
	}
	if spec.DecayFactor != nil {
		base.DecayFactor = *spec.DecayFactor
	}
	if spec.Threshold != nil {
		base.Threshold = *spec.Threshold
	}
	if spec.MaxDepth != nil {
		base.MaxDepth = *spec.MaxDepth
	}
	return base
}
