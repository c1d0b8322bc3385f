package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meridianhq/meridian/errors"
)

// Propagation and fusion behavior is vocabulary-driven: new claim types
// arrive without code changes, so their rules and reliability weights live
// in a YAML file rather than in Go. Anything the file does not override
// falls back to the defaults below.

// Default propagation parameters
const (
	DefaultUpDecayFactor   = 0.6
	DefaultDownDecayFactor = 0.5
	DefaultDownThreshold   = 0.7
	DefaultDownMaxDepth    = 1
	// DefaultUpMaxDepth of 0 means unbounded: evidence on a person should
	// reach the account no matter how deep the project nesting is.
	DefaultUpMaxDepth = 0
)

// RuleSpec overrides individual propagation parameters. Nil fields inherit.
type RuleSpec struct {
	DecayFactor *float64 `yaml:"decay_factor"`
	Threshold   *float64 `yaml:"threshold"` // down only: gate confidence required to fire
	MaxDepth    *int     `yaml:"max_depth"` // hierarchy levels traversed; 0 = unbounded
}

// ClaimRules overrides propagation per claim type
type ClaimRules struct {
	Up   *RuleSpec `yaml:"up"`
	Down *RuleSpec `yaml:"down"`
}

// PropagationSection configures the propagation engine
type PropagationSection struct {
	Up     RuleSpec              `yaml:"up"`
	Down   RuleSpec              `yaml:"down"`
	Claims map[string]ClaimRules `yaml:"claims"`
}

// WeightsSection configures fusion reliability weights. A signal's weight is
// the product of its source weight and its claim-type weight; missing keys
// default to 1.0.
type WeightsSection struct {
	Sources map[string]float64 `yaml:"sources"`
	Claims  map[string]float64 `yaml:"claims"`
}

// RulesFile is the parsed rules document
type RulesFile struct {
	Weights     WeightsSection     `yaml:"weights"`
	Propagation PropagationSection `yaml:"propagation"`
}

// DefaultRules returns the built-in rules used when no rules file is configured
func DefaultRules() *RulesFile {
	return &RulesFile{
		Weights: WeightsSection{
			Sources: map[string]float64{
				"meeting": 1.0,
				"email":   0.8, // inferred email signals are noisier than capture
				"manual":  1.0,
				"derived": 1.0,
			},
			Claims: map[string]float64{},
		},
		Propagation: PropagationSection{
			Up: RuleSpec{
				DecayFactor: ptr(DefaultUpDecayFactor),
				MaxDepth:    ptrInt(DefaultUpMaxDepth),
			},
			Down: RuleSpec{
				DecayFactor: ptr(DefaultDownDecayFactor),
				Threshold:   ptr(DefaultDownThreshold),
				MaxDepth:    ptrInt(DefaultDownMaxDepth),
			},
		},
	}
}

// LoadRules reads the rules file at path. An empty path returns the
// built-in defaults.
func LoadRules(path string) (*RulesFile, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read rules file %s", path)
	}

	rules := DefaultRules()
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, errors.Wrapf(err, "parse rules file %s", path)
	}

	if err := rules.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid rules file %s", path)
	}

	return rules, nil
}

// Validate checks the rules document for values outside their domains
func (r *RulesFile) Validate() error {
	for name, w := range r.Weights.Sources {
		if w < 0 || w > 1 {
			return errors.Newf("weights.sources.%s must be in [0,1], got %f", name, w)
		}
	}
	for name, w := range r.Weights.Claims {
		if w < 0 || w > 1 {
			return errors.Newf("weights.claims.%s must be in [0,1], got %f", name, w)
		}
	}

	check := func(section string, spec *RuleSpec) error {
		if spec == nil {
			return nil
		}
		if spec.DecayFactor != nil && (*spec.DecayFactor < 0 || *spec.DecayFactor > 1) {
			return errors.Newf("%s.decay_factor must be in [0,1], got %f", section, *spec.DecayFactor)
		}
		if spec.Threshold != nil && (*spec.Threshold < 0 || *spec.Threshold > 1) {
			return errors.Newf("%s.threshold must be in [0,1], got %f", section, *spec.Threshold)
		}
		if spec.MaxDepth != nil && *spec.MaxDepth < 0 {
			return errors.Newf("%s.max_depth must be >= 0, got %d", section, *spec.MaxDepth)
		}
		return nil
	}

	if err := check("propagation.up", &r.Propagation.Up); err != nil {
		return err
	}
	if err := check("propagation.down", &r.Propagation.Down); err != nil {
		return err
	}
	for claim, cr := range r.Propagation.Claims {
		if err := check("propagation.claims."+claim+".up", cr.Up); err != nil {
			return err
		}
		if err := check("propagation.claims."+claim+".down", cr.Down); err != nil {
			return err
		}
	}

	return nil
}

func ptr(f float64) *float64 { return &f }
func ptrInt(i int) *int      { return &i }
