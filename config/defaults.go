package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "meridian.db")

	// Log defaults
	v.SetDefault("log.json", false)

	// Bus (recompute worker pool) defaults
	v.SetDefault("bus.workers", 1)
	v.SetDefault("bus.poll_interval_seconds", 1)
	v.SetDefault("bus.stop_timeout_seconds", 30)

	// Fusion defaults
	v.SetDefault("fusion.min_relevance", 0.05)

	// Decay defaults
	v.SetDefault("decay.rate_per_day", 0.95)  // ~50% after two weeks without corroboration
	v.SetDefault("decay.floor", 0.05)         // below this a signal stops contributing
	v.SetDefault("decay.sweep_interval_seconds", 3600)

	// Enrichment trigger defaults
	v.SetDefault("enrich.signal_count_threshold", 5)
	v.SetDefault("enrich.confidence_threshold", 0.8)
	v.SetDefault("enrich.ticker_interval_seconds", 60)
	v.SetDefault("enrich.synthesis_per_minute", 6.0) // synthesis calls are expensive
	v.SetDefault("enrich.synthesizer_url", "")
	v.SetDefault("enrich.allow_private_synth", false)

	// Rules file (empty = built-in defaults)
	v.SetDefault("rules.path", "")
}

// Default returns a Config carrying the same defaults without touching
// viper state. Used by tests and by callers embedding the bus directly.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "meridian.db"},
		Log:      LogConfig{JSON: false},
		Bus: BusConfig{
			Workers:             1,
			PollIntervalSeconds: 1,
			StopTimeoutSeconds:  30,
		},
		Fusion: FusionConfig{MinRelevance: 0.05},
		Decay: DecayConfig{
			RatePerDay:           0.95,
			Floor:                0.05,
			SweepIntervalSeconds: 3600,
		},
		Enrich: EnrichConfig{
			SignalCountThreshold:  5,
			ConfidenceThreshold:   0.8,
			TickerIntervalSeconds: 60,
			SynthesisPerMinute:    6.0,
		},
	}
}
