// Package config holds Meridian core configuration, loaded with Viper from
// TOML files and MERIDIAN_* environment variables, plus the rules file
// (propagation rules and reliability weights) parsed from YAML.
package config

// Config represents the core Meridian configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Bus      BusConfig      `mapstructure:"bus"`
	Fusion   FusionConfig   `mapstructure:"fusion"`
	Decay    DecayConfig    `mapstructure:"decay"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Rules    RulesConfig    `mapstructure:"rules"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures logger output
type LogConfig struct {
	JSON bool `mapstructure:"json"` // JSON structured output instead of console encoder
}

// BusConfig configures the Signal Bus worker pool that drains the
// recompute queue
type BusConfig struct {
	Workers             int `mapstructure:"workers"`               // Number of concurrent recompute workers (default: 1)
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"` // How often workers check for queued recomputes (default: 1)
	StopTimeoutSeconds  int `mapstructure:"stop_timeout_seconds"`  // Graceful shutdown wait (default: 30)
}

// FusionConfig configures the fusion engine
type FusionConfig struct {
	// MinRelevance is the effective-confidence floor below which a signal
	// no longer contributes to fusion. Once every contributor of a result
	// falls under it, the result is garbage-collected.
	MinRelevance float64 `mapstructure:"min_relevance"`
}

// DecayConfig configures the scheduled decay pass
type DecayConfig struct {
	RatePerDay           float64 `mapstructure:"rate_per_day"`           // confidence multiplier per day of age (default: 0.95)
	Floor                float64 `mapstructure:"floor"`                  // effective confidence below which a signal is retired (default: 0.05)
	SweepIntervalSeconds int     `mapstructure:"sweep_interval_seconds"` // 0 = no scheduled sweeps
}

// EnrichConfig configures the enrichment trigger
type EnrichConfig struct {
	SignalCountThreshold  int     `mapstructure:"signal_count_threshold"`  // active signals since last enrichment that force a refresh (default: 5)
	ConfidenceThreshold   float64 `mapstructure:"confidence_threshold"`    // fusion result that forces a refresh on its own (default: 0.8)
	TickerIntervalSeconds int     `mapstructure:"ticker_interval_seconds"` // 0 = no scheduled enrichment polling
	SynthesisPerMinute    float64 `mapstructure:"synthesis_per_minute"`    // rate limit on handoffs to the synthesis collaborator (default: 6)
	SynthesizerURL        string  `mapstructure:"synthesizer_url"`         // webhook receiving enrichment handoffs; empty = no synthesizer
	AllowPrivateSynth     bool    `mapstructure:"allow_private_synth"`     // permit localhost/private synthesizer URLs
}

// RulesConfig locates the rules file (propagation rules + weights)
type RulesConfig struct {
	Path string `mapstructure:"path"` // empty = built-in defaults
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
