package config

import "github.com/meridianhq/meridian/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "meridian.db" per defaults.go

	// Bus workers: 0 = no background workers, negative = invalid
	if c.Bus.Workers < 0 {
		return errors.Newf("bus.workers must be >= 0, got %d", c.Bus.Workers)
	}
	if c.Bus.PollIntervalSeconds < 0 {
		return errors.Newf("bus.poll_interval_seconds must be >= 0, got %d", c.Bus.PollIntervalSeconds)
	}
	if c.Bus.StopTimeoutSeconds < 0 {
		return errors.Newf("bus.stop_timeout_seconds must be >= 0, got %d", c.Bus.StopTimeoutSeconds)
	}

	// Fusion relevance floor lives on the confidence scale
	if c.Fusion.MinRelevance < 0 || c.Fusion.MinRelevance > 1 {
		return errors.Newf("fusion.min_relevance must be in [0,1], got %f", c.Fusion.MinRelevance)
	}

	// Decay rate is a per-day multiplier; 1.0 means no decay, above 1 would grow
	if c.Decay.RatePerDay <= 0 || c.Decay.RatePerDay > 1 {
		return errors.Newf("decay.rate_per_day must be in (0,1], got %f", c.Decay.RatePerDay)
	}
	if c.Decay.Floor < 0 || c.Decay.Floor > 1 {
		return errors.Newf("decay.floor must be in [0,1], got %f", c.Decay.Floor)
	}
	if c.Decay.SweepIntervalSeconds < 0 {
		return errors.Newf("decay.sweep_interval_seconds must be >= 0, got %d", c.Decay.SweepIntervalSeconds)
	}

	// Enrichment thresholds
	if c.Enrich.SignalCountThreshold < 1 {
		return errors.Newf("enrich.signal_count_threshold must be >= 1, got %d", c.Enrich.SignalCountThreshold)
	}
	if c.Enrich.ConfidenceThreshold < 0 || c.Enrich.ConfidenceThreshold > 1 {
		return errors.Newf("enrich.confidence_threshold must be in [0,1], got %f", c.Enrich.ConfidenceThreshold)
	}
	if c.Enrich.TickerIntervalSeconds < 0 {
		return errors.Newf("enrich.ticker_interval_seconds must be >= 0, got %d", c.Enrich.TickerIntervalSeconds)
	}
	if c.Enrich.SynthesisPerMinute < 0 {
		return errors.Newf("enrich.synthesis_per_minute must be >= 0, got %f", c.Enrich.SynthesisPerMinute)
	}

	return nil
}
