package config

import (
	"time"
)

// BackoffConfig holds exponential backoff settings for embedding API calls.
type BackoffConfig struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// GetEmbedBackoffConfig returns backoff settings appropriate for the current environment.
// Test environments use much shorter timeouts.
func (c Config) GetEmbedBackoffConfig() BackoffConfig {
	if c.IsTest() {
		return BackoffConfig{
			MaxElapsedTime:  2 * time.Second,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			Multiplier:      2.0,
		}
	}
	return BackoffConfig{
		MaxElapsedTime:  c.EmbedBackoffMaxElapsedTime,
		InitialInterval: c.EmbedBackoffInitialInterval,
		MaxInterval:     c.EmbedBackoffMaxInterval,
		Multiplier:      c.EmbedBackoffMultiplier,
	}
}
