package config

import (
	"time"
)

// RetryConfig bounds the exponential backoff applied to durable KV writes.
type RetryConfig struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// GetKVRetryConfig returns the KV retry configuration. In test environments it
// uses much shorter timeouts so failing stores do not slow tests down.
func (c Config) GetKVRetryConfig() RetryConfig {
	if c.IsTest() {
		return RetryConfig{
			MaxElapsedTime:  100 * time.Millisecond,
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     20 * time.Millisecond,
			Multiplier:      2.0,
		}
	}
	return RetryConfig{
		MaxElapsedTime:  c.KVRetryMaxElapsedTime,
		InitialInterval: c.KVRetryInitialInterval,
		MaxInterval:     c.KVRetryMaxInterval,
		Multiplier:      c.KVRetryMultiplier,
	}
}
