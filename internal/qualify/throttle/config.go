package throttle

import (
	"time"

	"github.com/vietddude/cascade/internal/core/domain"
)

// HardMinInterval is the smallest spacing the limiter will ever allow between
// two calls to the same dependency, whatever the configuration says.
const HardMinInterval = 10 * time.Millisecond

// DefaultCallsPerSecond applies to dependencies that were never registered.
const DefaultCallsPerSecond = 1.0

// Config holds configuration for adaptive pacing behavior.
type Config struct {
	// Backoff after errors: base interval × min(BackoffBase^errors, MaxBackoffMultiplier)
	BackoffBase          float64
	MaxBackoffMultiplier float64

	// Acceleration after a success streak longer than AccelerationThreshold:
	// base interval × AccelerationFactor, never below MinInterval (or HardMinInterval)
	AccelerationThreshold int
	AccelerationFactor    float64
	MinInterval           time.Duration

	// GlobalCallsPerSecond caps outbound calls across all dependencies (0 = off)
	GlobalCallsPerSecond float64
}

// DefaultConfig returns sensible defaults for adaptive pacing.
func DefaultConfig() Config {
	return Config{
		BackoffBase:           2,
		MaxBackoffMultiplier:  32,
		AccelerationThreshold: 10,
		AccelerationFactor:    0.5,
		MinInterval:           20 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.BackoffBase < 1:
		return domain.NewConfigError("limiter.backoff_base", "must be >= 1, got %v", c.BackoffBase)
	case c.MaxBackoffMultiplier < 1:
		return domain.NewConfigError("limiter.max_backoff_multiplier", "must be >= 1, got %v", c.MaxBackoffMultiplier)
	case c.AccelerationThreshold < 0:
		return domain.NewConfigError("limiter.acceleration_threshold", "must be >= 0, got %d", c.AccelerationThreshold)
	case c.AccelerationFactor <= 0 || c.AccelerationFactor >= 1:
		return domain.NewConfigError("limiter.acceleration_factor", "must be in (0, 1), got %v", c.AccelerationFactor)
	case c.MinInterval < 0:
		return domain.NewConfigError("limiter.min_interval", "must be >= 0, got %v", c.MinInterval)
	case c.GlobalCallsPerSecond < 0:
		return domain.NewConfigError("limiter.global_calls_per_second", "must be >= 0, got %v", c.GlobalCallsPerSecond)
	}
	return nil
}

// floor is the lowest interval acceleration may reach.
func (c Config) floor() time.Duration {
	return max(c.MinInterval, HardMinInterval)
}
