package config

import (
	"time"

	redisclient "github.com/vietddude/cascade/internal/infra/redis"
	"github.com/vietddude/cascade/internal/infra/storage/postgres"
	"github.com/vietddude/cascade/internal/qualify/cascade"
	"github.com/vietddude/cascade/internal/qualify/scoring"
	"github.com/vietddude/cascade/internal/qualify/throttle"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Logging                LoggingConfig      `yaml:"logging"`
	Server                 ServerConfig       `yaml:"server"`
	Cache                  CacheConfig        `yaml:"cache"`
	Redis                  redisclient.Config `yaml:"redis"`
	Database               postgres.Config    `yaml:"database"`
	Limiter                LimiterConfig      `yaml:"limiter"`
	QualificationThreshold float64            `yaml:"qualification_threshold"`
	Stages                 []StageConfig      `yaml:"stages"`
	Enhanced               *EnhancedConfig    `yaml:"enhanced"`
	Scoring                scoring.Config     `yaml:"scoring"`
}

// ServerConfig holds HTTP server settings. Port 0 disables the server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// CacheConfig holds the in-process signal cache settings.
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// LimiterConfig holds adaptive pacing settings shared by all dependencies.
type LimiterConfig struct {
	BackoffBase           float64       `yaml:"backoff_base"`
	MaxBackoffMultiplier  float64       `yaml:"max_backoff_multiplier"`
	AccelerationThreshold *int          `yaml:"acceleration_threshold"`
	AccelerationFactor    float64       `yaml:"acceleration_factor"`
	MinInterval           time.Duration `yaml:"min_interval"`
	GlobalCallsPerSecond  float64       `yaml:"global_calls_per_second"`
}

// StageConfig holds settings for one cascade stage.
type StageConfig struct {
	ID                  string            `yaml:"id"`
	Provider            string            `yaml:"provider"`
	Dependency          string            `yaml:"dependency"` // defaults to id
	Category            string            `yaml:"category"`   // defaults to id
	CallsPerSecond      float64           `yaml:"calls_per_second"`
	Concurrency         int               `yaml:"concurrency"`
	MinAdvanceThreshold float64           `yaml:"min_advance_threshold"`
	RetryCount          int               `yaml:"retry_count"`
	Timeout             time.Duration     `yaml:"timeout"`
	Options             map[string]string `yaml:"options"` // provider specific
}

// EnhancedConfig holds the optional high-value branch.
type EnhancedConfig struct {
	AfterStage int           `yaml:"after_stage"`
	Cutoff     float64       `yaml:"cutoff"`
	Stages     []StageConfig `yaml:"stages"`
}

// CascadeConfig converts the file configuration into the cascade's own.
func (c *AppConfig) CascadeConfig() cascade.Config {
	cfg := cascade.Config{
		Stages:                 make([]cascade.StageSpec, 0, len(c.Stages)),
		QualificationThreshold: c.QualificationThreshold,
		Scoring:                c.Scoring,
		CacheCapacity:          c.Cache.Capacity,
		Limiter:                c.Limiter.throttle(),
	}
	for _, s := range c.Stages {
		cfg.Stages = append(cfg.Stages, s.spec())
	}
	if e := c.Enhanced; e != nil {
		cfg.Enhanced = &cascade.Enhanced{AfterStage: e.AfterStage, Cutoff: e.Cutoff}
		for _, s := range e.Stages {
			cfg.Enhanced.Stages = append(cfg.Enhanced.Stages, s.spec())
		}
	}
	return cfg
}

// AllStages returns main stages followed by enhanced stages.
func (c *AppConfig) AllStages() []StageConfig {
	out := append([]StageConfig(nil), c.Stages...)
	if c.Enhanced != nil {
		out = append(out, c.Enhanced.Stages...)
	}
	return out
}

func (s StageConfig) spec() cascade.StageSpec {
	return cascade.StageSpec{
		ID:                  s.ID,
		Dependency:          s.Dependency,
		Category:            s.Category,
		CallsPerSecond:      s.CallsPerSecond,
		Concurrency:         s.Concurrency,
		MinAdvanceThreshold: s.MinAdvanceThreshold,
		RetryCount:          s.RetryCount,
		Timeout:             s.Timeout,
	}
}

func (l LimiterConfig) throttle() throttle.Config {
	cfg := throttle.Config{
		BackoffBase:          l.BackoffBase,
		MaxBackoffMultiplier: l.MaxBackoffMultiplier,
		AccelerationFactor:   l.AccelerationFactor,
		MinInterval:          l.MinInterval,
		GlobalCallsPerSecond: l.GlobalCallsPerSecond,
	}
	if l.AccelerationThreshold != nil {
		cfg.AccelerationThreshold = *l.AccelerationThreshold
	}
	return cfg
}
