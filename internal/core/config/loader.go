package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/cascade/internal/core/domain"
	"github.com/vietddude/cascade/internal/qualify/cascade"
	"github.com/vietddude/cascade/internal/qualify/scoring"
	"github.com/vietddude/cascade/internal/qualify/throttle"
)

// Stage defaults
const (
	DefaultConcurrency    = 4
	DefaultCallsPerSecond = 1.0
	DefaultTimeout        = 10 * time.Second
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates YAML configuration.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = cascade.DefaultCacheCapacity
	}

	def := throttle.DefaultConfig()
	l := &cfg.Limiter
	if l.BackoffBase == 0 {
		l.BackoffBase = def.BackoffBase
	}
	if l.MaxBackoffMultiplier == 0 {
		l.MaxBackoffMultiplier = def.MaxBackoffMultiplier
	}
	if l.AccelerationThreshold == nil {
		n := def.AccelerationThreshold
		l.AccelerationThreshold = &n
	}
	if l.AccelerationFactor == 0 {
		l.AccelerationFactor = def.AccelerationFactor
	}
	if l.MinInterval == 0 {
		l.MinInterval = def.MinInterval
	}

	for i := range cfg.Stages {
		stageDefaults(&cfg.Stages[i])
	}
	if cfg.Enhanced != nil {
		for i := range cfg.Enhanced.Stages {
			stageDefaults(&cfg.Enhanced.Stages[i])
		}
	}

	sc := &cfg.Scoring
	if len(sc.Categories) == 0 {
		sc.Categories = scoring.DefaultConfig().Categories
	}
	if len(sc.Tiers) == 0 {
		sc.Tiers = scoring.DefaultConfig().Tiers
	}
	if sc.FallbackTier == "" {
		sc.FallbackTier = domain.TierLow
	}
}

func stageDefaults(s *StageConfig) {
	if s.Dependency == "" {
		s.Dependency = s.ID
	}
	if s.Category == "" {
		s.Category = s.ID
	}
	if s.CallsPerSecond == 0 {
		s.CallsPerSecond = DefaultCallsPerSecond
	}
	if s.Concurrency == 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
}

// Validate checks everything the cascade needs before any candidate is
// processed. Problems are reported as domain.ConfigError.
func (c *AppConfig) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return domain.NewConfigError("logging.level", "unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return domain.NewConfigError("logging.format", "unknown format %q", c.Logging.Format)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return domain.NewConfigError("server.port", "out of range: %d", c.Server.Port)
	}

	for _, s := range c.AllStages() {
		if s.Provider == "" {
			return domain.NewConfigError("stages."+s.ID+".provider", "is required")
		}
	}

	return c.CascadeConfig().Validate()
}
