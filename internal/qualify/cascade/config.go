package cascade

import (
	"fmt"
	"time"

	"github.com/vietddude/cascade/internal/core/domain"
	"github.com/vietddude/cascade/internal/qualify/scoring"
	"github.com/vietddude/cascade/internal/qualify/throttle"
)

// DefaultCacheCapacity is used when Config.CacheCapacity is zero.
const DefaultCacheCapacity = 1024

// StageSpec configures one stage of the cascade.
type StageSpec struct {
	ID         string
	Dependency string
	// Category is stamped on signals whose provider leaves it empty. Defaults to ID.
	Category       string
	CallsPerSecond float64
	Concurrency    int
	// MinAdvanceThreshold is the partial score a candidate needs after this
	// stage to continue. Ties pass.
	MinAdvanceThreshold float64
	RetryCount          int
	Timeout             time.Duration
}

// Enhanced configures the optional high-value branch: after main stage
// AfterStage, candidates whose partial score reaches Cutoff also run Stages.
type Enhanced struct {
	AfterStage int
	Cutoff     float64
	Stages     []StageSpec
}

// Config is the full cascade configuration.
type Config struct {
	Stages                 []StageSpec
	Enhanced               *Enhanced
	QualificationThreshold float64
	Scoring                scoring.Config
	CacheCapacity          int
	Limiter                throttle.Config
}

// Validate checks the configuration. Every problem is a domain.ConfigError.
func (c Config) Validate() error {
	if len(c.Stages) == 0 {
		return domain.NewConfigError("stages", "at least one stage is required")
	}

	ids := make(map[string]bool)
	for i, s := range c.Stages {
		if err := s.validate(fmt.Sprintf("stages[%d]", i), ids); err != nil {
			return err
		}
	}

	if c.Enhanced != nil {
		e := c.Enhanced
		switch {
		case e.AfterStage < 1 || e.AfterStage > len(c.Stages):
			return domain.NewConfigError("enhanced.after_stage", "must be in [1, %d], got %d", len(c.Stages), e.AfterStage)
		case e.Cutoff < scoring.MinScore || e.Cutoff > scoring.MaxScore:
			return domain.NewConfigError("enhanced.cutoff", "must be in [0, 100], got %v", e.Cutoff)
		case len(e.Stages) == 0:
			return domain.NewConfigError("enhanced.stages", "at least one stage is required")
		}
		for i, s := range e.Stages {
			if err := s.validate(fmt.Sprintf("enhanced.stages[%d]", i), ids); err != nil {
				return err
			}
		}
	}

	if c.QualificationThreshold < scoring.MinScore || c.QualificationThreshold > scoring.MaxScore {
		return domain.NewConfigError("qualification_threshold", "must be in [0, 100], got %v", c.QualificationThreshold)
	}
	if c.CacheCapacity < 0 {
		return domain.NewConfigError("cache.capacity", "must be >= 1, got %d", c.CacheCapacity)
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	return c.Limiter.Validate()
}

func (s StageSpec) validate(field string, ids map[string]bool) error {
	switch {
	case s.ID == "":
		return domain.NewConfigError(field+".id", "is required")
	case ids[s.ID]:
		return domain.NewConfigError(field+".id", "duplicate stage id %q", s.ID)
	case s.Dependency == "":
		return domain.NewConfigError(field+".dependency", "is required")
	case s.CallsPerSecond <= 0:
		return domain.NewConfigError(field+".calls_per_second", "must be > 0, got %v", s.CallsPerSecond)
	case s.Concurrency <= 0:
		return domain.NewConfigError(field+".concurrency", "must be > 0, got %d", s.Concurrency)
	case s.RetryCount < 0:
		return domain.NewConfigError(field+".retry_count", "must be >= 0, got %d", s.RetryCount)
	case s.Timeout < 0:
		return domain.NewConfigError(field+".timeout", "must be >= 0, got %v", s.Timeout)
	case s.MinAdvanceThreshold < scoring.MinScore || s.MinAdvanceThreshold > scoring.MaxScore:
		return domain.NewConfigError(field+".min_advance_threshold", "must be in [0, 100], got %v", s.MinAdvanceThreshold)
	}
	ids[s.ID] = true
	return nil
}

func (s StageSpec) category() string {
	if s.Category != "" {
		return s.Category
	}
	return s.ID
}

// allStages returns main stages followed by enhanced stages.
func (c Config) allStages() []StageSpec {
	out := append([]StageSpec(nil), c.Stages...)
	if c.Enhanced != nil {
		out = append(out, c.Enhanced.Stages...)
	}
	return out
}
