// Package scoring turns a candidate's signals into a 0-100 score and a
// priority tier using a declarative weight/cap table.
package scoring

import (
	"github.com/vietddude/cascade/internal/core/domain"
)

const (
	MinScore = 0.0
	MaxScore = 100.0
)

// Category weights and caps one signal category.
type Category struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
	// Cap is the most this category can contribute to the total.
	Cap float64 `yaml:"cap"`
}

// TierRule assigns Tier when both the score and the ancillary value reach
// their minimums.
type TierRule struct {
	Tier     domain.Tier `yaml:"tier"`
	MinScore float64     `yaml:"min_score"`
	MinValue float64     `yaml:"min_value"`
}

// Config is the weight/cap table plus the ordered tier rules.
type Config struct {
	Categories   []Category  `yaml:"categories"`
	Tiers        []TierRule  `yaml:"tiers"`
	FallbackTier domain.Tier `yaml:"fallback_tier"`
}

// DefaultConfig returns the standard lead-qualification table. Caps sum to 100.
func DefaultConfig() Config {
	return Config{
		Categories: []Category{
			{Name: "tech-cost", Weight: 1, Cap: 40},
			{Name: "financial", Weight: 1, Cap: 25},
			{Name: "performance", Weight: 1, Cap: 15},
			{Name: "ad-spend", Weight: 1, Cap: 10},
			{Name: "authority", Weight: 1, Cap: 10},
		},
		Tiers: []TierRule{
			{Tier: domain.TierImmediate, MinScore: 90, MinValue: 50000},
			{Tier: domain.TierHigh, MinScore: 75},
			{Tier: domain.TierMedium, MinScore: 60},
		},
		FallbackTier: domain.TierLow,
	}
}

// Validate checks the table.
func (c Config) Validate() error {
	if len(c.Categories) == 0 {
		return domain.NewConfigError("scoring.categories", "at least one category is required")
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		switch {
		case cat.Name == "":
			return domain.NewConfigError("scoring.categories", "category name is required")
		case seen[cat.Name]:
			return domain.NewConfigError("scoring.categories", "duplicate category %q", cat.Name)
		case cat.Weight < 0:
			return domain.NewConfigError("scoring.categories."+cat.Name+".weight", "must be >= 0, got %v", cat.Weight)
		case cat.Cap <= 0:
			return domain.NewConfigError("scoring.categories."+cat.Name+".cap", "must be > 0, got %v", cat.Cap)
		}
		seen[cat.Name] = true
	}
	for _, rule := range c.Tiers {
		if rule.Tier == "" {
			return domain.NewConfigError("scoring.tiers", "tier name is required")
		}
	}
	return nil
}

// Breakdown is the result of scoring one signal set.
type Breakdown struct {
	Score float64
	Tier  domain.Tier
	// Value is the sum of the signals' ancillary values.
	Value float64
	// Categories holds the capped contribution of each configured category.
	Categories map[string]float64
}

// Scorer is a pure function of its configuration and input signals.
type Scorer struct {
	categories   map[string]Category
	order        []string // configured category order, Score sums in it
	tiers        []TierRule
	fallbackTier domain.Tier
}

// NewScorer validates cfg and builds a scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scorer{
		categories:   make(map[string]Category, len(cfg.Categories)),
		tiers:        append([]TierRule(nil), cfg.Tiers...),
		fallbackTier: cfg.FallbackTier,
	}
	if s.fallbackTier == "" {
		s.fallbackTier = domain.TierLow
	}
	for _, cat := range cfg.Categories {
		s.categories[cat.Name] = cat
		s.order = append(s.order, cat.Name)
	}
	return s, nil
}

// Score computes the composite score and tier.
//
//	category = min(sum(points) × weight, cap)
//	score    = clamp(sum(category), 0, 100)
//
// Signals in unknown categories count towards Value but not the score.
func (s *Scorer) Score(signals []domain.Signal) Breakdown {
	raw := make(map[string]float64, len(s.categories))
	value := 0.0
	for _, sig := range signals {
		value += sig.Value
		if _, ok := s.categories[sig.Category]; ok {
			raw[sig.Category] += sig.Points
		}
	}

	contrib := make(map[string]float64, len(raw))
	total := 0.0
	for _, name := range s.order {
		points, ok := raw[name]
		if !ok {
			continue
		}
		cat := s.categories[name]
		c := min(points*cat.Weight, cat.Cap)
		contrib[name] = c
		total += c
	}
	total = clamp(total, MinScore, MaxScore)

	return Breakdown{
		Score:      total,
		Tier:       s.tier(total, value),
		Value:      value,
		Categories: contrib,
	}
}

// Partial returns only the score, for threshold checks between stages.
func (s *Scorer) Partial(signals []domain.Signal) float64 {
	return s.Score(signals).Score
}

// tier returns the first rule both score and value satisfy.
func (s *Scorer) tier(score, value float64) domain.Tier {
	for _, rule := range s.tiers {
		if score >= rule.MinScore && value >= rule.MinValue {
			return rule.Tier
		}
	}
	return s.fallbackTier
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
