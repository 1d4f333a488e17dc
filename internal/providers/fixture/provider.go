// Package fixture serves precomputed signals from a YAML file. It backs
// offline runs, demos and tests.
package fixture

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/cascade/internal/core/domain"
)

// Entry is one precomputed signal.
type Entry struct {
	Points     float64           `yaml:"points"`
	Value      float64           `yaml:"value"`
	Category   string            `yaml:"category"`
	Attributes map[string]string `yaml:"attributes"`
}

// File is the fixture document:
//
//	signals:
//	  acme.com:
//	    tech-cost: {points: 30, value: 12000}
//	fail_transient:
//	  flaky.com: 2      # fail twice, then succeed
//	fail_permanent: [broken.com]
type File struct {
	Signals       map[string]map[string]Entry `yaml:"signals"`
	FailTransient map[string]int              `yaml:"fail_transient"`
	FailPermanent []string                    `yaml:"fail_permanent"`
}

// Load reads and parses a fixture file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse parses fixture YAML. Candidate keys are normalized.
func Parse(data []byte) (*File, error) {
	var raw File
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	f := &File{
		Signals:       make(map[string]map[string]Entry, len(raw.Signals)),
		FailTransient: make(map[string]int, len(raw.FailTransient)),
	}
	for key, stages := range raw.Signals {
		f.Signals[domain.NormalizeKey(key)] = stages
	}
	for key, n := range raw.FailTransient {
		f.FailTransient[domain.NormalizeKey(key)] = n
	}
	for _, key := range raw.FailPermanent {
		f.FailPermanent = append(f.FailPermanent, domain.NormalizeKey(key))
	}
	return f, nil
}

// Provider returns the fixture signal for one stage.
type Provider struct {
	stage string
	file  *File
	delay time.Duration

	mu       sync.Mutex
	failures map[string]int
}

// Option configures a Provider.
type Option func(*Provider)

// WithDelay simulates provider latency. The delay honors the call deadline.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) { p.delay = d }
}

// New creates a provider serving stage from file.
func New(stage string, file *File, opts ...Option) *Provider {
	p := &Provider{
		stage:    stage,
		file:     file,
		failures: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetch implements domain.SignalProvider.
func (p *Provider) Fetch(ctx context.Context, key string) (domain.Signal, error) {
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.Signal{}, ctx.Err()
		case <-timer.C:
		}
	}

	if slices.Contains(p.file.FailPermanent, key) {
		return domain.Signal{}, domain.Permanent(fmt.Errorf("fixture: %s marked as failing", key))
	}
	if p.failTransient(key) {
		return domain.Signal{}, domain.Transient(fmt.Errorf("fixture: simulated outage for %s", key))
	}

	entry, ok := p.file.Signals[key][p.stage]
	if !ok {
		return domain.Signal{}, domain.Permanent(fmt.Errorf("fixture: no %s signal for %s", p.stage, key))
	}

	return domain.Signal{
		Stage:      p.stage,
		Category:   entry.Category,
		Points:     entry.Points,
		Value:      entry.Value,
		Attributes: entry.Attributes,
		Source:     "fixture",
	}, nil
}

// failTransient reports whether this call should fail, counting down the
// configured failures per key.
func (p *Provider) failTransient(key string) bool {
	limit := p.file.FailTransient[key]
	if limit == 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures[key] >= limit {
		return false
	}
	p.failures[key]++
	return true
}
