// Package throttle paces outbound calls per external dependency, stretching
// the interval after errors and shrinking it after sustained success.
package throttle

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/cascade/internal/qualify/metrics"
)

// DependencyStats is a snapshot of one dependency's pacing state.
type DependencyStats struct {
	Dependency        string        `json:"dependency"`
	BaseInterval      time.Duration `json:"base_interval"`
	CurrentInterval   time.Duration `json:"current_interval"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	SuccessStreak     int           `json:"success_streak"`
	TotalCalls        int64         `json:"total_calls"`
	TotalErrors       int64         `json:"total_errors"`
}

type dependency struct {
	mu   sync.Mutex
	name string
	base time.Duration

	// lastCall is the most recently reserved call slot, possibly in the future.
	lastCall          time.Time
	consecutiveErrors int
	successStreak     int
	totalCalls        int64
	totalErrors       int64
}

// Limiter is the adaptive per-dependency rate limiter. State for one
// dependency never affects another.
type Limiter struct {
	cfg Config

	mu     sync.RWMutex
	deps   map[string]*dependency
	global *rate.Limiter

	now func() time.Time
}

// NewLimiter creates a limiter. The config must be valid.
func NewLimiter(cfg Config) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		cfg:    cfg,
		deps:   make(map[string]*dependency),
		global: newGlobal(cfg.GlobalCallsPerSecond),
		now:    time.Now,
	}, nil
}

func newGlobal(callsPerSecond float64) *rate.Limiter {
	if callsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(callsPerSecond), 1)
}

// Register sets the base rate for a dependency. Registering again replaces
// the base rate and keeps the error/success state.
func (l *Limiter) Register(dep string, callsPerSecond float64) {
	d := l.dependency(dep)

	d.mu.Lock()
	d.base = baseInterval(callsPerSecond)
	interval := d.intervalLocked(l.cfg)
	d.mu.Unlock()

	metrics.LimiterInterval.WithLabelValues(dep).Set(interval.Seconds())
}

// Wait blocks until the caller may call dep. The first call for a dependency
// proceeds immediately. Concurrent callers each reserve their own slot, so
// spacing holds even when they wait in parallel.
func (l *Limiter) Wait(ctx context.Context, dep string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d := l.dependency(dep)

	d.mu.Lock()
	now := l.now()
	prev := d.lastCall
	slot := now
	if !prev.IsZero() {
		if next := prev.Add(d.intervalLocked(l.cfg)); next.After(now) {
			slot = next
		}
	}
	d.lastCall = slot
	d.totalCalls++
	d.mu.Unlock()

	if delay := slot.Sub(now); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			// Give the slot back unless a later caller already queued behind it.
			d.mu.Lock()
			if d.lastCall.Equal(slot) {
				d.lastCall = prev
				d.totalCalls--
			}
			d.mu.Unlock()
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.mu.RLock()
	global := l.global
	l.mu.RUnlock()
	if global != nil {
		return global.Wait(ctx)
	}
	return nil
}

// RecordError notes a failed call: errors grow, the success streak resets.
func (l *Limiter) RecordError(dep string) {
	d := l.dependency(dep)

	d.mu.Lock()
	d.consecutiveErrors++
	d.successStreak = 0
	d.totalErrors++
	interval := d.intervalLocked(l.cfg)
	d.mu.Unlock()

	metrics.LimiterInterval.WithLabelValues(dep).Set(interval.Seconds())
}

// RecordSuccess notes a successful call: errors reset, the streak grows.
func (l *Limiter) RecordSuccess(dep string) {
	d := l.dependency(dep)

	d.mu.Lock()
	d.consecutiveErrors = 0
	d.successStreak++
	interval := d.intervalLocked(l.cfg)
	d.mu.Unlock()

	metrics.LimiterInterval.WithLabelValues(dep).Set(interval.Seconds())
}

// Interval returns the effective minimum interval before the next call to dep.
func (l *Limiter) Interval(dep string) time.Duration {
	d := l.dependency(dep)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.intervalLocked(l.cfg)
}

// Reset clears error/success state and reserved slots for every dependency.
// Registered base rates are kept.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for name, d := range l.deps {
		d.mu.Lock()
		d.lastCall = time.Time{}
		d.consecutiveErrors = 0
		d.successStreak = 0
		d.totalCalls = 0
		d.totalErrors = 0
		metrics.LimiterInterval.WithLabelValues(name).Set(d.base.Seconds())
		d.mu.Unlock()
	}
	l.global = newGlobal(l.cfg.GlobalCallsPerSecond)
}

// Stats returns a snapshot per dependency.
func (l *Limiter) Stats() map[string]DependencyStats {
	l.mu.RLock()
	deps := make([]*dependency, 0, len(l.deps))
	for _, d := range l.deps {
		deps = append(deps, d)
	}
	l.mu.RUnlock()

	out := make(map[string]DependencyStats, len(deps))
	for _, d := range deps {
		d.mu.Lock()
		out[d.name] = DependencyStats{
			Dependency:        d.name,
			BaseInterval:      d.base,
			CurrentInterval:   d.intervalLocked(l.cfg),
			ConsecutiveErrors: d.consecutiveErrors,
			SuccessStreak:     d.successStreak,
			TotalCalls:        d.totalCalls,
			TotalErrors:       d.totalErrors,
		}
		d.mu.Unlock()
	}
	return out
}

func (l *Limiter) dependency(name string) *dependency {
	l.mu.RLock()
	d, ok := l.deps[name]
	l.mu.RUnlock()
	if ok {
		return d
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.deps[name]; ok {
		return d
	}
	d = &dependency{name: name, base: baseInterval(DefaultCallsPerSecond)}
	l.deps[name] = d
	return d
}

// intervalLocked computes the effective interval. Caller holds d.mu.
//
// Algorithm:
//   - errors > 0: base × min(backoffBase^errors, maxMultiplier)
//   - streak > threshold: base × accelerationFactor, clamped to [floor, base]
//   - otherwise: base
func (d *dependency) intervalLocked(cfg Config) time.Duration {
	switch {
	case d.consecutiveErrors > 0:
		mult := math.Min(math.Pow(cfg.BackoffBase, float64(d.consecutiveErrors)), cfg.MaxBackoffMultiplier)
		return time.Duration(float64(d.base) * mult)

	case d.successStreak > cfg.AccelerationThreshold:
		interval := time.Duration(float64(d.base) * cfg.AccelerationFactor)
		if interval < cfg.floor() {
			interval = cfg.floor()
		}
		if interval > d.base {
			interval = d.base
		}
		return interval

	default:
		return d.base
	}
}

// baseInterval converts a rate into a spacing, never below HardMinInterval.
func baseInterval(callsPerSecond float64) time.Duration {
	if callsPerSecond <= 0 {
		callsPerSecond = DefaultCallsPerSecond
	}
	return max(time.Duration(float64(time.Second)/callsPerSecond), HardMinInterval)
}
