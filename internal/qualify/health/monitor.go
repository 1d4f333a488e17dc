package health

import (
	"sync"
	"time"

	"github.com/vietddude/cascade/internal/qualify/cascade"
	"github.com/vietddude/cascade/internal/qualify/throttle"
)

// Thresholds that map failure ratios and backoff depth to a status.
const (
	DegradedFailureRatio = 0.10
	CriticalFailureRatio = 0.50

	DegradedConsecutiveErrors = 1
	CriticalConsecutiveErrors = 5
)

// Monitor aggregates health status from the stats of finished runs.
type Monitor struct {
	mu      sync.RWMutex
	runs    int
	lastRun *RunHealth
	deps    map[string]DependencyHealth
	now     func() time.Time
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		deps: make(map[string]DependencyHealth),
		now:  time.Now,
	}
}

// Observe records a finished run. It matches cascade.Observer.
func (m *Monitor) Observe(stats cascade.RunStats) {
	run := &RunHealth{
		RunID:            stats.RunID,
		Status:           StatusHealthy,
		Total:            stats.Total,
		Qualified:        stats.Qualified,
		Aborted:          stats.Aborted,
		ProviderFailures: stats.ProviderFailures,
		CacheHitRate:     stats.Cache.HitRate,
		Duration:         stats.Duration,
		FinishedAt:       m.now(),
	}

	if stats.Total > 0 {
		ratio := float64(stats.ProviderFailures) / float64(stats.Total)
		switch {
		case ratio > CriticalFailureRatio:
			run.Status = StatusCritical
		case ratio > DegradedFailureRatio || stats.Aborted > 0:
			run.Status = StatusDegraded
		}
	}

	deps := make(map[string]DependencyHealth, len(stats.Limiter))
	for name, s := range stats.Limiter {
		deps[name] = dependencyHealth(s)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	m.lastRun = run
	m.deps = deps
}

// CheckHealth returns the current report. Before the first run the system
// is reported healthy with no dependencies.
func (m *Monitor) CheckHealth() HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Runs:         m.runs,
		Dependencies: make(map[string]DependencyHealth, len(m.deps)),
	}
	if m.lastRun != nil {
		run := *m.lastRun
		report.LastRun = &run
		report.SystemStatus = worst(report.SystemStatus, run.Status)
	}
	// Worst case wins
	for name, d := range m.deps {
		report.Dependencies[name] = d
		report.SystemStatus = worst(report.SystemStatus, d.Status)
	}
	return report
}

func dependencyHealth(s throttle.DependencyStats) DependencyHealth {
	h := DependencyHealth{
		Dependency:        s.Dependency,
		Status:            StatusHealthy,
		CurrentInterval:   s.CurrentInterval,
		ConsecutiveErrors: s.ConsecutiveErrors,
	}
	if s.BaseInterval > 0 {
		h.BackoffMultiplier = float64(s.CurrentInterval) / float64(s.BaseInterval)
	}
	if s.TotalCalls > 0 {
		h.ErrorRate = float64(s.TotalErrors) / float64(s.TotalCalls)
	}

	if h.ConsecutiveErrors >= CriticalConsecutiveErrors || h.ErrorRate > CriticalFailureRatio {
		h.Status = StatusCritical
	} else if h.ConsecutiveErrors >= DegradedConsecutiveErrors || h.ErrorRate > DegradedFailureRatio {
		h.Status = StatusDegraded
	}
	return h
}
