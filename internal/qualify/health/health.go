// Package health provides qualification health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// DependencyHealth contains pacing health for one external dependency.
type DependencyHealth struct {
	Dependency        string        `json:"dependency"`
	Status            SystemStatus  `json:"status"`
	CurrentInterval   time.Duration `json:"current_interval"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	ErrorRate         float64       `json:"error_rate"`
}

// RunHealth summarizes the most recent qualification run.
type RunHealth struct {
	RunID            string        `json:"run_id"`
	Status           SystemStatus  `json:"status"`
	Total            int           `json:"total"`
	Qualified        int           `json:"qualified"`
	Aborted          int           `json:"aborted"`
	ProviderFailures int           `json:"provider_failures"`
	CacheHitRate     float64       `json:"cache_hit_rate"`
	Duration         time.Duration `json:"duration"`
	FinishedAt       time.Time     `json:"finished_at"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus                `json:"system_status"`
	Runs         int                         `json:"runs"`
	LastRun      *RunHealth                  `json:"last_run,omitempty"`
	Dependencies map[string]DependencyHealth `json:"dependencies"`
}

// worst returns the more severe of two statuses.
func worst(a, b SystemStatus) SystemStatus {
	rank := func(s SystemStatus) int {
		switch s {
		case StatusCritical:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
