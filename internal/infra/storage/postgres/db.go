package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"

	"github.com/vietddude/cascade/internal/qualify/metrics"
)

// Pool defaults.
const (
	DefaultMaxConns  = 10
	DefaultIdleConns = 2

	// CollectInterval is how often pool and queue gauges are refreshed.
	CollectInterval = 15 * time.Second
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// pool returns the open and idle connection limits with defaults applied.
func (c Config) pool() (open, idle int) {
	open, idle = c.MaxConns, c.MinConns
	if open <= 0 {
		open = DefaultMaxConns
	}
	if idle <= 0 {
		idle = DefaultIdleConns
	}
	return open, min(idle, open)
}

// DB is the connection pool behind the candidate queue.
type DB struct {
	*sqlx.DB
}

// NewDB opens the pool and pings the server.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	db, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	open, idle := cfg.pool()
	db.SetMaxOpenConns(open)
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: db}, nil
}

// StartMetricsCollector refreshes the pool usage and candidate queue gauges
// every CollectInterval until ctx is done.
func (db *DB) StartMetricsCollector(ctx context.Context) {
	repo := NewCandidateRepo(db)
	go func() {
		ticker := time.NewTicker(CollectInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if usage, ok := poolUsage(db.Stats()); ok {
					metrics.DBConnectionPoolUsage.Set(usage)
				}

				counts, err := repo.CountByStatus(ctx)
				if err != nil {
					slog.Debug("Failed to count queued candidates", "error", err)
					continue
				}
				for status, n := range counts {
					metrics.CandidateQueueSize.WithLabelValues(string(status)).Set(float64(n))
				}
			}
		}
	}()
}

// poolUsage returns open connections as a percentage of the limit. An
// unlimited pool has no usage figure.
func poolUsage(stats sql.DBStats) (float64, bool) {
	if stats.MaxOpenConnections <= 0 {
		return 0, false
	}
	return float64(stats.OpenConnections) / float64(stats.MaxOpenConnections) * 100, true
}

// Health checks if the database is reachable.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}
