package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vietddude/cascade/internal/core/config"
	"github.com/vietddude/cascade/internal/core/domain"
	redisclient "github.com/vietddude/cascade/internal/infra/redis"
	"github.com/vietddude/cascade/internal/infra/storage"
	"github.com/vietddude/cascade/internal/infra/storage/memory"
	"github.com/vietddude/cascade/internal/infra/storage/postgres"
	"github.com/vietddude/cascade/internal/providers"
	"github.com/vietddude/cascade/internal/qualify/cascade"
	"github.com/vietddude/cascade/internal/qualify/health"
)

// App is the main application struct that wires the cascade to its
// providers, storage and health endpoints.
type App struct {
	cfg          *config.AppConfig
	orchestrator *cascade.Orchestrator
	healthMon    *health.Monitor
	healthServer *health.Server
	repo         storage.CandidateRepository
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewApp creates a new App with all dependencies initialized. Providers are
// resolved by name through registry.
func NewApp(ctx context.Context, cfg *config.AppConfig, registry *providers.Registry) (*App, error) {
	log := slog.Default()

	// 1. Build providers, one per stage
	provs := make(map[string]domain.SignalProvider)
	for _, s := range cfg.AllStages() {
		p, err := registry.Build(providers.Spec{Stage: s.ID, Name: s.Provider, Options: s.Options})
		if err != nil {
			return nil, err
		}
		provs[s.ID] = p
	}

	// 2. Initialize Storage
	var (
		repo storage.CandidateRepository
		db   *postgres.DB
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		repo = postgres.NewCandidateRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		repo = memory.NewMemoryStorage()
		log.Info("Using Memory storage")
	}

	// 3. Initialize Redis signal store
	opts := []cascade.Option{cascade.WithLogger(log)}
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, shared signal store disabled", "error", err)
		} else {
			opts = append(opts, cascade.WithStore(redisclient.NewSignalStore(redisClient)))
			log.Info("Using Redis signal store", "ttl", cfg.Redis.TTL)
		}
	}

	// 4. Initialize Health Monitor
	healthMon := health.NewMonitor()
	opts = append(opts, cascade.WithObserver(healthMon.Observe))

	orch, err := cascade.New(cfg.CascadeConfig(), provs, opts...)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}

	var healthServer *health.Server
	if cfg.Server.Port > 0 {
		healthServer = health.NewServer(healthMon, cfg.Server.Port)
	}

	return &App{
		cfg:          cfg,
		orchestrator: orch,
		healthMon:    healthMon,
		healthServer: healthServer,
		repo:         repo,
		db:           db,
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// Start starts background components. It does not block.
func (a *App) Start(ctx context.Context) error {
	if a.healthServer != nil {
		go func() {
			if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("Health server failed", "error", err)
			}
		}()
		a.log.Info("Health server started", "port", a.cfg.Server.Port)
	}

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}
	return nil
}

// Stop releases every resource held by the app.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping cascade...")

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	if a.healthServer != nil {
		return a.healthServer.Stop(ctx)
	}
	return nil
}

// Qualify runs keys through the cascade.
func (a *App) Qualify(ctx context.Context, keys []string) ([]domain.Result, cascade.RunStats, error) {
	return a.orchestrator.Qualify(ctx, keys)
}

// Enqueue normalizes keys and adds them to the candidate queue.
func (a *App) Enqueue(ctx context.Context, keys []string) (int, error) {
	normalized := make([]string, 0, len(keys))
	for _, k := range keys {
		if n := domain.NormalizeKey(k); n != "" {
			normalized = append(normalized, n)
		}
	}
	return a.repo.Add(ctx, normalized)
}

// QualifyPending qualifies up to limit queued candidates and records the
// outcome of every candidate that finished. Candidates left unfinished by
// cancellation stay pending.
func (a *App) QualifyPending(ctx context.Context, limit int) ([]domain.Result, cascade.RunStats, error) {
	keys, err := a.repo.List(ctx, limit)
	if err != nil {
		return nil, cascade.RunStats{}, fmt.Errorf("failed to list candidates: %w", err)
	}
	if len(keys) == 0 {
		a.log.Info("No pending candidates")
		return nil, cascade.RunStats{}, nil
	}

	results, stats, runErr := a.orchestrator.Qualify(ctx, keys)

	status := make(map[string]storage.CandidateStatus, len(results))
	for _, r := range results {
		if r.Qualified {
			status[r.Key] = storage.StatusQualified
		} else {
			status[r.Key] = storage.StatusEliminated
		}
	}

	byStatus := make(map[storage.CandidateStatus][]string)
	for _, k := range keys {
		// Invalid keys come back under their raw form.
		key := domain.NormalizeKey(k)
		if key == "" {
			key = strings.TrimSpace(k)
		}
		if st, ok := status[key]; ok {
			byStatus[st] = append(byStatus[st], k)
		}
	}

	// Recording uses a fresh context so finished work survives cancellation.
	for st, ks := range byStatus {
		if err := a.repo.MarkProcessed(context.WithoutCancel(ctx), ks, st); err != nil {
			return results, stats, fmt.Errorf("failed to mark %s candidates: %w", st, err)
		}
	}
	return results, stats, runErr
}

// Counts returns the number of queued candidates per status.
func (a *App) Counts(ctx context.Context) (map[storage.CandidateStatus]int, error) {
	return a.repo.CountByStatus(ctx)
}

// Health returns the latest health report.
func (a *App) Health() health.HealthReport {
	return a.healthMon.CheckHealth()
}
