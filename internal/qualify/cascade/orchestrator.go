package cascade

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/cascade/internal/core/domain"
	"github.com/vietddude/cascade/internal/qualify/cache"
	"github.com/vietddude/cascade/internal/qualify/metrics"
	"github.com/vietddude/cascade/internal/qualify/scoring"
	"github.com/vietddude/cascade/internal/qualify/stage"
	"github.com/vietddude/cascade/internal/qualify/throttle"
)

// RunStats summarizes one Qualify call.
type RunStats struct {
	RunID     string `json:"run_id"`
	Total     int    `json:"total"`
	Qualified int    `json:"qualified"`
	// EliminatedByStage counts eliminations per 1-based stage index.
	EliminatedByStage map[int]int `json:"eliminated_by_stage"`
	// Aborted counts candidates left unfinished by cancellation.
	Aborted          int                                 `json:"aborted"`
	ProviderFailures int                                 `json:"provider_failures"`
	Cache            cache.Stats                         `json:"cache"`
	Limiter          map[string]throttle.DependencyStats `json:"limiter"`
	Duration         time.Duration                       `json:"duration"`
}

// Observer is notified after every run.
type Observer func(RunStats)

type options struct {
	cache     *cache.Cache[string, domain.Signal]
	limiter   *throttle.Limiter
	store     stage.SignalStore
	log       *slog.Logger
	observers []Observer
}

// Option configures an Orchestrator.
type Option func(*options)

// WithCache shares an existing cache instead of creating one.
func WithCache(c *cache.Cache[string, domain.Signal]) Option {
	return func(o *options) { o.cache = c }
}

// WithLimiter shares an existing limiter instead of creating one.
func WithLimiter(l *throttle.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithStore adds a second-level signal store behind the LRU.
func WithStore(s stage.SignalStore) Option {
	return func(o *options) { o.store = s }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithObserver registers a callback receiving each run's stats.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observers = append(o.observers, fn) }
}

// Orchestrator is the entry point: it owns the candidates of each run and
// shares cache and limiter across runs.
type Orchestrator struct {
	cfg        Config
	cache      *cache.Cache[string, domain.Signal]
	limiter    *throttle.Limiter
	scorer     *scoring.Scorer
	controller *Controller
	log        *slog.Logger
	observers  []Observer
}

// New validates cfg and wires the cascade. providers maps stage id to its
// SignalProvider; every configured stage needs one.
func New(cfg Config, providers map[string]domain.SignalProvider, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{log: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	if o.cache == nil {
		capacity := cfg.CacheCapacity
		if capacity == 0 {
			capacity = DefaultCacheCapacity
		}
		c, err := cache.New[string, domain.Signal](capacity)
		if err != nil {
			return nil, err
		}
		o.cache = c
	}
	if o.limiter == nil {
		l, err := throttle.NewLimiter(cfg.Limiter)
		if err != nil {
			return nil, err
		}
		o.limiter = l
	}

	scorer, err := scoring.NewScorer(cfg.Scoring)
	if err != nil {
		return nil, err
	}

	// A dependency shared by several stages is paced at the slowest configured rate.
	rates := make(map[string]float64)
	for _, s := range cfg.allStages() {
		if cur, ok := rates[s.Dependency]; !ok || s.CallsPerSecond < cur {
			rates[s.Dependency] = s.CallsPerSecond
		}
	}
	for dep, cps := range rates {
		o.limiter.Register(dep, cps)
	}

	build := func(spec StageSpec, index int) (stage.Stage, error) {
		p, ok := providers[spec.ID]
		if !ok || p == nil {
			return stage.Stage{}, domain.NewConfigError("stages."+spec.ID+".provider", "no provider registered")
		}
		return stage.Stage{
			ID:               spec.ID,
			Index:            index,
			Dependency:       spec.Dependency,
			Category:         spec.category(),
			Provider:         p,
			ConcurrencyLimit: spec.Concurrency,
			RetryCount:       spec.RetryCount,
			Timeout:          spec.Timeout,
		}, nil
	}

	gates := make([]Gate, 0, len(cfg.Stages))
	for i, spec := range cfg.Stages {
		st, err := build(spec, i+1)
		if err != nil {
			return nil, err
		}
		gates = append(gates, Gate{Stage: st, Threshold: spec.MinAdvanceThreshold})
	}

	var branch *Branch
	if e := cfg.Enhanced; e != nil {
		branch = &Branch{AfterStage: e.AfterStage, Cutoff: e.Cutoff}
		for i, spec := range e.Stages {
			st, err := build(spec, len(cfg.Stages)+i+1)
			if err != nil {
				return nil, err
			}
			branch.Stages = append(branch.Stages, st)
		}
	}

	runner := stage.NewRunner(o.cache, o.limiter, stage.WithStore(o.store), stage.WithLogger(o.log))

	return &Orchestrator{
		cfg:        cfg,
		cache:      o.cache,
		limiter:    o.limiter,
		scorer:     scorer,
		controller: NewController(gates, branch, cfg.QualificationThreshold, scorer, runner, o.log),
		log:        o.log,
		observers:  o.observers,
	}, nil
}

// Qualify runs keys through the cascade and returns one Result per distinct
// key in submission order.
//
// Keys are normalized and duplicates collapsed. An empty key yields an
// invalid-candidate elimination at stage 1. When ctx is cancelled, the
// results cover only candidates that reached a terminal state and the context
// error is returned alongside them.
func (o *Orchestrator) Qualify(ctx context.Context, keys []string) ([]domain.Result, RunStats, error) {
	start := time.Now()
	stats := RunStats{
		RunID:             uuid.NewString(),
		EliminatedByStage: make(map[int]int),
	}
	log := o.log.With("run_id", stats.RunID)

	// entries keeps submission order; a nil candidate marks an invalid key.
	type entry struct {
		raw  string
		cand *domain.Candidate
	}
	var (
		entries    []entry
		candidates []*domain.Candidate
		seen       = make(map[string]bool, len(keys))
	)
	for _, raw := range keys {
		key := domain.NormalizeKey(raw)
		if key == "" {
			entries = append(entries, entry{raw: strings.TrimSpace(raw)})
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		cand := domain.NewCandidate(key)
		entries = append(entries, entry{raw: key, cand: cand})
		candidates = append(candidates, cand)
	}
	stats.Total = len(entries)

	log.Info("Qualification run started", "candidates", stats.Total, "stages", len(o.cfg.Stages))

	outcomes, runErr := o.controller.Execute(ctx, candidates)
	byKey := make(map[string]*Outcome, len(outcomes))
	for _, oc := range outcomes {
		byKey[oc.Candidate.Key] = oc
	}

	first := o.cfg.Stages[0].ID
	results := make([]domain.Result, 0, len(entries))
	for _, e := range entries {
		if e.cand == nil {
			res := domain.Result{
				Key:             e.raw,
				Tier:            o.scorer.Score(nil).Tier,
				Signals:         []domain.Signal{},
				EliminatedAt:    1,
				EliminatedStage: first,
				Reason:          domain.ReasonInvalidCandidate,
			}
			results = append(results, res)
			o.record(&stats, res)
			continue
		}

		oc := byKey[e.cand.Key]
		if !oc.State.Terminal() {
			stats.Aborted++
			continue
		}
		res := o.result(oc)
		results = append(results, res)
		o.record(&stats, res)
	}

	stats.Cache = o.cache.Stats()
	stats.Limiter = o.limiter.Stats()
	stats.Duration = time.Since(start)

	status := "completed"
	if runErr != nil {
		status = "aborted"
		log.Warn("Qualification run aborted", "error", runErr, "aborted", stats.Aborted)
	}
	metrics.RunsTotal.WithLabelValues(status).Inc()
	metrics.RunDuration.Observe(stats.Duration.Seconds())

	log.Info("Qualification run finished",
		"total", stats.Total,
		"qualified", stats.Qualified,
		"eliminated", stats.Total-stats.Qualified-stats.Aborted,
		"aborted", stats.Aborted,
		"cache_hit_rate", stats.Cache.HitRate,
		"duration", stats.Duration,
	)

	for _, fn := range o.observers {
		fn(stats)
	}

	return results, stats, runErr
}

// Reset clears the shared cache and limiter state.
func (o *Orchestrator) Reset() {
	o.cache.Clear()
	o.limiter.Reset()
}

// Scorer returns the scorer used for partial and final scores.
func (o *Orchestrator) Scorer() *scoring.Scorer {
	return o.scorer
}

func (o *Orchestrator) result(oc *Outcome) domain.Result {
	signals := oc.Candidate.Signals()
	b := o.scorer.Score(signals)
	res := domain.Result{
		Key:       oc.Candidate.Key,
		Score:     b.Score,
		Tier:      b.Tier,
		Value:     b.Value,
		Qualified: oc.State == StateQualified,
		Signals:   signals,
		Enhanced:  oc.Enhanced,
	}
	if e := oc.Elimination; e != nil {
		res.EliminatedAt = e.StageIndex
		res.EliminatedStage = e.Stage
		res.Reason = e.Reason
	}
	return res
}

func (o *Orchestrator) record(stats *RunStats, res domain.Result) {
	if res.Qualified {
		stats.Qualified++
		metrics.CandidatesQualified.Inc()
		return
	}
	stats.EliminatedByStage[res.EliminatedAt]++
	if res.Reason == domain.ReasonProviderFailure {
		stats.ProviderFailures++
	}
	metrics.CandidatesEliminated.WithLabelValues(strconv.Itoa(res.EliminatedAt), res.Reason).Inc()
}
