// Package stage runs one enrichment stage over a batch of candidates with
// bounded concurrency, caching, pacing and retries.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vietddude/cascade/internal/core/domain"
	"github.com/vietddude/cascade/internal/qualify/cache"
	"github.com/vietddude/cascade/internal/qualify/metrics"
	"github.com/vietddude/cascade/internal/qualify/recovery"
	"github.com/vietddude/cascade/internal/qualify/throttle"
)

// errAborted marks a fetch stopped by its caller's context rather than by the provider.
var errAborted = errors.New("fetch aborted")

// Stage describes one enrichment step.
type Stage struct {
	ID string
	// Index is the 1-based position of the stage in the cascade.
	Index      int
	Dependency string
	// Category is stamped on signals whose provider leaves it empty.
	Category         string
	Provider         domain.SignalProvider
	ConcurrencyLimit int
	RetryCount       int
	// Timeout bounds a single provider call. Zero means only the run context applies.
	Timeout time.Duration
}

// CacheKey returns the cache key for a candidate in this stage.
func (s Stage) CacheKey(key string) string {
	return s.ID + ":" + key
}

// SignalStore is a second-level signal cache consulted on an LRU miss.
type SignalStore interface {
	Get(ctx context.Context, key string) (domain.Signal, bool, error)
	Set(ctx context.Context, key string, sig domain.Signal) error
}

// Runner executes stages. A Runner is safe for concurrent use and is
// normally shared by every stage of a run so they share cache and limiter.
type Runner struct {
	cache      *cache.Cache[string, domain.Signal]
	limiter    *throttle.Limiter
	store      SignalStore
	classifier recovery.Classifier
	log        *slog.Logger

	group singleflight.Group
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore adds a second-level signal store.
func WithStore(store SignalStore) Option {
	return func(r *Runner) { r.store = store }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithClassifier replaces the default failure classifier.
func WithClassifier(c recovery.Classifier) Option {
	return func(r *Runner) { r.classifier = c }
}

// NewRunner creates a runner on top of a shared cache and limiter.
func NewRunner(c *cache.Cache[string, domain.Signal], limiter *throttle.Limiter, opts ...Option) *Runner {
	r := &Runner{
		cache:      c,
		limiter:    limiter,
		classifier: recovery.Classify,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes st for every candidate and returns one StageResult per
// completed candidate, keyed by candidate key.
//
// A failing candidate never affects its siblings. When ctx is cancelled no
// new provider calls are started, candidates that did not complete are
// absent from the map, and ctx.Err() is returned with the partial map.
func (r *Runner) Run(ctx context.Context, st Stage, candidates []*domain.Candidate) (map[string]domain.StageResult, error) {
	if st.Provider == nil {
		return nil, domain.NewConfigError("stages."+st.ID+".provider", "no provider configured")
	}

	start := time.Now()
	results := make(map[string]domain.StageResult, len(candidates))
	var mu sync.Mutex

	// Plain Group: per-candidate failures are results, not group errors.
	var g errgroup.Group
	g.SetLimit(max(st.ConcurrencyLimit, 1))

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, ok := r.runOne(ctx, st, c.Key)
			if !ok {
				return nil
			}
			mu.Lock()
			results[c.Key] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.log.Debug("Stage finished",
		"stage", st.ID,
		"index", st.Index,
		"candidates", len(candidates),
		"completed", len(results),
		"duration", time.Since(start),
	)

	return results, ctx.Err()
}

// runOne returns false when the candidate was aborted by run cancellation.
func (r *Runner) runOne(ctx context.Context, st Stage, key string) (domain.StageResult, bool) {
	cacheKey := st.CacheKey(key)

	if sig, ok := r.cache.Get(cacheKey); ok {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return domain.Advanced(st.ID, st.Index, sig), true
	}
	metrics.CacheRequests.WithLabelValues("miss").Inc()

	v, err, _ := r.group.Do(cacheKey, func() (any, error) {
		return r.fetch(ctx, st, key, cacheKey)
	})
	if ctx.Err() != nil {
		return domain.StageResult{}, false
	}
	if errors.Is(err, errAborted) {
		// The shared call belonged to a run that was cancelled; ours is still live.
		v, err = r.fetch(ctx, st, key, cacheKey)
		if ctx.Err() != nil {
			return domain.StageResult{}, false
		}
	}
	if err != nil {
		r.log.Warn("Provider failed",
			"stage", st.ID,
			"dependency", st.Dependency,
			"candidate", key,
			"error", err,
		)
		return domain.Eliminated(st.ID, st.Index, domain.ReasonProviderFailure, err), true
	}
	return domain.Advanced(st.ID, st.Index, v.(domain.Signal)), true
}

func (r *Runner) fetch(ctx context.Context, st Stage, key, cacheKey string) (domain.Signal, error) {
	// A concurrent fetch may have filled the cache while we queued.
	if sig, ok := r.cache.Peek(cacheKey); ok {
		return sig, nil
	}

	if r.store != nil {
		sig, ok, err := r.store.Get(ctx, cacheKey)
		switch {
		case err != nil:
			r.log.Warn("Signal store lookup failed", "key", cacheKey, "error", err)
		case ok:
			metrics.CacheRequests.WithLabelValues("store_hit").Inc()
			r.cache.Set(cacheKey, sig)
			return sig, nil
		}
	}

	policy := recovery.NewPolicy(st.RetryCount, r.classifier)
	for attempt := 0; ; attempt++ {
		if err := r.limiter.Wait(ctx, st.Dependency); err != nil {
			return domain.Signal{}, fmt.Errorf("%w: %w", errAborted, err)
		}

		sig, err := r.call(ctx, st, key)
		if err == nil {
			r.limiter.RecordSuccess(st.Dependency)
			sig = r.normalize(st, sig)
			r.cache.Set(cacheKey, sig)
			if r.store != nil {
				if err := r.store.Set(ctx, cacheKey, sig); err != nil {
					r.log.Warn("Signal store write failed", "key", cacheKey, "error", err)
				}
			}
			return sig, nil
		}

		// Run cancelled mid-call: not the dependency's fault.
		if ctx.Err() != nil {
			return domain.Signal{}, fmt.Errorf("%w: %w", errAborted, ctx.Err())
		}

		r.limiter.RecordError(st.Dependency)
		if !policy.ShouldRetry(err, attempt) {
			return domain.Signal{}, fmt.Errorf("stage %s: %s failed after %d attempt(s): %w", st.ID, key, attempt+1, err)
		}
		r.log.Debug("Retrying provider call",
			"stage", st.ID,
			"candidate", key,
			"attempt", attempt+1,
			"next_interval", r.limiter.Interval(st.Dependency),
			"error", err,
		)
	}
}

func (r *Runner) call(ctx context.Context, st Stage, key string) (domain.Signal, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if st.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, st.Timeout)
	}
	defer cancel()

	start := time.Now()
	sig, err := st.Provider.Fetch(callCtx, key)
	metrics.ProviderLatency.WithLabelValues(st.ID, st.Dependency).Observe(time.Since(start).Seconds())

	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	metrics.ProviderCalls.WithLabelValues(st.ID, st.Dependency, outcome).Inc()

	return sig, err
}

func (r *Runner) normalize(st Stage, sig domain.Signal) domain.Signal {
	sig.Stage = st.ID
	if sig.Category == "" {
		sig.Category = st.Category
	}
	if sig.Source == "" {
		sig.Source = st.Dependency
	}
	if sig.FetchedAt.IsZero() {
		sig.FetchedAt = time.Now()
	}
	return sig
}
