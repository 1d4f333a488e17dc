package stage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/cascade/internal/core/domain"
	"github.com/vietddude/cascade/internal/qualify/cache"
	"github.com/vietddude/cascade/internal/qualify/throttle"
)

// =============================================================================
// Mocks
// =============================================================================

type mockProvider struct {
	mu       sync.Mutex
	calls    map[string]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	delay time.Duration
	// failures returns the error for the n-th call (1-based) of key, nil for success.
	failures func(key string, n int) error
	// block makes calls for the key wait until the call context is done.
	block func(key string) bool
}

func newMockProvider() *mockProvider {
	return &mockProvider{calls: make(map[string]int)}
}

func (m *mockProvider) Fetch(ctx context.Context, key string) (domain.Signal, error) {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if cur <= seen || m.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}

	m.mu.Lock()
	m.calls[key]++
	n := m.calls[key]
	m.mu.Unlock()

	if m.block != nil && m.block(key) {
		<-ctx.Done()
		return domain.Signal{}, ctx.Err()
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return domain.Signal{}, ctx.Err()
		}
	}
	if m.failures != nil {
		if err := m.failures(key, n); err != nil {
			return domain.Signal{}, err
		}
	}
	return domain.Signal{Points: 10, Value: 100}, nil
}

func (m *mockProvider) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]domain.Signal
	sets int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]domain.Signal)}
}

func (s *memoryStore) Get(_ context.Context, key string) (domain.Signal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.data[key]
	return sig, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key string, sig domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = sig
	s.sets++
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func newTestRunner(t *testing.T, opts ...Option) (*Runner, *cache.Cache[string, domain.Signal], *throttle.Limiter) {
	t.Helper()
	c, err := cache.New[string, domain.Signal](128)
	if err != nil {
		t.Fatal(err)
	}
	l, err := throttle.NewLimiter(throttle.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	l.Register("dep", 1000) // clamped to the 10ms hard minimum
	return NewRunner(c, l, opts...), c, l
}

func candidates(keys ...string) []*domain.Candidate {
	out := make([]*domain.Candidate, len(keys))
	for i, k := range keys {
		out[i] = domain.NewCandidate(k)
	}
	return out
}

func testStage(p domain.SignalProvider) Stage {
	return Stage{
		ID:               "tech",
		Index:            1,
		Dependency:       "dep",
		Category:         "tech-cost",
		Provider:         p,
		ConcurrencyLimit: 4,
		RetryCount:       2,
		Timeout:          time.Second,
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestRun_AllAdvance(t *testing.T) {
	r, c, _ := newTestRunner(t)
	p := newMockProvider()

	results, err := r.Run(context.Background(), testStage(p), candidates("a.com", "b.com", "c.com"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for key, res := range results {
		if !res.IsAdvanced() {
			t.Errorf("%s: expected advanced, got %s", key, res.Outcome)
			continue
		}
		if res.Signal.Stage != "tech" || res.Signal.Category != "tech-cost" || res.Signal.Source != "dep" {
			t.Errorf("%s: signal not stamped: %+v", key, res.Signal)
		}
		if res.Signal.FetchedAt.IsZero() {
			t.Errorf("%s: FetchedAt not set", key)
		}
		if res.StageIndex != 1 {
			t.Errorf("%s: StageIndex = %d", key, res.StageIndex)
		}
	}
	if c.Len() != 3 {
		t.Errorf("expected 3 cached signals, got %d", c.Len())
	}
}

func TestRun_CacheHitSkipsProviderAndLimiter(t *testing.T) {
	r, c, l := newTestRunner(t)
	p := newMockProvider()
	st := testStage(p)

	c.Set(st.CacheKey("cached.com"), domain.Signal{Stage: "tech", Points: 7})

	results, err := r.Run(context.Background(), st, candidates("cached.com"))
	if err != nil {
		t.Fatal(err)
	}
	if got := results["cached.com"]; !got.IsAdvanced() || got.Signal.Points != 7 {
		t.Errorf("expected cached signal, got %+v", got)
	}
	if p.Calls("cached.com") != 0 {
		t.Errorf("provider called %d times on cache hit", p.Calls("cached.com"))
	}
	if calls := l.Stats()["dep"].TotalCalls; calls != 0 {
		t.Errorf("limiter consulted %d times on cache hit", calls)
	}
}

func TestRun_TransientRetriedThenSucceeds(t *testing.T) {
	r, _, l := newTestRunner(t)
	p := newMockProvider()
	p.failures = func(key string, n int) error {
		if n <= 2 {
			return domain.Transient(errors.New("503 service unavailable"))
		}
		return nil
	}

	results, err := r.Run(context.Background(), testStage(p), candidates("flaky.com"))
	if err != nil {
		t.Fatal(err)
	}
	if !results["flaky.com"].IsAdvanced() {
		t.Fatalf("expected advance after retries, got %+v", results["flaky.com"])
	}
	if got := p.Calls("flaky.com"); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}

	s := l.Stats()["dep"]
	if s.TotalErrors != 2 || s.ConsecutiveErrors != 0 || s.SuccessStreak != 1 {
		t.Errorf("unexpected limiter state %+v", s)
	}
}

func TestRun_PermanentNotRetried(t *testing.T) {
	r, c, _ := newTestRunner(t)
	p := newMockProvider()
	p.failures = func(string, int) error {
		return domain.Permanent(errors.New("unsupported candidate"))
	}
	st := testStage(p)

	results, err := r.Run(context.Background(), st, candidates("bad.com"))
	if err != nil {
		t.Fatal(err)
	}
	res := results["bad.com"]
	if res.Outcome != domain.OutcomeEliminated || res.Reason != domain.ReasonProviderFailure {
		t.Fatalf("expected provider-failure elimination, got %+v", res)
	}
	if !errors.Is(res.Err, domain.ErrPermanent) {
		t.Errorf("expected permanent error, got %v", res.Err)
	}
	if got := p.Calls("bad.com"); got != 1 {
		t.Errorf("permanent error retried: %d calls", got)
	}
	if _, ok := c.Peek(st.CacheKey("bad.com")); ok {
		t.Error("failed fetch must not be cached")
	}
}

func TestRun_RetriesExhausted(t *testing.T) {
	r, _, _ := newTestRunner(t)
	p := newMockProvider()
	p.failures = func(string, int) error {
		return domain.Transient(errors.New("connection reset"))
	}
	st := testStage(p)
	st.RetryCount = 1

	results, _ := r.Run(context.Background(), st, candidates("down.com"))
	if results["down.com"].Outcome != domain.OutcomeEliminated {
		t.Fatalf("expected elimination, got %+v", results["down.com"])
	}
	if got := p.Calls("down.com"); got != 2 {
		t.Errorf("expected 1 attempt + 1 retry, got %d calls", got)
	}
}

func TestRun_Bulkhead(t *testing.T) {
	r, _, _ := newTestRunner(t)
	p := newMockProvider()
	p.failures = func(key string, _ int) error {
		if key == "bad.com" {
			return domain.Permanent(errors.New("malformed"))
		}
		return nil
	}

	keys := []string{"a.com", "bad.com", "b.com", "c.com", "d.com"}
	results, err := r.Run(context.Background(), testStage(p), candidates(keys...))
	if err != nil {
		t.Fatalf("one failing candidate must not fail the run: %v", err)
	}
	if len(results) != len(keys) {
		t.Fatalf("expected %d results, got %d", len(keys), len(results))
	}
	for _, k := range keys {
		want := k != "bad.com"
		if got := results[k].IsAdvanced(); got != want {
			t.Errorf("%s: advanced = %v, want %v", k, got, want)
		}
	}
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	r, _, _ := newTestRunner(t)
	p := newMockProvider()
	p.delay = 60 * time.Millisecond
	st := testStage(p)
	st.ConcurrencyLimit = 2

	keys := make([]string, 8)
	for i := range keys {
		keys[i] = string(rune('a'+i)) + ".com"
	}
	if _, err := r.Run(context.Background(), st, candidates(keys...)); err != nil {
		t.Fatal(err)
	}
	if got := p.maxSeen.Load(); got > 2 {
		t.Errorf("max in-flight = %d, limit 2", got)
	}
}

func TestRun_TimeoutCountsAsFailure(t *testing.T) {
	r, _, l := newTestRunner(t)
	p := newMockProvider()
	p.block = func(string) bool { return true }
	st := testStage(p)
	st.Timeout = 20 * time.Millisecond
	st.RetryCount = 0

	results, err := r.Run(context.Background(), st, candidates("slow.com"))
	if err != nil {
		t.Fatalf("a call timeout is not a run failure: %v", err)
	}
	res := results["slow.com"]
	if res.Reason != domain.ReasonProviderFailure {
		t.Fatalf("expected provider-failure, got %+v", res)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", res.Err)
	}
	if l.Stats()["dep"].TotalErrors != 1 {
		t.Error("timeout should be recorded against the dependency")
	}
}

func TestRun_CancellationReturnsPartial(t *testing.T) {
	r, _, l := newTestRunner(t)
	p := newMockProvider()
	p.block = func(key string) bool { return key != "fast.com" }
	st := testStage(p)
	st.ConcurrencyLimit = 1
	st.Timeout = 0

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(80*time.Millisecond, cancel)

	results, err := r.Run(ctx, st, candidates("fast.com", "hang.com", "never.com"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) != 1 || !results["fast.com"].IsAdvanced() {
		t.Errorf("expected only fast.com completed, got %v", results)
	}
	if p.Calls("never.com") != 0 {
		t.Error("no new calls should start after cancellation")
	}
	if l.Stats()["dep"].TotalErrors != 0 {
		t.Error("cancellation must not be recorded as a dependency error")
	}
}

func TestRun_SignalStore(t *testing.T) {
	store := newMemoryStore()
	r, c, _ := newTestRunner(t, WithStore(store))
	p := newMockProvider()
	st := testStage(p)

	store.data[st.CacheKey("stored.com")] = domain.Signal{Stage: "tech", Points: 42}

	results, err := r.Run(context.Background(), st, candidates("stored.com", "fresh.com"))
	if err != nil {
		t.Fatal(err)
	}
	if got := results["stored.com"]; !got.IsAdvanced() || got.Signal.Points != 42 {
		t.Errorf("expected stored signal, got %+v", got)
	}
	if p.Calls("stored.com") != 0 {
		t.Error("provider called despite store hit")
	}
	if _, ok := c.Peek(st.CacheKey("stored.com")); !ok {
		t.Error("store hit should populate the LRU")
	}
	if _, ok := store.data[st.CacheKey("fresh.com")]; !ok {
		t.Error("fresh signal should be written to the store")
	}
}

func TestRun_ConcurrentRunsShareFetch(t *testing.T) {
	r, _, _ := newTestRunner(t)
	p := newMockProvider()
	p.delay = 50 * time.Millisecond
	st := testStage(p)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := r.Run(context.Background(), st, candidates("shared.com"))
			if err != nil || !results["shared.com"].IsAdvanced() {
				t.Errorf("run failed: %v %+v", err, results)
			}
		}()
	}
	wg.Wait()

	if got := p.Calls("shared.com"); got != 1 {
		t.Errorf("expected one provider call, got %d", got)
	}
}

func TestRun_NoProvider(t *testing.T) {
	r, _, _ := newTestRunner(t)
	_, err := r.Run(context.Background(), Stage{ID: "x"}, candidates("a.com"))
	if !domain.IsConfigError(err) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}
