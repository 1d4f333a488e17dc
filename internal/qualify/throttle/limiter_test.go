package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/cascade/internal/core/domain"
)

func newLimiter(t *testing.T, cfg Config) *Limiter {
	t.Helper()
	l, err := NewLimiter(cfg)
	if err != nil {
		t.Fatalf("NewLimiter failed: %v", err)
	}
	return l
}

func TestInterval_Base(t *testing.T) {
	l := newLimiter(t, DefaultConfig())
	l.Register("whois", 10)

	if got := l.Interval("whois"); got != 100*time.Millisecond {
		t.Errorf("Interval = %v, want 100ms", got)
	}

	// Unregistered dependencies fall back to the default rate.
	if got := l.Interval("unknown"); got != time.Second {
		t.Errorf("Interval(unknown) = %v, want 1s", got)
	}

	// Rates faster than the hard minimum are clamped.
	l.Register("fast", 10000)
	if got := l.Interval("fast"); got != HardMinInterval {
		t.Errorf("Interval(fast) = %v, want %v", got, HardMinInterval)
	}
}

func TestInterval_Backoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackoffBase = 2
	cfg.MaxBackoffMultiplier = 8

	l := newLimiter(t, cfg)
	l.Register("ads", 10)

	tests := []struct {
		name   string
		errors int
		want   time.Duration
	}{
		{name: "one error", errors: 1, want: 200 * time.Millisecond},
		{name: "two errors", errors: 2, want: 400 * time.Millisecond},
		{name: "three errors", errors: 3, want: 800 * time.Millisecond},
		{name: "capped", errors: 6, want: 800 * time.Millisecond},
	}

	recorded := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for recorded < tt.errors {
				l.RecordError("ads")
				recorded++
			}
			if got := l.Interval("ads"); got != tt.want {
				t.Errorf("Interval after %d errors = %v, want %v", tt.errors, got, tt.want)
			}
		})
	}
}

func TestInterval_BackoffMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackoffBase = 1.5
	cfg.MaxBackoffMultiplier = 20

	l := newLimiter(t, cfg)
	l.Register("perf", 4)

	base := l.Interval("perf")
	prev := base
	for k := 1; k <= 20; k++ {
		l.RecordError("perf")
		got := l.Interval("perf")
		if got < prev {
			t.Fatalf("interval decreased at k=%d: %v < %v", k, got, prev)
		}
		if limit := time.Duration(float64(base) * cfg.MaxBackoffMultiplier); got > limit {
			t.Fatalf("interval %v exceeds cap %v at k=%d", got, limit, k)
		}
		prev = got
	}
}

func TestInterval_Acceleration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AccelerationThreshold = 3
	cfg.AccelerationFactor = 0.5
	cfg.MinInterval = 20 * time.Millisecond

	l := newLimiter(t, cfg)
	l.Register("tech", 10) // 100ms

	for i := 0; i < 3; i++ {
		l.RecordSuccess("tech")
	}
	if got := l.Interval("tech"); got != 100*time.Millisecond {
		t.Errorf("streak at threshold should not accelerate, got %v", got)
	}

	l.RecordSuccess("tech")
	got := l.Interval("tech")
	if got >= 100*time.Millisecond {
		t.Errorf("expected interval below base after streak, got %v", got)
	}
	if got != 50*time.Millisecond {
		t.Errorf("Interval = %v, want 50ms", got)
	}
}

func TestInterval_AccelerationFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AccelerationThreshold = 0
	cfg.AccelerationFactor = 0.1
	cfg.MinInterval = 40 * time.Millisecond

	l := newLimiter(t, cfg)
	l.Register("tech", 10) // 100ms × 0.1 = 10ms, floored at 40ms

	l.RecordSuccess("tech")
	if got := l.Interval("tech"); got != 40*time.Millisecond {
		t.Errorf("Interval = %v, want floor 40ms", got)
	}
}

func TestRecord_StateIsMutuallyExclusive(t *testing.T) {
	l := newLimiter(t, DefaultConfig())
	l.Register("dep", 10)

	l.RecordSuccess("dep")
	l.RecordSuccess("dep")
	l.RecordError("dep")

	s := l.Stats()["dep"]
	if s.ConsecutiveErrors != 1 || s.SuccessStreak != 0 {
		t.Errorf("after error: errors=%d streak=%d", s.ConsecutiveErrors, s.SuccessStreak)
	}

	l.RecordSuccess("dep")
	s = l.Stats()["dep"]
	if s.ConsecutiveErrors != 0 || s.SuccessStreak != 1 {
		t.Errorf("after success: errors=%d streak=%d", s.ConsecutiveErrors, s.SuccessStreak)
	}
	if s.TotalErrors != 1 {
		t.Errorf("expected 1 total error, got %d", s.TotalErrors)
	}
}

func TestDependencies_AreIndependent(t *testing.T) {
	l := newLimiter(t, DefaultConfig())
	l.Register("a", 10)
	l.Register("b", 10)

	l.RecordError("a")
	l.RecordError("a")

	if got := l.Interval("b"); got != 100*time.Millisecond {
		t.Errorf("errors on a changed b's interval to %v", got)
	}
	if got := l.Interval("a"); got != 400*time.Millisecond {
		t.Errorf("Interval(a) = %v, want 400ms", got)
	}
}

func TestWait_FirstCallImmediate(t *testing.T) {
	l := newLimiter(t, DefaultConfig())
	l.Register("slow", 0.1) // 10s interval

	start := time.Now()
	if err := l.Wait(context.Background(), "slow"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("first Wait took %v, expected immediate", elapsed)
	}
}

func TestWait_AppliesBackoff(t *testing.T) {
	l := newLimiter(t, DefaultConfig())
	l.Register("dep", 50) // 20ms base

	ctx := context.Background()
	if err := l.Wait(ctx, "dep"); err != nil {
		t.Fatal(err)
	}
	l.RecordError("dep")
	l.RecordError("dep") // 20ms × 2² = 80ms

	start := time.Now()
	if err := l.Wait(ctx, "dep"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Errorf("second Wait took %v, want >= ~80ms", elapsed)
	}
}

func TestWait_ConcurrentCallersKeepSpacing(t *testing.T) {
	l := newLimiter(t, DefaultConfig())
	l.Register("dep", 50) // 20ms

	const callers = 5
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		times []time.Time
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(context.Background(), "dep"); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	first, last := times[0], times[0]
	for _, ts := range times {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	// Five calls need at least four full intervals between first and last.
	if spread := last.Sub(first); spread < 70*time.Millisecond {
		t.Errorf("calls spread over %v, want >= ~80ms", spread)
	}
}

func TestWait_Cancelled(t *testing.T) {
	l := newLimiter(t, DefaultConfig())
	l.Register("dep", 0.5) // 2s

	if err := l.Wait(context.Background(), "dep"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Wait(ctx, "dep")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled Wait took %v", elapsed)
	}
}

func TestWait_CancelledReleasesSlot(t *testing.T) {
	l := newLimiter(t, DefaultConfig())
	l.Register("dep", 5) // 200ms

	if err := l.Wait(context.Background(), "dep"); err != nil {
		t.Fatal(err)
	}

	// Reserves the slot at +200ms, then gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "dep"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if got := l.Stats()["dep"].TotalCalls; got != 1 {
		t.Errorf("TotalCalls = %d, want 1 (abandoned slot not counted)", got)
	}

	// The next caller takes the released +200ms slot, not +400ms.
	start := time.Now()
	if err := l.Wait(context.Background(), "dep"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("Wait took %v, abandoned slot still reserved", elapsed)
	}
}

func TestReset(t *testing.T) {
	l := newLimiter(t, DefaultConfig())
	l.Register("dep", 10)
	l.RecordError("dep")
	_ = l.Wait(context.Background(), "dep")

	l.Reset()

	s := l.Stats()["dep"]
	if s.ConsecutiveErrors != 0 || s.TotalCalls != 0 || s.TotalErrors != 0 {
		t.Errorf("expected cleared state, got %+v", s)
	}
	if s.BaseInterval != 100*time.Millisecond {
		t.Errorf("Reset should keep base interval, got %v", s.BaseInterval)
	}

	start := time.Now()
	_ = l.Wait(context.Background(), "dep")
	if time.Since(start) > 50*time.Millisecond {
		t.Error("first Wait after Reset should be immediate")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "backoff base below one", mutate: func(c *Config) { c.BackoffBase = 0.5 }},
		{name: "max multiplier below one", mutate: func(c *Config) { c.MaxBackoffMultiplier = 0 }},
		{name: "acceleration factor one", mutate: func(c *Config) { c.AccelerationFactor = 1 }},
		{name: "acceleration factor zero", mutate: func(c *Config) { c.AccelerationFactor = 0 }},
		{name: "negative threshold", mutate: func(c *Config) { c.AccelerationThreshold = -1 }},
		{name: "negative global rate", mutate: func(c *Config) { c.GlobalCallsPerSecond = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewLimiter(cfg)
			if !domain.IsConfigError(err) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
