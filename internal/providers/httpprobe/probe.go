// Package httpprobe scores a candidate's web performance by timing a GET
// against its home page.
package httpprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vietddude/cascade/internal/core/domain"
)

const (
	Category = "performance"

	// maxBodyBytes is how much of the response is read before timing stops.
	maxBodyBytes = 1 << 20
)

// Band awards Points when the page loads within MaxLatency.
type Band struct {
	MaxLatency time.Duration
	Points     float64
}

// DefaultBands favors slow sites: they have the most to gain from an
// optimization offer.
func DefaultBands() []Band {
	return []Band{
		{MaxLatency: 300 * time.Millisecond, Points: 0},
		{MaxLatency: time.Second, Points: 5},
		{MaxLatency: 3 * time.Second, Points: 10},
	}
}

// SlowPoints is awarded beyond the last band.
const SlowPoints = 15

type probeResult struct {
	status  int
	latency time.Duration
	server  string
}

// Probe is a SignalProvider backed by plain HTTP.
type Probe struct {
	client  *http.Client
	scheme  string
	bands   []Band
	breaker *gobreaker.CircuitBreaker
}

// Option configures a Probe.
type Option func(*Probe)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(p *Probe) { p.client = c }
}

// WithScheme sets the URL scheme (default https).
func WithScheme(scheme string) Option {
	return func(p *Probe) { p.scheme = scheme }
}

// WithBands replaces the latency bands. Bands must be sorted by MaxLatency.
func WithBands(bands []Band) Option {
	return func(p *Probe) { p.bands = bands }
}

// New creates a probe. The breaker opens after tripAfter consecutive
// transport failures (0 disables tripping) and half-opens after cooldown.
func New(name string, tripAfter uint32, cooldown time.Duration, opts ...Option) *Probe {
	p := &Probe{
		client: &http.Client{},
		scheme: "https",
		bands:  DefaultBands(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return tripAfter > 0 && counts.ConsecutiveFailures >= tripAfter
		},
		IsSuccessful: countsAsReachable,
	})
	return p
}

// Fetch implements domain.SignalProvider.
func (p *Probe) Fetch(ctx context.Context, key string) (domain.Signal, error) {
	url := fmt.Sprintf("%s://%s/", p.scheme, key)

	// Only transport failures count against the breaker; HTTP statuses are
	// properties of the candidate, not of our connectivity.
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.get(ctx, url)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return domain.Signal{}, domain.Transient(fmt.Errorf("probe %s: %w", key, err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, domain.ErrPermanent):
		return domain.Signal{}, err
	case err != nil:
		return domain.Signal{}, domain.Transient(fmt.Errorf("probe %s: %w", key, err))
	}

	res := out.(probeResult)
	switch {
	case res.status >= 500:
		return domain.Signal{}, domain.Transient(fmt.Errorf("probe %s: status %d", key, res.status))
	case res.status >= 400:
		return domain.Signal{}, domain.Permanent(fmt.Errorf("probe %s: status %d", key, res.status))
	}

	attrs := map[string]string{
		"status":     strconv.Itoa(res.status),
		"latency_ms": strconv.FormatInt(res.latency.Milliseconds(), 10),
	}
	if res.server != "" {
		attrs["server"] = res.server
	}

	return domain.Signal{
		Category:   Category,
		Points:     p.points(res.latency),
		Attributes: attrs,
		Source:     "httpprobe",
	}, nil
}

// countsAsReachable reports whether err leaves the breaker untouched. Call
// deadlines and cancellation belong to the candidate or the run, and
// permanent errors to the request itself.
func countsAsReachable(err error) bool {
	return err == nil ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, domain.ErrPermanent)
}

func (p *Probe) get(ctx context.Context, url string) (probeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return probeResult{}, domain.Permanent(err)
	}
	req.Header.Set("User-Agent", "cascade-probe/1.0")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return probeResult{}, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes)); err != nil {
		return probeResult{}, err
	}

	return probeResult{
		status:  resp.StatusCode,
		latency: time.Since(start),
		server:  resp.Header.Get("Server"),
	}, nil
}

func (p *Probe) points(latency time.Duration) float64 {
	for _, b := range p.bands {
		if latency <= b.MaxLatency {
			return b.Points
		}
	}
	return SlowPoints
}

// State reports the breaker state, for logging.
func (p *Probe) State() string {
	return p.breaker.State().String()
}
