// Package providers maps provider names used in configuration to
// SignalProvider implementations.
package providers

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vietddude/cascade/internal/core/domain"
	"github.com/vietddude/cascade/internal/providers/fixture"
	"github.com/vietddude/cascade/internal/providers/httpprobe"
)

// Spec identifies the provider for one stage.
type Spec struct {
	Stage   string
	Name    string
	Options map[string]string
}

// Factory builds a provider from its spec.
type Factory func(spec Spec) (domain.SignalProvider, error)

// Registry holds the known provider factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry with the built-in providers.
func Default() *Registry {
	r := NewRegistry()
	r.Register("fixture", newFixture())
	r.Register("httpprobe", newHTTPProbe)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names lists registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build creates the provider for spec.
func (r *Registry) Build(spec Spec) (domain.SignalProvider, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewConfigError("stages."+spec.Stage+".provider", "unknown provider %q (known: %v)", spec.Name, r.Names())
	}
	return f(spec)
}

// newFixture shares parsed fixture files between stages.
func newFixture() Factory {
	var (
		mu    sync.Mutex
		files = make(map[string]*fixture.File)
	)
	return func(spec Spec) (domain.SignalProvider, error) {
		path := spec.Options["file"]
		if path == "" {
			return nil, domain.NewConfigError("stages."+spec.Stage+".options.file", "is required for the fixture provider")
		}

		mu.Lock()
		f, ok := files[path]
		if !ok {
			var err error
			if f, err = fixture.Load(path); err != nil {
				mu.Unlock()
				return nil, domain.NewConfigError("stages."+spec.Stage+".options.file", "%v", err)
			}
			files[path] = f
		}
		mu.Unlock()

		var opts []fixture.Option
		if raw := spec.Options["delay"]; raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, domain.NewConfigError("stages."+spec.Stage+".options.delay", "%v", err)
			}
			opts = append(opts, fixture.WithDelay(d))
		}
		return fixture.New(spec.Stage, f, opts...), nil
	}
}

func newHTTPProbe(spec Spec) (domain.SignalProvider, error) {
	var opts []httpprobe.Option
	if scheme := spec.Options["scheme"]; scheme != "" {
		opts = append(opts, httpprobe.WithScheme(scheme))
	}

	tripAfter := uint32(5)
	if raw := spec.Options["trip_after"]; raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, domain.NewConfigError("stages."+spec.Stage+".options.trip_after", "%v", err)
		}
		tripAfter = uint32(n)
	}

	cooldown := 30 * time.Second
	if raw := spec.Options["cooldown"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, domain.NewConfigError("stages."+spec.Stage+".options.cooldown", "%v", err)
		}
		cooldown = d
	}

	return httpprobe.New(spec.Stage, tripAfter, cooldown, opts...), nil
}
