package providers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vietddude/cascade/internal/core/domain"
	"github.com/vietddude/cascade/internal/providers/httpprobe"
)

func TestRegistry_Build(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signals.yaml")
	if err := os.WriteFile(path, []byte("signals:\n  acme.com:\n    tech: {points: 12}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := Default()

	p, err := r.Build(Spec{Stage: "tech", Name: "fixture", Options: map[string]string{"file": path}})
	if err != nil {
		t.Fatalf("Build fixture failed: %v", err)
	}
	sig, err := p.Fetch(context.Background(), "acme.com")
	if err != nil || sig.Points != 12 {
		t.Errorf("fixture fetch = %+v, %v", sig, err)
	}

	p, err = r.Build(Spec{Stage: "perf", Name: "httpprobe", Options: map[string]string{"trip_after": "3", "cooldown": "5s"}})
	if err != nil {
		t.Fatalf("Build httpprobe failed: %v", err)
	}
	if _, ok := p.(*httpprobe.Probe); !ok {
		t.Errorf("expected *httpprobe.Probe, got %T", p)
	}
}

func TestRegistry_Errors(t *testing.T) {
	r := Default()

	tests := []struct {
		name string
		spec Spec
	}{
		{name: "unknown provider", spec: Spec{Stage: "x", Name: "crystal-ball"}},
		{name: "fixture without file", spec: Spec{Stage: "x", Name: "fixture"}},
		{name: "fixture missing file", spec: Spec{Stage: "x", Name: "fixture", Options: map[string]string{"file": "/nonexistent.yaml"}}},
		{name: "bad trip_after", spec: Spec{Stage: "x", Name: "httpprobe", Options: map[string]string{"trip_after": "many"}}},
		{name: "bad cooldown", spec: Spec{Stage: "x", Name: "httpprobe", Options: map[string]string{"cooldown": "soon"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Build(tt.spec); !domain.IsConfigError(err) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestRegistry_Custom(t *testing.T) {
	r := NewRegistry()
	r.Register("static", func(spec Spec) (domain.SignalProvider, error) {
		return domain.ProviderFunc(func(ctx context.Context, key string) (domain.Signal, error) {
			return domain.Signal{Points: 1}, nil
		}), nil
	})

	if names := r.Names(); len(names) != 1 || names[0] != "static" {
		t.Errorf("Names = %v", names)
	}
	if _, err := r.Build(Spec{Stage: "s", Name: "static"}); err != nil {
		t.Errorf("Build failed: %v", err)
	}
}
