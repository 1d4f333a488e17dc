package domain

import (
	"context"
	"maps"
	"time"
)

// Signal is the typed payload one provider produced for one candidate.
type Signal struct {
	Stage    string `json:"stage"`
	Category string `json:"category"`
	// Points is the raw contribution before category weighting and capping.
	Points float64 `json:"points"`
	// Value is an ancillary estimate (e.g. monthly spend in USD) used by tier rules.
	Value      float64           `json:"value"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Source     string            `json:"source,omitempty"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

func (s Signal) clone() Signal {
	if s.Attributes != nil {
		s.Attributes = maps.Clone(s.Attributes)
	}
	return s
}

// SignalProvider produces a signal for a candidate key. Implementations must
// be idempotent and side-effect free from the cascade's point of view, and
// must honor the deadline carried by ctx.
type SignalProvider interface {
	Fetch(ctx context.Context, key string) (Signal, error)
}

// ProviderFunc adapts a function to the SignalProvider interface.
type ProviderFunc func(ctx context.Context, key string) (Signal, error)

// Fetch calls f.
func (f ProviderFunc) Fetch(ctx context.Context, key string) (Signal, error) {
	return f(ctx, key)
}
