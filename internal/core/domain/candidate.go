package domain

import (
	"fmt"
	"strings"
)

// Candidate is the entity being qualified (usually a company domain) together
// with the signals collected for it so far. A Candidate is owned by a single
// Qualify run and is never shared between runs.
type Candidate struct {
	Key     string
	signals []Signal
}

// NewCandidate creates a candidate for the given key.
func NewCandidate(key string) *Candidate {
	return &Candidate{Key: key}
}

// NormalizeKey trims whitespace, drops a URL scheme, path and "www." prefix
// and lower-cases the rest, so "https://www.Acme.com/pricing" becomes "acme.com".
func NormalizeKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(key, "://"); i >= 0 {
		key = key[i+3:]
	}
	if i := strings.IndexAny(key, "/?#"); i >= 0 {
		key = key[:i]
	}
	return strings.TrimPrefix(key, "www.")
}

// Attach adds a signal produced by a stage. At most one signal per stage is
// accepted; attached signals are never modified.
func (c *Candidate) Attach(sig Signal) error {
	for _, s := range c.signals {
		if s.Stage == sig.Stage {
			return fmt.Errorf("%w: candidate %s, stage %s", ErrDuplicateSignal, c.Key, sig.Stage)
		}
	}
	c.signals = append(c.signals, sig.clone())
	return nil
}

// Signals returns a copy of the attached signals in attachment order.
func (c *Candidate) Signals() []Signal {
	out := make([]Signal, len(c.signals))
	for i, s := range c.signals {
		out[i] = s.clone()
	}
	return out
}

// HasSignal reports whether a signal from the given stage is attached.
func (c *Candidate) HasSignal(stage string) bool {
	for _, s := range c.signals {
		if s.Stage == stage {
			return true
		}
	}
	return false
}
