// Package recovery classifies provider failures and decides whether a failed
// call is worth another attempt.
package recovery

import (
	"context"
	"errors"
	"strings"

	"github.com/vietddude/cascade/internal/core/domain"
)

// FailureCategory groups provider failures by how they should be handled.
type FailureCategory int

const (
	CategoryTransient FailureCategory = iota // retry with backoff
	CategoryPermanent                        // eliminate immediately
	CategoryCancelled                        // run-level cancellation, not the provider's fault
)

func (c FailureCategory) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classifier maps an error to a failure category.
type Classifier func(err error) FailureCategory

// Classify is the default classifier.
//
// Explicitly wrapped errors (domain.Transient / domain.Permanent) win. A
// provider call hitting its own deadline is transient. Anything else falls
// back to message heuristics, defaulting to transient.
func Classify(err error) FailureCategory {
	switch {
	case err == nil:
		return CategoryTransient
	case errors.Is(err, domain.ErrPermanent):
		return CategoryPermanent
	case errors.Is(err, domain.ErrTransient):
		return CategoryTransient
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	case errors.Is(err, context.Canceled):
		return CategoryCancelled
	}

	s := strings.ToLower(err.Error())

	// Input problems do not go away on retry
	for _, marker := range []string{
		"400", "bad request", "404", "not found", "410", "gone", "422",
		"invalid", "malformed", "unsupported", "no such host",
	} {
		if strings.Contains(s, marker) {
			return CategoryPermanent
		}
	}

	// Network, 429, 5xx, etc
	return CategoryTransient
}

// Policy decides whether a failed attempt is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	Classifier Classifier
}

// NewPolicy returns a policy using the default classifier when none is given.
func NewPolicy(maxRetries int, classifier Classifier) Policy {
	if classifier == nil {
		classifier = Classify
	}
	return Policy{MaxRetries: maxRetries, Classifier: classifier}
}

// ShouldRetry reports whether attempt (0-indexed) may be followed by another.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	return p.classify(err) == CategoryTransient
}

func (p Policy) classify(err error) FailureCategory {
	if p.Classifier == nil {
		return Classify(err)
	}
	return p.Classifier(err)
}
