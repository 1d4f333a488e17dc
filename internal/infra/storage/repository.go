package storage

import (
	"context"
	"errors"
)

// CandidateStatus is the processing state of a queued candidate.
type CandidateStatus string

const (
	StatusPending    CandidateStatus = "pending"
	StatusQualified  CandidateStatus = "qualified"
	StatusEliminated CandidateStatus = "eliminated"
)

var (
	// ErrInvalidStatus is returned for an unknown candidate status
	ErrInvalidStatus = errors.New("invalid candidate status")
)

// Valid reports whether s is a known status.
func (s CandidateStatus) Valid() bool {
	switch s {
	case StatusPending, StatusQualified, StatusEliminated:
		return true
	}
	return false
}

// CandidateSource supplies candidate keys to qualify
type CandidateSource interface {
	// List returns up to limit pending keys, oldest first. limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]string, error)
}

// CandidateRepository handles the candidate input queue
type CandidateRepository interface {
	CandidateSource

	// Add enqueues keys as pending, ignoring keys already present
	Add(ctx context.Context, keys []string) (int, error)

	// MarkProcessed sets the status of the given keys
	MarkProcessed(ctx context.Context, keys []string, status CandidateStatus) error

	// CountByStatus returns the number of candidates per status
	CountByStatus(ctx context.Context) (map[CandidateStatus]int, error)
}
