package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/vietddude/cascade/internal/infra/storage"
)

const (
	listPendingSQL = `
SELECT key FROM candidates
WHERE status = $1
ORDER BY created_at, key`

	addCandidatesSQL = `
INSERT INTO candidates (key)
SELECT UNNEST($1::text[])
ON CONFLICT (key) DO NOTHING`

	markProcessedSQL = `
UPDATE candidates
SET status = $1, processed_at = NOW()
WHERE key = ANY($2::text[])`

	countByStatusSQL = `
SELECT status, COUNT(*) AS count FROM candidates
GROUP BY status`
)

// CandidateRepo implements storage.CandidateRepository using PostgreSQL.
type CandidateRepo struct {
	db *DB
}

// NewCandidateRepo creates a new PostgreSQL candidate repository.
func NewCandidateRepo(db *DB) *CandidateRepo {
	return &CandidateRepo{db: db}
}

// List returns pending candidate keys, oldest first.
func (r *CandidateRepo) List(ctx context.Context, limit int) ([]string, error) {
	query, args := listQuery(limit)

	var keys []string
	if err := r.db.SelectContext(ctx, &keys, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return keys, nil
}

// Add enqueues keys as pending and returns how many were new.
func (r *CandidateRepo) Add(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, addCandidatesSQL, pq.Array(keys))
	if err != nil {
		return 0, fmt.Errorf("failed to add candidates: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// MarkProcessed sets the final status of the given keys.
func (r *CandidateRepo) MarkProcessed(ctx context.Context, keys []string, status storage.CandidateStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", storage.ErrInvalidStatus, status)
	}
	if len(keys) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, markProcessedSQL, string(status), pq.Array(keys)); err != nil {
		return fmt.Errorf("failed to mark candidates %s: %w", status, err)
	}
	return nil
}

// CountByStatus returns the number of candidates per status.
func (r *CandidateRepo) CountByStatus(ctx context.Context) (map[storage.CandidateStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, countByStatusSQL); err != nil {
		return nil, fmt.Errorf("failed to count candidates: %w", err)
	}

	counts := make(map[storage.CandidateStatus]int, len(rows))
	for _, row := range rows {
		counts[storage.CandidateStatus(row.Status)] = row.Count
	}
	return counts, nil
}

func listQuery(limit int) (string, []any) {
	args := []any{string(storage.StatusPending)}
	if limit <= 0 {
		return listPendingSQL, args
	}
	return listPendingSQL + "\nLIMIT $2", append(args, limit)
}
