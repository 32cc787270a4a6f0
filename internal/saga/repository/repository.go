// Package repository persists the saga run audit log. Runs are not resumable;
// the log exists so agents and operators can see what happened to a quote.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Run states persisted in the audit log.
const (
	RunStateRunning  = "RUNNING"
	RunStateComplete = "COMPLETE"
	RunStateError    = "ERROR"
)

// Run is one saga invocation.
type Run struct {
	ID           uuid.UUID
	QuoteID      string
	DealID       string
	ContactID    string
	Flow         string
	State        string
	ErrorKind    *string
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Repository provides access to saga run records.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new saga repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertRun records the start of a run.
func (r *Repository) InsertRun(ctx context.Context, run Run) error {
	query := `
		INSERT INTO saga_runs (id, quote_id, deal_id, contact_id, flow, state, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		run.ID,
		run.QuoteID,
		run.DealID,
		run.ContactID,
		run.Flow,
		run.State,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert saga run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (r *Repository) FinishRun(ctx context.Context, id uuid.UUID, state string, errorKind, errorMessage *string) error {
	query := `
		UPDATE saga_runs
		SET state = $2, error_kind = $3, error_message = $4, finished_at = now()
		WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id, state, errorKind, errorMessage)
	if err != nil {
		return fmt.Errorf("finish saga run: %w", err)
	}
	return nil
}

// ListRunsByDeal returns the most recent runs for a deal, newest first.
func (r *Repository) ListRunsByDeal(ctx context.Context, dealID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, quote_id, deal_id, contact_id, flow, state, error_kind, error_message, started_at, finished_at
		FROM saga_runs
		WHERE deal_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, dealID, limit)
	if err != nil {
		return nil, fmt.Errorf("list saga runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID,
			&run.QuoteID,
			&run.DealID,
			&run.ContactID,
			&run.Flow,
			&run.State,
			&run.ErrorKind,
			&run.ErrorMessage,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan saga run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteFinishedBefore removes finished runs older than the cutoff and
// returns the number of rows deleted.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM saga_runs
		WHERE finished_at IS NOT NULL AND finished_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished saga runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
