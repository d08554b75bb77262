// Package db provides PostgreSQL storage for the grading audit trail.
package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/auto-evaluator/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// EnsureSchema creates the audit tables when they do not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateRun creates a new grading run record and returns its ID
func (db *DB) CreateRun(ctx context.Context, in RunInput) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO grading_runs (spreadsheet_id, sheet_name, start_row, provider, model, rubric_name, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		in.SpreadsheetID, in.SheetName, in.StartRow, in.Provider, in.Model, in.RubricName, RunStatusRunning,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// SaveOutcome stores one row outcome. Saving the same position twice keeps the latest record.
func (db *DB) SaveOutcome(ctx context.Context, runID uuid.UUID, rec types.OutcomeRecord) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO grading_outcomes (run_id, position, label, success, score_text, reason, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (run_id, position) DO UPDATE
		 SET label = $3, success = $4, score_text = $5, reason = $6, duration_ms = $7, created_at = NOW()`,
		runID, rec.Position, rec.Label, rec.Success, rec.ScoreText, rec.Reason, rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save outcome for row %d: %w", rec.Position, err)
	}
	return nil
}

// CompleteRun marks a grading run finished with the summary counts
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status string, summary types.BatchSummary) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE grading_runs
		 SET status = $1, total_items = $2, success_count = $3, score_errors = $4,
		     elapsed_ms = $5, completed_at = NOW()
		 WHERE id = $6`,
		status, summary.TotalItems, summary.SuccessCount, summary.ScoreErrors,
		summary.Elapsed.Milliseconds(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to complete run: run %s not found", runID)
	}
	return nil
}

// GetRun retrieves a grading run by ID. Returns nil when it does not exist.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	err := db.pool.QueryRow(ctx,
		`SELECT id, spreadsheet_id, sheet_name, start_row, provider, model, rubric_name, status,
		        total_items, success_count, score_errors, elapsed_ms, created_at, completed_at
		 FROM grading_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.SpreadsheetID, &run.SheetName, &run.StartRow, &run.Provider, &run.Model,
		&run.RubricName, &run.Status, &run.TotalItems, &run.SuccessCount, &run.ScoreErrors,
		&run.ElapsedMs, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListOutcomes returns the stored outcomes of a run ordered by row position
func (db *DB) ListOutcomes(ctx context.Context, runID uuid.UUID) ([]Outcome, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, position, label, success, score_text, reason, duration_ms, created_at
		 FROM grading_outcomes WHERE run_id = $1
		 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.ID, &o.RunID, &o.Position, &o.Label, &o.Success,
			&o.ScoreText, &o.Reason, &o.DurationMs, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}
	return outcomes, nil
}
