package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/auto-evaluator/internal/types"
)

// RunStatus constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// RunInput describes a batch run when it starts
type RunInput struct {
	SpreadsheetID string
	SheetName     string
	StartRow      int
	Provider      string
	Model         string
	RubricName    string
}

// Run represents a grading run record
type Run struct {
	ID            uuid.UUID  `json:"id"`
	SpreadsheetID string     `json:"spreadsheet_id"`
	SheetName     string     `json:"sheet_name"`
	StartRow      int        `json:"start_row"`
	Provider      string     `json:"provider"`
	Model         string     `json:"model"`
	RubricName    string     `json:"rubric_name"`
	Status        string     `json:"status"`
	TotalItems    int        `json:"total_items"`
	SuccessCount  int        `json:"success_count"`
	ScoreErrors   int        `json:"score_errors"`
	ElapsedMs     *int64     `json:"elapsed_ms,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Outcome represents one stored per-row outcome
type Outcome struct {
	ID         uuid.UUID `json:"id"`
	RunID      uuid.UUID `json:"run_id"`
	Position   int       `json:"position"`
	Label      string    `json:"label,omitempty"`
	Success    bool      `json:"success"`
	ScoreText  string    `json:"score_text,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Record converts a stored outcome back to the pipeline record.
func (o Outcome) Record() types.OutcomeRecord {
	return types.OutcomeRecord{
		Position:  o.Position,
		Success:   o.Success,
		ScoreText: o.ScoreText,
		Reason:    o.Reason,
		Label:     o.Label,
		Duration:  time.Duration(o.DurationMs) * time.Millisecond,
	}
}

// RunStatusFor picks the final status of a run from its summary and the batch error.
func RunStatusFor(summary *types.BatchSummary, batchErr error, cancelled bool) string {
	switch {
	case cancelled:
		return RunStatusCancelled
	case batchErr != nil || summary == nil:
		return RunStatusFailed
	case summary.FailureCount() > 0:
		return RunStatusPartial
	default:
		return RunStatusCompleted
	}
}
