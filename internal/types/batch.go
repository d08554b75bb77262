package types

import (
	"time"

	"github.com/google/uuid"
)

// WorkItem is one input row: a document reference and an optional label.
type WorkItem struct {
	Position  int    `json:"position"`
	Reference string `json:"reference"`
	Label     string `json:"label,omitempty"`
}

// OutcomeRecord is the per-item result of the pipeline. It is never mutated after creation.
type OutcomeRecord struct {
	Position  int           `json:"position"`
	Success   bool          `json:"success"`
	ScoreText string        `json:"score_text,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Label     string        `json:"label,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// Failure reasons recorded on OutcomeRecords.
const (
	ReasonNoURL      = "No URL"
	ReasonInvalidURL = "Invalid URL"
	ReasonEmptyDoc   = "Empty doc"
	ReasonCancelled  = "Cancelled"
)

// BatchSummary aggregates the outcomes of one run.
type BatchSummary struct {
	RunID        uuid.UUID       `json:"run_id"`
	TotalItems   int             `json:"total_items"`
	SuccessCount int             `json:"success_count"`
	ScoreErrors  int             `json:"score_errors"`
	Elapsed      time.Duration   `json:"elapsed_ns"`
	Outcomes     []OutcomeRecord `json:"outcomes,omitempty"`
}

// FailureCount returns the number of items that did not succeed.
func (s *BatchSummary) FailureCount() int {
	return s.TotalItems - s.SuccessCount
}

// Summarize builds a summary from outcome records.
func Summarize(outcomes []OutcomeRecord, elapsed time.Duration) BatchSummary {
	summary := BatchSummary{
		TotalItems: len(outcomes),
		Elapsed:    elapsed,
		Outcomes:   outcomes,
	}
	for _, o := range outcomes {
		if o.Success {
			summary.SuccessCount++
			if o.ScoreText == ScoreTextError {
				summary.ScoreErrors++
			}
		}
	}
	return summary
}
