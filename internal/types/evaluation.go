// Package types provides type definitions for structured data used throughout the auto-evaluator system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel values written to the score cell when no numeric score exists.
const (
	ScoreTextError = "ERROR"
	ScoreTextNA    = "N/A"
)

// Score is either a numeric total or the ERROR sentinel. The zero value is ERROR.
type Score struct {
	value   int
	numeric bool
}

// NumericScore returns a Score holding n.
func NumericScore(n int) Score {
	return Score{value: n, numeric: true}
}

// ErrorScore returns the ERROR sentinel.
func ErrorScore() Score {
	return Score{}
}

// IsError reports whether the score is the ERROR sentinel.
func (s Score) IsError() bool {
	return !s.numeric
}

// Value returns the numeric score and whether it is numeric.
func (s Score) Value() (int, bool) {
	return s.value, s.numeric
}

// String returns the literal written to the score cell.
func (s Score) String() string {
	if !s.numeric {
		return ScoreTextError
	}
	return strconv.Itoa(s.value)
}

// MarshalJSON encodes numeric scores as numbers and the sentinel as "ERROR".
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.numeric {
		return json.Marshal(ScoreTextError)
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON accepts an integer, an integer-valued string, or "ERROR".
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if strings.EqualFold(text, ScoreTextError) {
			*s = ErrorScore()
			return nil
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			return fmt.Errorf("invalid score %q", text)
		}
		*s = NumericScore(n)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid score %s: %w", string(data), err)
	}
	if f != float64(int(f)) {
		return fmt.Errorf("score must be an integer, got %v", f)
	}
	*s = NumericScore(int(f))
	return nil
}

// EvaluationResult is the outcome of grading one document.
type EvaluationResult struct {
	TotalScore      Score          `json:"total_score"`
	Breakdown       map[string]int `json:"breakdown"`
	Strengths       string         `json:"strengths"`
	Weaknesses      string         `json:"weaknesses"`
	Recommendations string         `json:"recommendations"`
	PlagiarismNote  string         `json:"plagiarism_flags"`
}

// NewErrorResult builds an ERROR-state result whose recommendations explain the failure.
func NewErrorResult(reason string) *EvaluationResult {
	return &EvaluationResult{
		TotalScore:      ErrorScore(),
		Breakdown:       map[string]int{},
		Recommendations: "Evaluation failed: " + reason,
		PlagiarismNote:  "Not assessed",
	}
}

// IsError reports whether the result is in the ERROR state.
func (r *EvaluationResult) IsError() bool {
	return r == nil || r.TotalScore.IsError()
}

// BreakdownSum returns the sum of all breakdown values.
func (r *EvaluationResult) BreakdownSum() int {
	sum := 0
	for _, v := range r.Breakdown {
		sum += v
	}
	return sum
}

// CheckInvariant verifies that numeric totals equal the breakdown sum and that the
// ERROR state carries no breakdown.
func (r *EvaluationResult) CheckInvariant() error {
	if r.TotalScore.IsError() {
		if len(r.Breakdown) != 0 {
			return fmt.Errorf("error result has %d breakdown entries", len(r.Breakdown))
		}
		return nil
	}
	total, _ := r.TotalScore.Value()
	if len(r.Breakdown) == 0 {
		return fmt.Errorf("numeric total %d has empty breakdown", total)
	}
	if sum := r.BreakdownSum(); sum != total {
		return fmt.Errorf("total_score %d does not equal breakdown sum %d", total, sum)
	}
	return nil
}
