package db

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/auto-evaluator/internal/types"
)

func TestRunStatusConstants(t *testing.T) {
	assert.Equal(t, "running", RunStatusRunning)
	assert.Equal(t, "completed", RunStatusCompleted)
	assert.Equal(t, "partial", RunStatusPartial)
	assert.Equal(t, "failed", RunStatusFailed)
	assert.Equal(t, "cancelled", RunStatusCancelled)
}

func TestRunStatusFor(t *testing.T) {
	allGood := types.Summarize([]types.OutcomeRecord{{Position: 2, Success: true}}, time.Second)
	someFailed := types.Summarize([]types.OutcomeRecord{{Position: 2, Success: true}, {Position: 3}}, time.Second)

	tests := []struct {
		name      string
		summary   *types.BatchSummary
		err       error
		cancelled bool
		want      string
	}{
		{"all succeeded", &allGood, nil, false, RunStatusCompleted},
		{"some failed", &someFailed, nil, false, RunStatusPartial},
		{"batch error", nil, errors.New("read failed"), false, RunStatusFailed},
		{"nil summary", nil, nil, false, RunStatusFailed},
		{"cancelled wins", &allGood, nil, true, RunStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RunStatusFor(tt.summary, tt.err, tt.cancelled))
		})
	}
}

func TestOutcome_Record(t *testing.T) {
	o := Outcome{
		ID:         uuid.New(),
		RunID:      uuid.New(),
		Position:   7,
		Label:      "Ada",
		Success:    true,
		ScoreText:  "85",
		DurationMs: 1500,
	}

	rec := o.Record()
	assert.Equal(t, 7, rec.Position)
	assert.Equal(t, "Ada", rec.Label)
	assert.True(t, rec.Success)
	assert.Equal(t, "85", rec.ScoreText)
	assert.Equal(t, 1500*time.Millisecond, rec.Duration)
}

func TestSchemaSQL(t *testing.T) {
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS grading_runs")
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS grading_outcomes")
	assert.True(t, strings.Contains(schemaSQL, "UNIQUE (run_id, position)"), "outcome upsert relies on the unique key")
}
