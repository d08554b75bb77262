//go:build integration
// +build integration

package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/auto-evaluator/internal/types"
)

func setupTestDB(t *testing.T) *DB {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Connect(ctx, dbURL)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to DB: %v", err)
	}
	require.NoError(t, db.EnsureSchema(ctx))
	return db
}

func TestRunLifecycle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	runID, err := db.CreateRun(ctx, RunInput{
		SpreadsheetID: "sheet-" + uuid.New().String(),
		SheetName:     "Form Responses 1",
		StartRow:      2,
		Provider:      "gemini",
		Model:         "gemini-1.5-flash",
		RubricName:    "Database Project",
	})
	require.NoError(t, err)

	run, err := db.GetRun(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Nil(t, run.CompletedAt)

	records := []types.OutcomeRecord{
		{Position: 3, Success: false, Reason: types.ReasonEmptyDoc, Duration: 20 * time.Millisecond},
		{Position: 2, Success: true, ScoreText: "85", Label: "Ada", Duration: 2 * time.Second},
	}
	for _, rec := range records {
		require.NoError(t, db.SaveOutcome(ctx, runID, rec))
	}
	// A second save for the same row replaces the first.
	require.NoError(t, db.SaveOutcome(ctx, runID, types.OutcomeRecord{Position: 3, Success: true, ScoreText: "N/A"}))

	outcomes, err := db.ListOutcomes(ctx, runID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, 2, outcomes[0].Position)
	assert.Equal(t, "Ada", outcomes[0].Label)
	assert.Equal(t, int64(2000), outcomes[0].DurationMs)
	assert.Equal(t, "N/A", outcomes[1].ScoreText)

	summary := types.Summarize(records, 3*time.Second)
	require.NoError(t, db.CompleteRun(ctx, runID, RunStatusPartial, summary))

	run, err = db.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusPartial, run.Status)
	assert.Equal(t, 2, run.TotalItems)
	assert.Equal(t, 1, run.SuccessCount)
	require.NotNil(t, run.ElapsedMs)
	assert.Equal(t, int64(3000), *run.ElapsedMs)
	assert.NotNil(t, run.CompletedAt)
}

func TestGetRun_NotFound_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()

	run, err := db.GetRun(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestCompleteRun_UnknownRun_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()

	err := db.CompleteRun(context.Background(), uuid.New(), RunStatusCompleted, types.BatchSummary{})
	assert.ErrorContains(t, err, "not found")
}
