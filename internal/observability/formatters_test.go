package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/auto-evaluator/internal/types"
)

func newTestPrinter(t *testing.T) (*Printer, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	return NewPrinter(&buf), &buf
}

func TestPrintSummary(t *testing.T) {
	p, buf := newTestPrinter(t)

	summary := types.Summarize([]types.OutcomeRecord{
		{Position: 2, Success: true, ScoreText: "85"},
		{Position: 5, Success: false, Reason: "Empty doc", Label: "Bob"},
		{Position: 3, Success: true, ScoreText: "ERROR"},
		{Position: 4, Success: false, Reason: "failed to fetch document"},
	}, 12*time.Second)

	p.PrintSummary(summary)
	output := buf.String()

	assert.Contains(t, output, "BATCH SUMMARY")
	assert.Contains(t, output, "Total rows:   4")
	assert.Contains(t, output, "Succeeded:    2")
	assert.Contains(t, output, "Failed:       2")
	assert.Contains(t, output, "ERROR scores: 1")
	assert.Contains(t, output, "Row 5 (Bob): Empty doc")
	assert.Less(t, strings.Index(output, "Row 4"), strings.Index(output, "Row 5"), "failed rows are listed by position")
}

func TestPrintSummary_NoFailures(t *testing.T) {
	p, buf := newTestPrinter(t)

	p.PrintSummary(types.Summarize([]types.OutcomeRecord{{Position: 2, Success: true, ScoreText: "90"}}, time.Second))

	assert.Contains(t, buf.String(), "Failed:       0")
	assert.NotContains(t, buf.String(), "Failed rows")
}

func TestPrintSummary_ManyFailuresTruncated(t *testing.T) {
	p, buf := newTestPrinter(t)

	var outcomes []types.OutcomeRecord
	for i := 0; i < maxItemsToShow+3; i++ {
		outcomes = append(outcomes, types.OutcomeRecord{Position: i + 2, Reason: "No URL"})
	}
	p.PrintSummary(types.Summarize(outcomes, time.Second))

	assert.Contains(t, buf.String(), "... and 3 more")
}

func TestPrintBox_AlignsLines(t *testing.T) {
	p, buf := newTestPrinter(t)

	p.printBox("TITLE", []boxLine{{text: "short"}, {text: strings.Repeat("x", 200)}})

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.Equal(t, boxWidth, len([]rune(line)), "line %q", line)
	}
	assert.Contains(t, buf.String(), "...")
}

func TestPrintConsistency(t *testing.T) {
	p, buf := newTestPrinter(t)

	reports := []types.ConsistencyReport{
		types.NewConsistencyReport(2, "Ada", []types.Score{types.NumericScore(85), types.NumericScore(84), types.NumericScore(85)}, 5),
		types.NewConsistencyReport(3, "", []types.Score{types.NumericScore(60), types.NumericScore(80), types.NumericScore(70)}, 5),
	}
	p.PrintConsistency(reports, 5)
	output := buf.String()

	assert.Contains(t, output, "SCORE CONSISTENCY")
	assert.Contains(t, output, "Row 2 (Ada)")
	assert.Contains(t, output, "Scores: 85, 84, 85")
	assert.Contains(t, output, "✓ consistent")
	assert.Contains(t, output, "Spread 20")
	assert.Contains(t, output, "FAIL")
}

func TestPrintConsistency_Empty(t *testing.T) {
	p, buf := newTestPrinter(t)
	p.PrintConsistency(nil, 5)
	assert.Empty(t, buf.String())
}

func TestPrintResult(t *testing.T) {
	p, buf := newTestPrinter(t)

	result := &types.EvaluationResult{
		TotalScore: types.NumericScore(45),
		Breakdown:  map[string]int{"sql_implementation": 25, "er_model": 20},
	}
	p.PrintResult("Ada", result, "Strengths: clear")
	output := buf.String()

	assert.Contains(t, output, "Student: Ada")
	assert.Contains(t, output, "Score:   45")
	assert.Less(t, strings.Index(output, "er_model"), strings.Index(output, "sql_implementation"))
	assert.Contains(t, output, "Strengths: clear")
}

func TestPrintResult_Nil(t *testing.T) {
	p, buf := newTestPrinter(t)
	p.PrintResult("", nil, "")
	assert.Empty(t, buf.String())
}

func TestPrintCheck(t *testing.T) {
	p, buf := newTestPrinter(t)

	p.PrintCheck("Configuration", nil)
	p.PrintCheck("Sheet access", errors.New("403 forbidden"))

	assert.Contains(t, buf.String(), "✓ Configuration")
	assert.Contains(t, buf.String(), "✗ Sheet access: 403 forbidden")
}
