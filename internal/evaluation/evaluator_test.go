package evaluation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/auto-evaluator/internal/failure"
	"github.com/jonathan/auto-evaluator/internal/llm"
	"github.com/jonathan/auto-evaluator/internal/types"
)

const validResponse = `{
  "total_score": 67,
  "breakdown": {"sql_implementation": 19, "er_model": 15, "query_design": 13, "documentation": 10, "originality": 10},
  "strengths": "Eight tables with foreign keys",
  "weaknesses": "No CHECK constraints found",
  "recommendations": "Add a composite index on (user_id, date)",
  "plagiarism_flags": "None detected"
}`

// fakeClient replays responses in order and records every request.
type fakeClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []llm.Request
}

func (f *fakeClient) GenerateJSON(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func (f *fakeClient) Model() string { return "fake" }
func (f *fakeClient) Close() error  { return nil }

func newEvaluator(t *testing.T, client llm.Client, attempts int) *Evaluator {
	t.Helper()
	e, err := New(Options{
		Client:                 client,
		RetryAttempts:          attempts,
		BaseDelay:              time.Millisecond,
		MaxDelay:               2 * time.Millisecond,
		IncludePlagiarismCheck: true,
	})
	require.NoError(t, err)
	return e
}

func TestEvaluate_Success(t *testing.T) {
	client := &fakeClient{responses: []string{validResponse}}
	e := newEvaluator(t, client, 3)

	result, err := e.Evaluate(context.Background(), "CREATE TABLE users (...)", "Ada Lovelace")
	require.NoError(t, err)

	assert.False(t, result.IsError())
	total, ok := result.TotalScore.Value()
	require.True(t, ok)
	assert.Equal(t, 67, total)
	assert.NoError(t, result.CheckInvariant())
	assert.NoError(t, e.Rubric().CheckBreakdown(result.Breakdown))

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Contains(t, req.System, `"er_model": <20|15|10|5|0>`)
	assert.Contains(t, req.User, "Student: Ada Lovelace")
	assert.Contains(t, req.User, "DOCUMENT TO EVALUATE:\n\nCREATE TABLE users")
	assert.NotNil(t, req.Schema)
}

func TestEvaluate_Deterministic(t *testing.T) {
	client := &fakeClient{responses: []string{validResponse}}
	e := newEvaluator(t, client, 1)

	first, err := e.Evaluate(context.Background(), "same document", "")
	require.NoError(t, err)
	second, err := e.Evaluate(context.Background(), "same document", "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, client.requests[0], client.requests[1], "identical input must produce an identical request")
	assert.NotContains(t, client.requests[0].User, "Student:")
}

func TestEvaluate_TruncatesDocument(t *testing.T) {
	client := &fakeClient{responses: []string{validResponse}}
	e := newEvaluator(t, client, 1)

	long := strings.Repeat("a", MaxDocumentChars) + "TAIL"
	_, err := e.Evaluate(context.Background(), long, "")
	require.NoError(t, err)

	assert.NotContains(t, client.requests[0].User, "TAIL")
	assert.Contains(t, client.requests[0].User, strings.Repeat("a", MaxDocumentChars))
}

func TestEvaluate_MalformedJSON(t *testing.T) {
	client := &fakeClient{responses: []string{"I think this deserves an 80"}}
	e := newEvaluator(t, client, 3)

	result, err := e.Evaluate(context.Background(), "doc", "")
	require.NoError(t, err)

	assert.True(t, result.IsError())
	assert.Equal(t, "Evaluation failed: JSON parsing error", result.Recommendations)
	assert.Empty(t, result.Breakdown)
	assert.Len(t, client.requests, 1, "format errors are not retried")
}

func TestEvaluate_OffGridBreakdownFailsValidation(t *testing.T) {
	offGrid := strings.Replace(validResponse, `"query_design": 13`, `"query_design": 14`, 1)
	client := &fakeClient{responses: []string{offGrid}}
	e := newEvaluator(t, client, 1)

	result, err := e.Evaluate(context.Background(), "doc", "")
	require.NoError(t, err)

	assert.True(t, result.IsError())
	assert.Contains(t, result.Recommendations, "Response failed validation")
	assert.Contains(t, result.Recommendations, "breakdown.query_design")
}

func TestEvaluate_TotalReconciledWithBreakdown(t *testing.T) {
	wrongTotal := strings.Replace(validResponse, `"total_score": 67`, `"total_score": 70`, 1)
	client := &fakeClient{responses: []string{wrongTotal}}
	e := newEvaluator(t, client, 1)

	result, err := e.Evaluate(context.Background(), "doc", "")
	require.NoError(t, err)

	assert.Equal(t, "67", result.TotalScore.String())
}

func TestEvaluate_RetriesTransientFailures(t *testing.T) {
	client := &fakeClient{
		errs:      []error{failure.New(failure.KindTransport, "gemini.generate", "connection reset", nil), nil},
		responses: []string{"", validResponse},
	}
	var retried []int
	e, err := New(Options{
		Client:        client,
		RetryAttempts: 3,
		BaseDelay:     time.Millisecond,
		OnRetry:       func(attempt int, _ error) { retried = append(retried, attempt) },
	})
	require.NoError(t, err)

	result, err := e.Evaluate(context.Background(), "doc", "")
	require.NoError(t, err)

	assert.False(t, result.IsError())
	assert.Len(t, client.requests, 2)
	assert.Equal(t, []int{1}, retried)
}

func TestEvaluate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantMsg  string
		attempts int
	}{
		{"leaked key", errors.New("Your API key was reported as leaked"), failure.MessageKeyRevoked, 1},
		{"permission denied", errors.New("rpc error: code = PermissionDenied desc = denied"), failure.MessageKeyRevoked, 1},
		{"unauthorized", failure.New(failure.KindAuth, "openai.chat", "status 401: bad key", nil), failure.MessageAuthFailed, 1},
		{"quota exhausted", failure.New(failure.KindRateLimit, "gemini.generate", "", errors.New("quota exceeded")), failure.MessageQuota, 3},
		{"other", errors.New("model exploded"), "Evaluation error: model exploded", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{errs: []error{tt.err, tt.err, tt.err}, responses: []string{""}}
			e := newEvaluator(t, client, 3)

			result, err := e.Evaluate(context.Background(), "doc", "")
			require.NoError(t, err)

			assert.True(t, result.IsError())
			assert.Equal(t, "Evaluation failed: "+tt.wantMsg, result.Recommendations)
			assert.Equal(t, "Not assessed", result.PlagiarismNote)
			assert.Len(t, client.requests, tt.attempts)
		})
	}
}

func TestEvaluate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeClient{errs: []error{context.Canceled}, responses: []string{""}}
	e := newEvaluator(t, client, 3)

	result, err := e.Evaluate(ctx, "doc", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestFormatFeedback(t *testing.T) {
	full := &types.EvaluationResult{
		TotalScore:      types.NumericScore(80),
		Breakdown:       map[string]int{"a": 80},
		Strengths:       "S",
		Weaknesses:      "W",
		Recommendations: "R",
		PlagiarismNote:  "None detected",
	}

	assert.Equal(t, "Strengths: S | Areas for Improvement: W | Recommendations: R | Plagiarism Check: None detected", FormatFeedback(full, true))
	assert.Equal(t, "Strengths: S | Areas for Improvement: W | Recommendations: R", FormatFeedback(full, false))

	partial := &types.EvaluationResult{TotalScore: types.NumericScore(10), Breakdown: map[string]int{"a": 10}, Weaknesses: "W"}
	assert.Equal(t, "Areas for Improvement: W", FormatFeedback(partial, true))

	errResult := types.NewErrorResult("JSON parsing error")
	assert.Equal(t, "Evaluation failed: JSON parsing error", FormatFeedback(errResult, true))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "héł", Truncate("héłło", 3))
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
