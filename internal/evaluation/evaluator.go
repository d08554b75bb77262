// Package evaluation grades document text against a rubric with a grading model.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonathan/auto-evaluator/internal/failure"
	"github.com/jonathan/auto-evaluator/internal/llm"
	"github.com/jonathan/auto-evaluator/internal/logging"
	"github.com/jonathan/auto-evaluator/internal/prompts"
	"github.com/jonathan/auto-evaluator/internal/retry"
	"github.com/jonathan/auto-evaluator/internal/rubric"
	"github.com/jonathan/auto-evaluator/internal/schemas"
	"github.com/jonathan/auto-evaluator/internal/types"
)

// MaxDocumentChars caps the document text sent to the grading model.
const MaxDocumentChars = 15000

// MessageJSONParsing is the failure reason for unparseable model output.
const MessageJSONParsing = "JSON parsing error"

// Default backoff between grading attempts.
const (
	DefaultBaseDelay = 2 * time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// Options configures an Evaluator.
type Options struct {
	Rubric                 *rubric.Rubric
	Client                 llm.Client
	RetryAttempts          int
	BaseDelay              time.Duration
	MaxDelay               time.Duration
	IncludePlagiarismCheck bool
	Logger                 *slog.Logger
	// OnRetry is called before each retry wait.
	OnRetry func(attempt int, err error)
}

// Evaluator turns document text into an EvaluationResult.
type Evaluator struct {
	rubric            *rubric.Rubric
	client            llm.Client
	policy            retry.Policy
	includePlagiarism bool
	logger            *slog.Logger

	templates prompts.Grading
	system    string
	schema    map[string]any
	validator *schemas.Validator
}

// New builds an Evaluator. The system instruction and response schema are rendered once
// from the rubric.
func New(opts Options) (*Evaluator, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if opts.Rubric == nil {
		opts.Rubric = rubric.Default()
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	logger := logging.OrDiscard(opts.Logger).With("component", "evaluator")

	grading, err := prompts.LoadGrading()
	if err != nil {
		return nil, err
	}
	schema := opts.Rubric.ResponseSchema()
	validator, err := schemas.Compile(schema)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		rubric:            opts.Rubric,
		client:            opts.Client,
		includePlagiarism: opts.IncludePlagiarismCheck,
		logger:            logger,
		templates:         grading,
		system:            grading.RenderSystem(opts.Rubric.OutputTemplate()),
		schema:            schema,
		validator:         validator,
	}
	e.policy = retry.Policy{
		MaxAttempts: opts.RetryAttempts,
		BaseDelay:   opts.BaseDelay,
		MaxDelay:    opts.MaxDelay,
		Retryable:   failure.IsRetryable,
		OnRetry: func(attempt int, err error) {
			logger.Warn("grading call failed, retrying", "attempt", attempt, "kind", failure.KindOf(err).String(), "error", err)
			if opts.OnRetry != nil {
				opts.OnRetry(attempt, err)
			}
		},
	}
	return e, nil
}

// Rubric returns the rubric the evaluator grades against.
func (e *Evaluator) Rubric() *rubric.Rubric {
	return e.rubric
}

// BuildRequest renders the grading request for one document.
func (e *Evaluator) BuildRequest(text, label string) llm.Request {
	user := e.templates.RenderUser(e.rubric.PromptText(), label, Truncate(text, MaxDocumentChars))
	return llm.Request{System: e.system, User: user, Schema: e.schema}
}

// Evaluate grades text. Every failure becomes an ERROR result; the only error returned is
// the context's, when ctx is done.
func (e *Evaluator) Evaluate(ctx context.Context, text, label string) (*types.EvaluationResult, error) {
	req := e.BuildRequest(text, label)

	raw, err := retry.Value(ctx, e.policy, func(ctx context.Context) (string, error) {
		return e.client.GenerateJSON(ctx, req)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Error("evaluation failed", "label", label, "kind", failure.KindOf(err).String(), "error", err)
		return types.NewErrorResult(failure.OperatorMessage(err)), nil
	}

	result, err := e.ParseResponse(raw)
	if err != nil {
		e.logger.Error("failed to parse evaluation response", "label", label, "error", err, "response", Truncate(raw, 500))
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			return types.NewErrorResult("Response failed validation: " + ve.Summary()), nil
		}
		return types.NewErrorResult(MessageJSONParsing), nil
	}

	e.logger.Info("evaluation completed", "label", label, "score", result.TotalScore.String())
	return result, nil
}

// ParseResponse decodes a cleaned model response and checks it against the rubric's
// response schema. A numeric total that disagrees with the breakdown is replaced by the
// breakdown sum.
func (e *Evaluator) ParseResponse(raw string) (*types.EvaluationResult, error) {
	var result types.EvaluationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, failure.New(failure.KindResponseFormat, "evaluation.parse", MessageJSONParsing, err)
	}
	if result.TotalScore.IsError() {
		return types.NewErrorResult("grader returned an ERROR score"), nil
	}
	if err := e.validator.Validate(raw); err != nil {
		return nil, err
	}

	if err := result.CheckInvariant(); err != nil {
		sum := result.BreakdownSum()
		e.logger.Warn("total_score adjusted to breakdown sum", "reported", result.TotalScore.String(), "sum", sum)
		result.TotalScore = types.NumericScore(sum)
	}
	return &result, nil
}

// FormatFeedback renders result as the feedback cell text.
func (e *Evaluator) FormatFeedback(result *types.EvaluationResult) string {
	return FormatFeedback(result, e.includePlagiarism)
}

// FormatFeedback joins the non-empty strengths, weaknesses, recommendations and, when
// includePlagiarism is set, the plagiarism note with " | ". An ERROR result renders as its
// recommendations alone.
func FormatFeedback(result *types.EvaluationResult, includePlagiarism bool) string {
	if result == nil {
		return "Evaluation failed"
	}
	if result.IsError() {
		if result.Recommendations == "" {
			return "Evaluation failed"
		}
		return result.Recommendations
	}

	var parts []string
	if result.Strengths != "" {
		parts = append(parts, "Strengths: "+result.Strengths)
	}
	if result.Weaknesses != "" {
		parts = append(parts, "Areas for Improvement: "+result.Weaknesses)
	}
	if result.Recommendations != "" {
		parts = append(parts, "Recommendations: "+result.Recommendations)
	}
	if includePlagiarism && result.PlagiarismNote != "" {
		parts = append(parts, "Plagiarism Check: "+result.PlagiarismNote)
	}
	return strings.Join(parts, " | ")
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
