// Package pipeline provides the batch orchestration for grading a sheet of documents.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/auto-evaluator/internal/db"
	"github.com/jonathan/auto-evaluator/internal/evaluation"
	"github.com/jonathan/auto-evaluator/internal/logging"
	"github.com/jonathan/auto-evaluator/internal/observability"
	"github.com/jonathan/auto-evaluator/internal/types"
	"github.com/jonathan/auto-evaluator/internal/workspace"
)

// DefaultWorkers is the worker pool size when none is configured.
const DefaultWorkers = 5

// MinDocumentChars is the shortest document text that is graded.
const MinDocumentChars = 100

// DefaultAuditTimeout bounds each audit store write.
const DefaultAuditTimeout = 10 * time.Second

// Texts written to the sheet for rows that are not graded.
const (
	FeedbackInvalidURL = "Invalid document URL"
	FeedbackEmptyDoc   = "Document empty or too short"
	feedbackFailedPfx  = "Processing failed: "
	maxFailureDetail   = 200
)

// Source is the sheet and document side of the pipeline.
type Source interface {
	ReadWorkItems(ctx context.Context, startRow int) ([]types.WorkItem, error)
	FetchDocumentText(ctx context.Context, docID string) (string, error)
	DocumentMetadata(ctx context.Context, docID string) (*workspace.DocumentMetadata, error)
	WriteResult(ctx context.Context, position int, scoreText, feedback string) error
}

// Grader scores document text.
type Grader interface {
	Evaluate(ctx context.Context, text, label string) (*types.EvaluationResult, error)
	FormatFeedback(result *types.EvaluationResult) string
}

// AuditStore records runs and their outcomes.
type AuditStore interface {
	CreateRun(ctx context.Context, in db.RunInput) (uuid.UUID, error)
	SaveOutcome(ctx context.Context, runID uuid.UUID, rec types.OutcomeRecord) error
	CompleteRun(ctx context.Context, runID uuid.UUID, status string, summary types.BatchSummary) error
}

// ProgressEvent reports one finished row
type ProgressEvent struct {
	Completed int                 `json:"completed"`
	Total     int                 `json:"total"`
	RunID     string              `json:"run_id,omitempty"`
	Outcome   types.OutcomeRecord `json:"outcome"`
}

// ProgressCallback is called when a row finishes. Calls are serialized.
type ProgressCallback func(event ProgressEvent)

// Options configures an Orchestrator
type Options struct {
	Workers int
	// LookupTitles fetches Drive metadata for each document to log its title.
	LookupTitles bool
	Logger       *slog.Logger
	Metrics      *observability.Metrics
	Audit        AuditStore
	// AuditTimeout bounds each outcome write to Audit. Defaults to DefaultAuditTimeout.
	AuditTimeout time.Duration
	// RunInput describes the run for the audit store.
	RunInput   db.RunInput
	OnProgress ProgressCallback
}

// Orchestrator runs batches of rows through fetch, evaluate and write-back.
type Orchestrator struct {
	source Source
	grader Grader
	opts   Options
	logger *slog.Logger
}

// New creates an Orchestrator
func New(source Source, grader Grader, opts Options) (*Orchestrator, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if grader == nil {
		return nil, fmt.Errorf("grader is required")
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = DefaultAuditTimeout
	}
	return &Orchestrator{
		source: source,
		grader: grader,
		opts:   opts,
		logger: logging.OrDiscard(opts.Logger).With("component", "pipeline"),
	}, nil
}

// RunBatch reads every row from startRow in one request and processes them on a bounded
// worker pool. Failing rows do not stop the batch; only a failed read is returned as an
// error. When ctx is cancelled, rows not yet started are recorded as Cancelled, rows in
// flight finish, and ctx's error is returned with the summary.
func (o *Orchestrator) RunBatch(ctx context.Context, startRow int) (*types.BatchSummary, error) {
	runID := o.startRun(ctx, startRow)

	items, err := o.source.ReadWorkItems(ctx, startRow)
	if err != nil {
		o.completeRun(ctx, runID, nil, err)
		return nil, fmt.Errorf("failed to read work items: %w", err)
	}
	if len(items) == 0 {
		o.logger.Warn("no rows found to process", "start_row", startRow)
		summary := types.Summarize(nil, 0)
		summary.RunID = runID
		o.completeRun(ctx, runID, &summary, nil)
		return &summary, nil
	}
	o.logger.Info("found documents to evaluate", "count", len(items), "workers", o.opts.Workers)

	// Rows already dispatched run to completion even after ctx is cancelled.
	workCtx := context.WithoutCancel(ctx)

	var (
		mu       sync.Mutex
		outcomes = make([]types.OutcomeRecord, 0, len(items))
	)
	record := func(rec types.OutcomeRecord) {
		// Audit writes run outside the lock so a slow store does not serialize workers.
		o.saveOutcome(workCtx, runID, rec)

		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, rec)
		o.opts.Metrics.ObserveOutcome(rec)
		if o.opts.OnProgress != nil {
			o.opts.OnProgress(ProgressEvent{
				Completed: len(outcomes),
				Total:     len(items),
				RunID:     runIDString(runID),
				Outcome:   rec,
			})
		}
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for _, item := range items {
		if ctx.Err() != nil {
			record(cancelledRecord(item))
			continue
		}
		item := item
		g.Go(func() error {
			if ctx.Err() != nil {
				record(cancelledRecord(item))
				return nil
			}
			record(o.runItem(workCtx, item))
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Position < outcomes[j].Position })
	summary := types.Summarize(outcomes, elapsed)
	summary.RunID = runID
	o.opts.Metrics.ObserveBatch(elapsed)

	o.logger.Info("processing complete",
		"successful", summary.SuccessCount,
		"total", summary.TotalItems,
		"score_errors", summary.ScoreErrors,
		"elapsed", elapsed.Round(time.Millisecond).String())

	if err := ctx.Err(); err != nil {
		o.completeRun(workCtx, runID, &summary, err)
		return &summary, err
	}
	o.completeRun(ctx, runID, &summary, nil)
	return &summary, nil
}

// runItem runs ProcessItem and turns a returned error or a panic into a failed record.
func (o *Orchestrator) runItem(ctx context.Context, item types.WorkItem) (rec types.OutcomeRecord) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("row processing panicked", "row", item.Position, "panic", r, "stack", string(debug.Stack()))
			rec = types.OutcomeRecord{
				Position: item.Position,
				Label:    item.Label,
				Reason:   fmt.Sprintf("panic: %v", r),
			}
		}
		rec.Duration = time.Since(start)
	}()

	rec, err := o.ProcessItem(ctx, item)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.Canceled) {
			reason = types.ReasonCancelled
		}
		o.logger.Error("failed to process row", "row", item.Position, "error", err)
		return types.OutcomeRecord{Position: item.Position, Label: item.Label, Reason: reason}
	}
	return rec
}

// ProcessItem fetches, grades and writes back one row. The returned error reports a
// failure to fetch the document or a cancelled context; every other failure is in the record.
func (o *Orchestrator) ProcessItem(ctx context.Context, item types.WorkItem) (types.OutcomeRecord, error) {
	logger := o.logger.With("row", item.Position)
	rec := types.OutcomeRecord{Position: item.Position, Label: item.Label}

	if item.Reference == "" {
		logger.Warn("no document URL found")
		rec.Reason = types.ReasonNoURL
		return rec, nil
	}

	docID, ok := workspace.ResolveDocumentID(item.Reference)
	if !ok {
		logger.Error("invalid document URL", "reference", item.Reference)
		if err := o.source.WriteResult(ctx, item.Position, types.ScoreTextError, FeedbackInvalidURL); err != nil {
			logger.Error("failed to write invalid URL marker", "error", err)
		}
		rec.Reason = types.ReasonInvalidURL
		return rec, nil
	}

	logger.Info("processing row", "label", item.Label, "doc_id", docID)
	if o.opts.LookupTitles {
		o.logTitle(ctx, logger, docID)
	}

	text, err := o.source.FetchDocumentText(ctx, docID)
	if err != nil {
		return types.OutcomeRecord{}, fmt.Errorf("failed to fetch document %s: %w", docID, err)
	}
	if utf8.RuneCountInString(text) < MinDocumentChars {
		logger.Warn("document too short or empty", "chars", utf8.RuneCountInString(text))
		if err := o.source.WriteResult(ctx, item.Position, types.ScoreTextNA, FeedbackEmptyDoc); err != nil {
			logger.Error("failed to write empty document marker", "error", err)
		}
		rec.Reason = types.ReasonEmptyDoc
		return rec, nil
	}

	result, err := o.grader.Evaluate(ctx, text, item.Label)
	if err != nil {
		return types.OutcomeRecord{}, err
	}
	scoreText := result.TotalScore.String()
	feedback := o.grader.FormatFeedback(result)

	if err := o.source.WriteResult(ctx, item.Position, scoreText, feedback); err != nil {
		logger.Error("failed to write result", "error", err)
		detail := feedbackFailedPfx + evaluation.Truncate(err.Error(), maxFailureDetail)
		if werr := o.source.WriteResult(ctx, item.Position, types.ScoreTextError, detail); werr != nil {
			logger.Debug("failed to write failure marker", "error", werr)
		}
		rec.Reason = err.Error()
		return rec, nil
	}

	logger.Info("row completed", "score", scoreText)
	rec.Success = true
	rec.ScoreText = scoreText
	return rec, nil
}

func (o *Orchestrator) logTitle(ctx context.Context, logger *slog.Logger, docID string) {
	meta, err := o.source.DocumentMetadata(ctx, docID)
	if err != nil {
		logger.Debug("failed to read document metadata", "doc_id", docID, "error", err)
		return
	}
	logger.Info("document metadata", "title", meta.Name, "mime_type", meta.MimeType,
		"modified", meta.ModifiedTime.Format(time.RFC3339), "owners", meta.Owners)
}

func cancelledRecord(item types.WorkItem) types.OutcomeRecord {
	return types.OutcomeRecord{Position: item.Position, Label: item.Label, Reason: types.ReasonCancelled}
}

func runIDString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
