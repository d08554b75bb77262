package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jonathan/auto-evaluator/internal/db"
	"github.com/jonathan/auto-evaluator/internal/types"
)

// startRun creates the audit run. Audit failures are logged and the batch continues
// without persistence.
func (o *Orchestrator) startRun(ctx context.Context, startRow int) uuid.UUID {
	if o.opts.Audit == nil {
		return uuid.Nil
	}
	in := o.opts.RunInput
	in.StartRow = startRow
	runID, err := o.opts.Audit.CreateRun(ctx, in)
	if err != nil {
		o.logger.Warn("failed to create audit run, continuing without persistence", "error", err)
		return uuid.Nil
	}
	o.logger.Debug("created audit run", "run_id", runID)
	return runID
}

func (o *Orchestrator) saveOutcome(ctx context.Context, runID uuid.UUID, rec types.OutcomeRecord) {
	if o.opts.Audit == nil || runID == uuid.Nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.AuditTimeout)
	defer cancel()
	if err := o.opts.Audit.SaveOutcome(ctx, runID, rec); err != nil {
		o.logger.Warn("failed to save outcome", "run_id", runID, "row", rec.Position, "error", err)
	}
}

func (o *Orchestrator) completeRun(ctx context.Context, runID uuid.UUID, summary *types.BatchSummary, batchErr error) {
	if o.opts.Audit == nil || runID == uuid.Nil {
		return
	}
	status := db.RunStatusFor(summary, batchErr, ctx.Err() != nil || isCancellation(batchErr))
	final := types.BatchSummary{RunID: runID}
	if summary != nil {
		final = *summary
	}
	if err := o.opts.Audit.CompleteRun(context.WithoutCancel(ctx), runID, status, final); err != nil {
		o.logger.Warn("failed to complete audit run", "run_id", runID, "error", err)
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
