package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/jonathan/auto-evaluator/internal/pipeline"
)

// progressReporter renders pipeline progress events as a progress bar. The bar is created
// on the first event, once the row count is known.
type progressReporter struct {
	out    io.Writer
	bar    *progressbar.ProgressBar
	failed int
}

func newProgressReporter(out io.Writer) *progressReporter {
	return &progressReporter{out: out}
}

// Update advances the bar by one finished row.
func (p *progressReporter) Update(e pipeline.ProgressEvent) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(e.Total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription("Grading"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	if !e.Outcome.Success {
		p.failed++
		p.bar.Describe(fmt.Sprintf("Grading (%d failed)", p.failed))
	}
	_ = p.bar.Add(1)
}

// Finish completes the bar. Safe to call on a nil reporter or before any event.
func (p *progressReporter) Finish() {
	if p == nil || p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}
