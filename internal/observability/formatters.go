// Package observability provides batch metrics and formatted terminal output for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/jonathan/auto-evaluator/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

type palette struct {
	title func(a ...any) string
	ok    func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newPalette() palette {
	return palette{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func plain(a ...any) string { return fmt.Sprint(a...) }

// boxLine is one content line with the style applied after padding.
type boxLine struct {
	text  string
	style func(a ...any) string
}

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
	ui  palette
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, ui: newPalette()}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, lines []boxLine) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", p.ui.title(pad(title)))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range lines {
		style := line.style
		if style == nil {
			style = plain
		}
		fmt.Fprintf(p.out, "│ %s │\n", style(pad(line.text)))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// pad truncates or right-pads s to the box content width.
func pad(s string) string {
	width := boxWidth - 4
	runes := []rune(s)
	if len(runes) > width {
		return string(runes[:width-3]) + "..."
	}
	return s + strings.Repeat(" ", width-len(runes))
}

// PrintSummary outputs the batch totals and the rows that did not succeed.
func (p *Printer) PrintSummary(summary types.BatchSummary) {
	lines := []boxLine{
		{text: fmt.Sprintf("Total rows:   %d", summary.TotalItems)},
		{text: fmt.Sprintf("Succeeded:    %d", summary.SuccessCount), style: p.ui.ok},
	}
	if failed := summary.FailureCount(); failed > 0 {
		lines = append(lines, boxLine{text: fmt.Sprintf("Failed:       %d", failed), style: p.ui.err})
	} else {
		lines = append(lines, boxLine{text: "Failed:       0"})
	}
	if summary.ScoreErrors > 0 {
		lines = append(lines, boxLine{text: fmt.Sprintf("ERROR scores: %d", summary.ScoreErrors), style: p.ui.warn})
	}
	lines = append(lines, boxLine{text: fmt.Sprintf("Elapsed:      %s", summary.Elapsed.Round(100*time.Millisecond))})

	var failures []types.OutcomeRecord
	for _, o := range summary.Outcomes {
		if !o.Success {
			failures = append(failures, o)
		}
	}
	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].Position < failures[j].Position })
		lines = append(lines, boxLine{}, boxLine{text: "Failed rows:"})
		count := min(len(failures), maxItemsToShow)
		for i := 0; i < count; i++ {
			o := failures[i]
			text := fmt.Sprintf("  Row %d: %s", o.Position, o.Reason)
			if o.Label != "" {
				text = fmt.Sprintf("  Row %d (%s): %s", o.Position, o.Label, o.Reason)
			}
			lines = append(lines, boxLine{text: text, style: p.ui.err})
		}
		if len(failures) > maxItemsToShow {
			lines = append(lines, boxLine{text: fmt.Sprintf("  ... and %d more", len(failures)-maxItemsToShow), style: p.ui.dim})
		}
	}

	p.printBox("BATCH SUMMARY", lines)
}

// PrintConsistency outputs the repeated-run scores of each document and an overall verdict.
func (p *Printer) PrintConsistency(reports []types.ConsistencyReport, tolerance int) {
	if len(reports) == 0 {
		return
	}

	var lines []boxLine
	allPassed := true
	for i, r := range reports {
		name := fmt.Sprintf("Row %d", r.Position)
		if r.Label != "" {
			name += " (" + r.Label + ")"
		}
		scores := make([]string, len(r.Scores))
		for j, s := range r.Scores {
			scores[j] = s.String()
		}
		lines = append(lines,
			boxLine{text: name},
			boxLine{text: "  Scores: " + strings.Join(scores, ", ")},
			boxLine{text: fmt.Sprintf("  Mean %.1f  Spread %d", r.Mean, r.Spread)},
		)
		if r.Passed {
			lines = append(lines, boxLine{text: "  ✓ consistent", style: p.ui.ok})
		} else {
			allPassed = false
			lines = append(lines, boxLine{text: fmt.Sprintf("  ✗ spread over %d or errored runs", tolerance), style: p.ui.err})
		}
		if i < len(reports)-1 {
			lines = append(lines, boxLine{})
		}
	}

	lines = append(lines, boxLine{})
	if allPassed {
		lines = append(lines, boxLine{text: "PASS: scores are consistent", style: p.ui.ok})
	} else {
		lines = append(lines, boxLine{text: "FAIL: scores vary between runs", style: p.ui.err})
	}
	p.printBox("SCORE CONSISTENCY", lines)
}

// PrintResult outputs one evaluation with its criterion breakdown.
func (p *Printer) PrintResult(label string, result *types.EvaluationResult, feedback string) {
	if result == nil {
		return
	}

	style := p.ui.ok
	if result.IsError() {
		style = p.ui.err
	}
	lines := []boxLine{}
	if label != "" {
		lines = append(lines, boxLine{text: "Student: " + label})
	}
	lines = append(lines, boxLine{text: "Score:   " + result.TotalScore.String(), style: style})

	if len(result.Breakdown) > 0 {
		keys := make([]string, 0, len(result.Breakdown))
		for k := range result.Breakdown {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines = append(lines, boxLine{}, boxLine{text: "Breakdown:"})
		for _, k := range keys {
			lines = append(lines, boxLine{text: fmt.Sprintf("  %-20s %3d", k, result.Breakdown[k])})
		}
	}
	if feedback != "" {
		lines = append(lines, boxLine{}, boxLine{text: feedback, style: p.ui.dim})
	}

	p.printBox("EVALUATION RESULT", lines)
}

// PrintCheck outputs one self-check step.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintCheck(step string, err error) {
	if err != nil {
		fmt.Fprintf(p.out, "%s %s: %v\n", p.ui.err("✗"), step, err)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.ui.ok("✓"), step)
}
