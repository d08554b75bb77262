package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/auto-evaluator/internal/failure"
	"github.com/jonathan/auto-evaluator/internal/observability"
	"github.com/jonathan/auto-evaluator/internal/types"
	"github.com/jonathan/auto-evaluator/internal/workspace"
)

var checkCommand = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration, sheet access and document access",
	Long: `Runs the batch setup without writing anything: validates configuration, loads the rubric,
creates the grading client, reads the first data row and fetches its document.

With --evaluate the fetched document is also graded once and the result printed.`,
	SilenceUsage: true,
	RunE:         runCheckCmd,
}

var (
	checkEvaluate bool
	checkRow      int
)

func init() {
	checkCommand.Flags().BoolVar(&checkEvaluate, "evaluate", false, "Grade the first document once")
	checkCommand.Flags().IntVar(&checkRow, "row", 2, "Sheet row to check")

	rootCmd.AddCommand(checkCommand)
}

func runCheckCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	printer := observability.NewPrinter(os.Stdout)

	a, err := newApp(cmd, false)
	printer.PrintCheck("Configuration", err)
	if err != nil {
		return errors.New("check failed")
	}
	defer a.Close()

	grader, err := a.evaluator(ctx)
	if err == nil {
		r := grader.Rubric()
		printer.PrintCheck(fmt.Sprintf("Rubric %q (%d criteria, %d points)", r.Name, len(r.Criteria), r.TotalPoints), nil)
		printer.PrintCheck(fmt.Sprintf("Grading client (%s)", a.llmConfig().Model), nil)
	} else {
		printer.PrintCheck("Rubric and grading client", err)
	}

	ws, err := a.workspaceClient()
	if err != nil {
		printer.PrintCheck("Service account credentials", err)
		return errors.New("check failed")
	}

	items, err := ws.ReadWorkItems(ctx, checkRow)
	if err != nil {
		printer.PrintCheck("Sheet access", describe(err))
		return errors.New("check failed")
	}
	if len(items) == 0 || items[0].Reference == "" {
		printer.PrintCheck("Sheet access", fmt.Errorf("row %d has no document link", checkRow))
		return errors.New("check failed")
	}
	item := items[0]
	printer.PrintCheck(fmt.Sprintf("Sheet access (%d rows from row %d)", len(items), checkRow), nil)

	docID, ok := workspace.ResolveDocumentID(item.Reference)
	if !ok {
		printer.PrintCheck("Document link", fmt.Errorf("cannot resolve %q", item.Reference))
		return errors.New("check failed")
	}
	if meta, err := ws.DocumentMetadata(ctx, docID); err == nil {
		printer.PrintCheck(fmt.Sprintf("Drive metadata (%s, modified %s)", meta.Name, meta.ModifiedTime.Format("2006-01-02")), nil)
	} else {
		printer.PrintCheck("Drive metadata", describe(err))
	}

	text, err := ws.FetchDocumentText(ctx, docID)
	if err != nil {
		printer.PrintCheck("Document access", describe(err))
		return errors.New("check failed")
	}
	printer.PrintCheck(fmt.Sprintf("Document access (%d characters)", len([]rune(text))), nil)

	if grader == nil {
		return errors.New("check failed")
	}
	if !checkEvaluate {
		return nil
	}
	result, err := grader.Evaluate(ctx, text, item.Label)
	if err != nil {
		return err
	}
	if !result.IsError() {
		if err := grader.Rubric().CheckBreakdown(result.Breakdown); err != nil {
			printer.PrintCheck("Breakdown matches rubric", err)
		}
	}
	printer.PrintResult(item.Label, result, grader.FormatFeedback(result))
	if result.IsError() {
		return fmt.Errorf("evaluation returned %s", types.ScoreTextError)
	}
	return nil
}

// describe prefixes classified failures with their kind.
func describe(err error) error {
	kind := failure.KindOf(err)
	if kind == failure.KindUnknown {
		return err
	}
	return fmt.Errorf("[%s] %w", kind, err)
}
