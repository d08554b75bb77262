package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/auto-evaluator/internal/observability"
	"github.com/jonathan/auto-evaluator/internal/types"
	"github.com/jonathan/auto-evaluator/internal/workspace"
)

var consistencyCommand = &cobra.Command{
	Use:   "consistency",
	Short: "Grade the first documents repeatedly and report score spread",
	Long: `Reads the sheet from --start-row, takes the first --docs rows with a document link, and
grades each document --runs times without writing to the sheet. A document passes when every
run returns a score and the spread between the highest and lowest is at most --tolerance.`,
	SilenceUsage: true,
	RunE:         runConsistencyCmd,
}

var (
	consistencyDocs      int
	consistencyRuns      int
	consistencyTolerance int
	consistencyStartRow  int
)

func init() {
	consistencyCommand.Flags().IntVar(&consistencyDocs, "docs", 2, "Number of documents to grade")
	consistencyCommand.Flags().IntVar(&consistencyRuns, "runs", 3, "Evaluations per document")
	consistencyCommand.Flags().IntVar(&consistencyTolerance, "tolerance", types.DefaultConsistencyTolerance, "Largest passing score spread")
	consistencyCommand.Flags().IntVar(&consistencyStartRow, "start-row", 2, "First sheet row to read")

	rootCmd.AddCommand(consistencyCommand)
}

func runConsistencyCmd(cmd *cobra.Command, _ []string) error {
	if consistencyDocs < 1 || consistencyRuns < 2 {
		return fmt.Errorf("--docs must be at least 1 and --runs at least 2")
	}
	ctx := cmd.Context()

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	grader, err := a.evaluator(ctx)
	if err != nil {
		return err
	}
	ws, err := a.workspaceClient()
	if err != nil {
		return err
	}

	items, err := ws.ReadWorkItems(ctx, consistencyStartRow)
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}
	selected := selectDocuments(items, consistencyDocs)
	if len(selected) == 0 {
		return fmt.Errorf("no rows with a document link from row %d", consistencyStartRow)
	}

	var reports []types.ConsistencyReport
	for _, item := range selected {
		docID, _ := workspace.ResolveDocumentID(item.Reference)
		text, err := ws.FetchDocumentText(ctx, docID)
		if err != nil {
			a.logger.Error("failed to fetch document", "row", item.Position, "error", err)
			continue
		}

		scores := make([]types.Score, 0, consistencyRuns)
		for run := 1; run <= consistencyRuns; run++ {
			result, err := grader.Evaluate(ctx, text, item.Label)
			if err != nil {
				return err
			}
			if !result.IsError() {
				if err := grader.Rubric().CheckBreakdown(result.Breakdown); err != nil {
					a.logger.Warn("breakdown does not match rubric", "row", item.Position, "run", run, "error", err)
				}
			}
			a.logger.Info("consistency run", "row", item.Position, "run", run, "score", result.TotalScore.String())
			scores = append(scores, result.TotalScore)
		}
		reports = append(reports, types.NewConsistencyReport(item.Position, item.Label, scores, consistencyTolerance))
	}

	observability.NewPrinter(os.Stdout).PrintConsistency(reports, consistencyTolerance)
	if len(reports) == 0 {
		return fmt.Errorf("no document could be fetched")
	}
	for _, r := range reports {
		if !r.Passed {
			return fmt.Errorf("scores varied by more than %d points", consistencyTolerance)
		}
	}
	return nil
}

// selectDocuments returns the first n items whose reference resolves to a document ID.
func selectDocuments(items []types.WorkItem, n int) []types.WorkItem {
	var out []types.WorkItem
	for _, item := range items {
		if len(out) == n {
			break
		}
		if _, ok := workspace.ResolveDocumentID(item.Reference); ok {
			out = append(out, item)
		}
	}
	return out
}
