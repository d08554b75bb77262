// Package main provides the entry point for the auto-evaluator batch grader.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/auto-evaluator/internal/db"
	"github.com/jonathan/auto-evaluator/internal/observability"
	"github.com/jonathan/auto-evaluator/internal/pipeline"
)

var rootCmd = &cobra.Command{
	Use:   "auto_evaluator",
	Short: "Grade Google Docs listed in a Google Sheet",
	Long: `Reads document links from a Google Sheet, grades each document against the rubric with the
configured model, and writes the score and feedback back to the sheet.

Configuration comes from the environment (and .env), optionally a config file given with
--config, and the flags below, in increasing order of precedence.`,
	SilenceUsage: true,
	RunE:         runBatchCmd,
}

var (
	configPath  string
	logLevel    string
	rubricPath  string
	startRow    int
	workers     int
	noProgress  bool
	lookupTitle bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (defaults to LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&rubricPath, "rubric", "", "Path to a rubric file (defaults to RUBRIC_FILE, then the built-in rubric)")

	rootCmd.Flags().IntVar(&startRow, "start-row", 2, "First sheet row to process")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent documents (defaults to MAX_WORKERS)")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	rootCmd.Flags().BoolVar(&lookupTitle, "titles", false, "Log each document's Drive title before grading")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runBatchCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// A second signal terminates immediately.
		stop()
	}()

	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.Flags().Changed("start-row") {
		a.cfg.StartRow = startRow
	}

	ws, err := a.workspaceClient()
	if err != nil {
		return err
	}
	grader, err := a.evaluator(ctx)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Workers:      a.cfg.MaxWorkers,
		LookupTitles: lookupTitle,
		Logger:       a.logger,
		Metrics:      a.metrics,
		RunInput: db.RunInput{
			SpreadsheetID: a.cfg.SpreadsheetID,
			SheetName:     a.cfg.SheetName,
			Provider:      string(a.llmConfig().Provider),
			Model:         a.llmConfig().Model,
			RubricName:    grader.Rubric().Name,
		},
	}
	if store := a.auditStore(ctx); store != nil {
		opts.Audit = store
	}
	var progress *progressReporter
	if !noProgress {
		progress = newProgressReporter(os.Stderr)
		opts.OnProgress = progress.Update
	}

	orchestrator, err := pipeline.New(ws, grader, opts)
	if err != nil {
		return err
	}

	a.logger.Info("starting batch", "spreadsheet_id", a.cfg.SpreadsheetID, "start_row", a.cfg.StartRow,
		"workers", a.cfg.MaxWorkers, "provider", opts.RunInput.Provider, "model", opts.RunInput.Model,
		"log_file", a.logPath)
	summary, batchErr := orchestrator.RunBatch(ctx, a.cfg.StartRow)
	progress.Finish()

	if summary != nil {
		observability.NewPrinter(os.Stdout).PrintSummary(*summary)
	}
	a.pushMetrics()

	if batchErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("batch interrupted: %w", batchErr)
		}
		return batchErr
	}
	return nil
}

// pushMetrics sends the batch metrics when a Pushgateway is configured.
func (a *app) pushMetrics() {
	if a.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.metrics.Push(ctx, a.cfg.PushgatewayURL, "auto_evaluator"); err != nil {
		a.logger.Warn("failed to push metrics", "error", err)
	}
}
