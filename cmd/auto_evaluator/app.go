package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/auto-evaluator/internal/config"
	"github.com/jonathan/auto-evaluator/internal/db"
	"github.com/jonathan/auto-evaluator/internal/evaluation"
	"github.com/jonathan/auto-evaluator/internal/llm"
	"github.com/jonathan/auto-evaluator/internal/logging"
	"github.com/jonathan/auto-evaluator/internal/observability"
	"github.com/jonathan/auto-evaluator/internal/rubric"
	"github.com/jonathan/auto-evaluator/internal/workspace"
)

// app holds the configuration and the shared resources of one command invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	logPath string
	metrics *observability.Metrics

	closers []func()
}

// newApp loads and validates configuration, then sets up logging. withMetrics creates the
// batch collectors when a Pushgateway is configured.
func newApp(cmd *cobra.Command, withMetrics bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, logPath, closeLog, err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Dir:    cfg.LogsDir,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, logPath: logPath}
	a.closers = append(a.closers, func() { _ = closeLog() })
	if withMetrics && cfg.PushgatewayURL != "" {
		a.metrics = observability.NewMetrics()
	}
	return a, nil
}

// loadConfig reads configuration and applies flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies explicitly set flags over the loaded configuration.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("rubric") {
		cfg.RubricFile = rubricPath
	}
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		cfg.MaxWorkers = workers
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) llmConfig() *llm.Config {
	return llmConfigFor(a.cfg)
}

// llmConfigFor selects the key, model and base URL of the configured provider.
func llmConfigFor(cfg *config.Config) *llm.Config {
	if cfg.Provider == config.ProviderGemini {
		return llm.ResolveConfig(cfg.Provider, cfg.GeminiAPIKey, cfg.GeminiModel, "", cfg.RequestTimeout)
	}
	return llm.ResolveConfig(cfg.Provider, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.RequestTimeout)
}

// evaluator builds the grading client and the Evaluator over the configured rubric.
func (a *app) evaluator(ctx context.Context) (*evaluation.Evaluator, error) {
	r, err := rubric.Load(a.cfg.RubricFile)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(ctx, a.llmConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create grading client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })

	metrics := a.metrics
	return evaluation.New(evaluation.Options{
		Rubric:                 r,
		Client:                 client,
		RetryAttempts:          a.cfg.RetryAttempts,
		IncludePlagiarismCheck: a.cfg.IncludePlagiarismCheck,
		Logger:                 a.logger,
		OnRetry: func(int, error) {
			metrics.IncRetry("llm.generate")
		},
	})
}

// workspaceClient builds the Sheets/Docs/Drive client from the service account.
func (a *app) workspaceClient() (*workspace.Client, error) {
	creds, err := workspace.LoadCredentialsJSON(a.cfg.ServiceAccountJSON, a.cfg.ServiceAccountFile)
	if err != nil {
		return nil, err
	}

	metrics := a.metrics
	return workspace.NewClient(workspace.ServiceAccountConnector(creds), workspace.Options{
		SpreadsheetID: a.cfg.SpreadsheetID,
		SheetName:     a.cfg.SheetName,
		Columns: workspace.Columns{
			DocLink:  a.cfg.DocLinkColumn,
			Label:    a.cfg.LabelColumn,
			Score:    a.cfg.ScoreColumn,
			Feedback: a.cfg.FeedbackColumn,
		},
		RequestTimeout: a.cfg.RequestTimeout,
		CacheSize:      a.cfg.DocCacheSize,
		DriveFallback:  true,
		Logger:         a.logger,
		OnRetry: func(op string, _ int, _ error) {
			metrics.IncRetry(op)
		},
		OnReconnect: metrics.IncReconnect,
	})
}

// auditStore connects to the audit database when one is configured. Connection problems
// are logged and the batch runs without persistence.
func (a *app) auditStore(ctx context.Context) *db.DB {
	if a.cfg.DatabaseURL == "" {
		return nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	database, err := db.Connect(connectCtx, a.cfg.DatabaseURL)
	if err != nil {
		a.logger.Warn("failed to connect to database, continuing without persistence", "error", err)
		return nil
	}
	if err := database.EnsureSchema(connectCtx); err != nil {
		a.logger.Warn("failed to prepare audit tables, continuing without persistence", "error", err)
		database.Close()
		return nil
	}
	a.closers = append(a.closers, database.Close)
	a.logger.Debug("connected to audit database")
	return database
}
