// Package config provides configuration loading and validation for the evaluator.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Provider names accepted in AI_PROVIDER.
const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
)

// Config is the process-wide configuration. It is built once at startup and passed by
// value into each component's constructor.
type Config struct {
	// Grading provider
	Provider      string `mapstructure:"ai_provider" validate:"oneof=gemini openai deepseek"`
	GeminiAPIKey  string `mapstructure:"gemini_api_key"`
	GeminiModel   string `mapstructure:"gemini_model" validate:"required"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIModel   string `mapstructure:"openai_model" validate:"required"`
	OpenAIBaseURL string `mapstructure:"openai_base_url" validate:"omitempty,url"`

	// Spreadsheet and credentials
	SpreadsheetID      string `mapstructure:"spreadsheet_id" validate:"required"`
	SheetName          string `mapstructure:"sheet_name"`
	ServiceAccountFile string `mapstructure:"service_account_file"`
	ServiceAccountJSON string `mapstructure:"gcp_service_account"` // Inline JSON, wins over the file

	// Column roles
	DocLinkColumn  string `mapstructure:"doc_link_column" validate:"required,alpha"`
	LabelColumn    string `mapstructure:"student_name_column" validate:"required,alpha"`
	ScoreColumn    string `mapstructure:"score_column" validate:"required,alpha"`
	FeedbackColumn string `mapstructure:"feedback_column" validate:"required,alpha"`

	// Processing
	StartRow               int           `mapstructure:"start_row" validate:"min=1"`
	MaxWorkers             int           `mapstructure:"max_workers" validate:"min=1,max=64"`
	RetryAttempts          int           `mapstructure:"retry_attempts" validate:"min=1,max=10"`
	RequestTimeout         time.Duration `mapstructure:"request_timeout"`
	IncludePlagiarismCheck bool          `mapstructure:"include_plagiarism_check"`
	RubricFile             string        `mapstructure:"rubric_file"`
	DocCacheSize           int           `mapstructure:"doc_cache_size" validate:"min=0"`

	// Logging
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=text json"`
	LogsDir   string `mapstructure:"logs_dir"`

	// Optional sinks
	DatabaseURL    string `mapstructure:"database_url"`
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url"`
}

// Defaults returns the configuration used when neither a file nor the environment sets a value.
func Defaults() Config {
	return Config{
		Provider:               ProviderGemini,
		GeminiModel:            "gemini-1.5-flash",
		OpenAIModel:            "gpt-4-turbo-preview",
		SheetName:              "",
		ServiceAccountFile:     "credentials/service_account.json",
		DocLinkColumn:          "A",
		LabelColumn:            "B",
		ScoreColumn:            "C",
		FeedbackColumn:         "D",
		StartRow:               2,
		MaxWorkers:             5,
		RetryAttempts:          3,
		RequestTimeout:         60 * time.Second,
		IncludePlagiarismCheck: true,
		DocCacheSize:           256,
		LogLevel:               "info",
		LogFormat:              "text",
		LogsDir:                "logs",
	}
}

// Load reads configuration from defaults, an optional config file, and the environment,
// in increasing order of precedence. Call godotenv.Load before Load to pick up a .env file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("ai_provider", d.Provider)
	v.SetDefault("gemini_api_key", d.GeminiAPIKey)
	v.SetDefault("gemini_model", d.GeminiModel)
	v.SetDefault("openai_api_key", d.OpenAIAPIKey)
	v.SetDefault("openai_model", d.OpenAIModel)
	v.SetDefault("openai_base_url", d.OpenAIBaseURL)
	v.SetDefault("spreadsheet_id", d.SpreadsheetID)
	v.SetDefault("sheet_name", d.SheetName)
	v.SetDefault("service_account_file", d.ServiceAccountFile)
	v.SetDefault("gcp_service_account", d.ServiceAccountJSON)
	v.SetDefault("doc_link_column", d.DocLinkColumn)
	v.SetDefault("student_name_column", d.LabelColumn)
	v.SetDefault("score_column", d.ScoreColumn)
	v.SetDefault("feedback_column", d.FeedbackColumn)
	v.SetDefault("start_row", d.StartRow)
	v.SetDefault("max_workers", d.MaxWorkers)
	v.SetDefault("retry_attempts", d.RetryAttempts)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("include_plagiarism_check", d.IncludePlagiarismCheck)
	v.SetDefault("rubric_file", d.RubricFile)
	v.SetDefault("doc_cache_size", d.DocCacheSize)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("logs_dir", d.LogsDir)
	v.SetDefault("database_url", d.DatabaseURL)
	v.SetDefault("pushgateway_url", d.PushgatewayURL)
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.DocLinkColumn = strings.ToUpper(strings.TrimSpace(c.DocLinkColumn))
	c.LabelColumn = strings.ToUpper(strings.TrimSpace(c.LabelColumn))
	c.ScoreColumn = strings.ToUpper(strings.TrimSpace(c.ScoreColumn))
	c.FeedbackColumn = strings.ToUpper(strings.TrimSpace(c.FeedbackColumn))
}

var validate = validator.New()

// Validate checks every field and reports all problems in one error.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config error: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			problems = append(problems, "GEMINI_API_KEY not set (AI_PROVIDER is 'gemini')")
		}
	case ProviderOpenAI, ProviderDeepSeek:
		if c.OpenAIAPIKey == "" {
			problems = append(problems, fmt.Sprintf("OPENAI_API_KEY not set (AI_PROVIDER is '%s')", c.Provider))
		}
	}

	if c.RequestTimeout <= 0 {
		problems = append(problems, "REQUEST_TIMEOUT must be positive")
	}

	if c.ScoreColumn != "" && c.FeedbackColumn != "" {
		if ColumnIndex(c.FeedbackColumn) != ColumnIndex(c.ScoreColumn)+1 {
			problems = append(problems, fmt.Sprintf("FEEDBACK_COLUMN (%s) must directly follow SCORE_COLUMN (%s)", c.FeedbackColumn, c.ScoreColumn))
		}
	}
	if c.DocLinkColumn != "" && c.LabelColumn != "" && ColumnIndex(c.LabelColumn) < ColumnIndex(c.DocLinkColumn) {
		problems = append(problems, fmt.Sprintf("STUDENT_NAME_COLUMN (%s) must not precede DOC_LINK_COLUMN (%s)", c.LabelColumn, c.DocLinkColumn))
	}

	if c.ServiceAccountJSON == "" {
		if c.ServiceAccountFile == "" {
			problems = append(problems, "SERVICE_ACCOUNT_FILE not set")
		} else if _, err := os.Stat(c.ServiceAccountFile); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("Service account file not found: %s", c.ServiceAccountFile))
		}
	}

	if c.RubricFile != "" {
		if _, err := os.Stat(c.RubricFile); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("Rubric file not found: %s", c.RubricFile))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	name := envName(fe.StructField())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s not set", name)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fe.Value())
	case "alpha":
		return fmt.Sprintf("%s must be a column letter, got %q", name, fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", name, fe.Value())
	case "min", "max":
		return fmt.Sprintf("%s must satisfy %s=%s, got %v", name, fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}

func envName(field string) string {
	if f, ok := configFieldEnv[field]; ok {
		return f
	}
	return field
}

var configFieldEnv = map[string]string{
	"Provider":       "AI_PROVIDER",
	"GeminiModel":    "GEMINI_MODEL",
	"OpenAIModel":    "OPENAI_MODEL",
	"OpenAIBaseURL":  "OPENAI_BASE_URL",
	"SpreadsheetID":  "SPREADSHEET_ID",
	"DocLinkColumn":  "DOC_LINK_COLUMN",
	"LabelColumn":    "STUDENT_NAME_COLUMN",
	"ScoreColumn":    "SCORE_COLUMN",
	"FeedbackColumn": "FEEDBACK_COLUMN",
	"StartRow":       "START_ROW",
	"MaxWorkers":     "MAX_WORKERS",
	"RetryAttempts":  "RETRY_ATTEMPTS",
	"DocCacheSize":   "DOC_CACHE_SIZE",
	"LogLevel":       "LOG_LEVEL",
	"LogFormat":      "LOG_FORMAT",
	"PushgatewayURL": "PUSHGATEWAY_URL",
}

// ColumnIndex converts a column letter sequence (A, Z, AA) to a 1-based index.
// Returns 0 for anything that is not letters.
func ColumnIndex(col string) int {
	idx := 0
	for _, r := range strings.ToUpper(col) {
		if r < 'A' || r > 'Z' {
			return 0
		}
		idx = idx*26 + int(r-'A'+1)
	}
	return idx
}
