// Package llm provides the grading-model clients. One Client interface covers Gemini and
// the OpenAI-compatible chat APIs (OpenAI, DeepSeek, Perplexity).
package llm

import (
	"strings"
	"time"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is OpenAI or any API speaking its chat-completions protocol
	ProviderOpenAI Provider = "openai"
	// ProviderDeepSeek is DeepSeek's OpenAI-compatible endpoint
	ProviderDeepSeek Provider = "deepseek"
	// ProviderPerplexity is selected implicitly by a pplx- API key
	ProviderPerplexity Provider = "perplexity"
)

// Base URLs for the OpenAI-compatible providers.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	DeepSeekBaseURL   = "https://api.deepseek.com"
	PerplexityBaseURL = "https://api.perplexity.ai"

	perplexityKeyPrefix = "pplx-"
)

// DefaultTimeout bounds a single grading call.
const DefaultTimeout = 60 * time.Second

// Config holds the resolved settings for one grading client.
type Config struct {
	Provider Provider
	Model    string
	APIKey   string
	BaseURL  string
	// JSONMode asks the provider to constrain output to a JSON object. DeepSeek and
	// Perplexity do not accept the parameter.
	JSONMode bool
	Timeout  time.Duration
}

// ResolveConfig turns the configured provider name, key, model and optional base URL into
// a client Config. A pplx- key under the openai provider selects Perplexity.
func ResolveConfig(provider, apiKey, model, baseURL string, timeout time.Duration) *Config {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cfg := &Config{
		Provider: Provider(strings.ToLower(provider)),
		Model:    model,
		APIKey:   apiKey,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Timeout:  timeout,
	}

	switch cfg.Provider {
	case ProviderGemini:
		cfg.JSONMode = true
	case ProviderDeepSeek:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DeepSeekBaseURL
		}
	default:
		if strings.HasPrefix(apiKey, perplexityKeyPrefix) {
			cfg.Provider = ProviderPerplexity
			if cfg.BaseURL == "" {
				cfg.BaseURL = PerplexityBaseURL
			}
			break
		}
		cfg.Provider = ProviderOpenAI
		cfg.JSONMode = true
		if cfg.BaseURL == "" {
			cfg.BaseURL = OpenAIBaseURL
		}
	}
	return cfg
}
