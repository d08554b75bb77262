package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jonathan/auto-evaluator/internal/failure"
)

// OpenAIClient implements Client for the chat-completions protocol shared by OpenAI,
// DeepSeek and Perplexity.
type OpenAIClient struct {
	httpClient *http.Client
	config     *Config
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// Sampling fields are sent even when zero.
type chatCompletionRequest struct {
	Model            string          `json:"model"`
	Messages         []chatMessage   `json:"messages"`
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"top_p"`
	FrequencyPenalty float64         `json:"frequency_penalty"`
	PresencePenalty  float64         `json:"presence_penalty"`
	ResponseFormat   *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg *Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for provider %s", cfg.Provider)
	}
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}, nil
}

// GenerateJSON posts a two-message chat completion with deterministic sampling. The schema
// is not sent; JSONMode only asks for a JSON object, and callers validate the shape.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, req Request) (string, error) {
	op := string(c.config.Provider) + ".chat"

	body := chatCompletionRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}
	if c.config.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", failure.FromRemote(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", failure.FromRemote(op, err)
	}

	var chatResp chatCompletionResponse
	decodeErr := json.Unmarshal(raw, &chatResp)

	if resp.StatusCode != http.StatusOK {
		msg := string(raw)
		if decodeErr == nil && chatResp.Error != nil {
			msg = chatResp.Error.Message
		}
		return "", failure.New(failure.KindFromStatus(resp.StatusCode, nil), op, fmt.Sprintf("status %d: %s", resp.StatusCode, msg), nil)
	}
	if decodeErr != nil {
		return "", failure.New(failure.KindResponseFormat, op, "decode response", decodeErr)
	}
	if chatResp.Error != nil {
		return "", failure.New(failure.KindUnknown, op, chatResp.Error.Message, nil)
	}
	if len(chatResp.Choices) == 0 {
		return "", failure.New(failure.KindResponseFormat, op, "no choices in response", nil)
	}

	return CleanJSONBlock(chatResp.Choices[0].Message.Content), nil
}

// Model returns the configured model name
func (c *OpenAIClient) Model() string {
	return c.config.Model
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (c *OpenAIClient) Close() error {
	return nil
}
