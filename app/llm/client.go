// Package llm talks to OpenAI-compatible chat completion endpoints
// (OpenAI, OpenRouter, local gateways) and decodes schema-constrained replies.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64 // nil = use default (0.2)
	MaxTokens   *int     // nil = use default (4000)
	MaxRetries  int      // attempts for retryable failures, 0 = 3
	Title       string   // X-Title header for dashboards
	HTTPClient  *http.Client
}

type Client struct {
	config     Config
	httpClient *http.Client
	wait       func(ctx context.Context, d time.Duration) error
}

func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		defaultTemp := 0.2
		config.Temperature = &defaultTemp
	}
	if config.MaxTokens == nil {
		defaultTokens := 4000
		config.MaxTokens = &defaultTokens
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 180 * time.Second}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		wait:       sleepContext,
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Schema constrains the model reply to a named JSON schema.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// Request is a single instruction + input exchange.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Schema       *Schema
	WebSearch    bool
	Temperature  *float64
	MaxTokens    *int
}

type Response struct {
	Content string
	Model   string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Strict      bool           `json:"strict"`
	Schema      map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type plugin struct {
	ID string `json:"id"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Plugins        []plugin        `json:"plugins,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// APIError is a non-2xx reply from the completion endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.Status, e.Body)
}

// Complete sends one chat completion, retrying transient failures.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.config.APIKey == "" {
		return nil, newsletter.ConfigurationErrorf("LLM API key not configured")
	}

	temperature := *c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := *c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	messages := []message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	body := chatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.Schema != nil {
		body.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:        req.Schema.Name,
				Description: req.Schema.Description,
				Strict:      true,
				Schema:      req.Schema.Definition,
			},
		}
	}
	if req.WebSearch {
		body.Plugins = []plugin{{ID: "web"}}
	}

	slog.Debug("LLM request", "model", body.Model, "temperature", temperature, "max_tokens", maxTokens,
		"schema", schemaName(req.Schema), "web_search", req.WebSearch)

	var resp *chatCompletionResponse
	var err error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			slog.Debug("Retrying LLM request", "attempt", attempt, "delay", delay)
			if werr := c.wait(ctx, delay); werr != nil {
				return nil, errors.Wrapf(werr, "LLM retry aborted after %d attempts: %v", attempt, err)
			}
		}

		resp, err = c.createChatCompletion(ctx, body)
		if err == nil {
			break
		}

		slog.Warn("LLM API error", "attempt", attempt+1, "max_retries", c.config.MaxRetries, "error", err)
		if ctx.Err() != nil || !isRetryable(err) {
			return nil, errors.Wrap(err, "LLM API error")
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "LLM API error after %d attempts", c.config.MaxRetries)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices from LLM")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	slog.Debug("LLM response", "content_length", len(content),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason)

	return &Response{Content: content, Model: resp.Model, Usage: resp.Usage}, nil
}

// CompleteJSON runs Complete and decodes the reply into out.
func (c *Client) CompleteJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp.Content, out)
}

// DecodeJSON decodes a model reply, tolerating a surrounding markdown fence.
func DecodeJSON(content string, out any) error {
	content = stripFence(content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return errors.Mark(errors.Wrap(err, "model reply is not valid JSON for the requested schema"), newsletter.ErrSchemaViolation)
	}
	return nil
}

func (c *Client) createChatCompletion(ctx context.Context, body chatCompletionRequest) (*chatCompletionResponse, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if c.config.Title != "" {
		httpReq.Header.Set("X-Title", c.config.Title)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, newsletter.MarkNetwork(errors.Wrap(err, "failed to send request"))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newsletter.MarkNetwork(errors.Wrap(err, "failed to read response"))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Mark(&APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}, newsletter.ErrProvider)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}

	return &chatResp, nil
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	return errors.Is(err, newsletter.ErrNetwork)
}

func stripFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func schemaName(s *Schema) string {
	if s == nil {
		return ""
	}
	return s.Name
}
