// Package openrouter implements the chat-completions provider used by the
// pipeline.
package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"segment-research/internal/common/config"
	httpclient "segment-research/internal/common/http"
	"segment-research/internal/common/logger"
	"segment-research/internal/common/metrics"
	"segment-research/internal/common/observability"
	"segment-research/internal/pipeline"
)

const defaultTitle = "Market Segment Research"

var ErrInvalidResponse = errors.New("invalid response format from OpenRouter")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Client calls POST {base_url}/chat/completions.
type Client struct {
	http     *httpclient.Client
	endpoint string
	model    string
	timeout  time.Duration
	logger   logger.Logger
}

func NewClient(cfg config.ProviderConfig, log logger.Logger) *Client {
	return &Client{
		http: httpclient.NewClient(0,
			httpclient.WithHeader("Authorization", "Bearer "+cfg.APIKey),
			httpclient.WithHeader("HTTP-Referer", cfg.Referer),
			httpclient.WithMaxBody(cfg.MaxBody),
		),
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		model:    cfg.Model,
		timeout:  config.GetDuration(cfg.Timeout),
		logger:   log.With(map[string]interface{}{"component": "openrouter"}),
	}
}

var _ pipeline.CompletionProvider = (*Client)(nil)

// Complete sends prompt as a single user message and returns the content of
// the first choice.
func (c *Client) Complete(ctx context.Context, prompt string, opts pipeline.CompletionOptions) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := opts.Model
	if model == "" {
		model = c.model
	}
	title := opts.Title
	if title == "" {
		title = defaultTitle
	}

	ctx, span := observability.StartSpan(ctx, "openrouter.chat_completions",
		attribute.String("model", model),
		attribute.Int("max_tokens", opts.MaxTokens),
	)
	defer span.End()

	req := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Stream:      false,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	start := time.Now()
	status, body, err := c.http.PostJSON(ctx, c.endpoint, req, map[string]string{"X-Title": title})
	metrics.ProviderResponsesTotal.WithLabelValues(metrics.StatusClass(status)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", status))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("provider request failed", map[string]interface{}{
			"error":      err,
			"durationMs": time.Since(start).Milliseconds(),
		})
		return "", &pipeline.ProviderError{StatusCode: status, Err: err}
	}

	if status < 200 || status >= 300 {
		span.SetStatus(codes.Error, "non-2xx response")
		c.logger.Error("OpenRouter error response", map[string]interface{}{
			"status": status,
			"body":   truncate(string(body), 500),
		})
		return "", &pipeline.ProviderError{StatusCode: status, Body: string(body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		span.SetStatus(codes.Error, "undecodable response")
		return "", &pipeline.ProviderError{StatusCode: status, Body: string(body), Err: errors.Join(ErrInvalidResponse, err)}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil {
		span.SetStatus(codes.Error, "missing choices")
		return "", &pipeline.ProviderError{StatusCode: status, Body: string(body), Err: ErrInvalidResponse}
	}

	fields := map[string]interface{}{
		"status":        status,
		"durationMs":    time.Since(start).Milliseconds(),
		"contentLength": len(parsed.Choices[0].Message.Content),
		"finishReason":  parsed.Choices[0].FinishReason,
	}
	if parsed.Usage != nil {
		fields["promptTokens"] = parsed.Usage.PromptTokens
		fields["completionTokens"] = parsed.Usage.CompletionTokens
	}
	c.logger.Debug("provider response received", fields)

	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
