package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"segment-research/internal/common/config"
	apperrors "segment-research/internal/common/errors"
	"segment-research/internal/common/logger"
	"segment-research/internal/common/metrics"
	"segment-research/internal/common/observability"
)

// StageRunner runs a single stage and always returns a terminal result.
type StageRunner interface {
	RunStage(ctx context.Context, stage Stage, in StageInput) StageResult
}

// Executor builds the prompt for a stage, calls the provider and cleans up
// the response. It is the only place provider and parse errors are turned
// into StageResults.
type Executor struct {
	provider CompletionProvider
	prompts  *PromptBuilder
	cfg      config.ProviderConfig
	logger   logger.Logger
}

func NewExecutor(provider CompletionProvider, prompts *PromptBuilder, cfg config.ProviderConfig, log logger.Logger) *Executor {
	return &Executor{
		provider: provider,
		prompts:  prompts,
		cfg:      cfg,
		logger:   log.With(map[string]interface{}{"component": "executor"}),
	}
}

func (e *Executor) RunStage(ctx context.Context, stage Stage, in StageInput) (result StageResult) {
	start := time.Now()
	result.Stage = stage
	log := e.logger.With(map[string]interface{}{"stage": string(stage)})

	ctx, span := observability.StartSpan(ctx, "pipeline.run_stage", attribute.String("stage", string(stage)))
	metrics.StagesRunning.WithLabelValues(string(stage)).Inc()
	fellBack := false

	defer func() {
		if r := recover(); r != nil {
			result = failedResult(stage, apperrors.NewInternalError(fmt.Errorf("panic: %v", r)))
			log.Error("stage panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
		result.Duration = time.Since(start)

		status := "succeeded"
		switch {
		case !result.Succeeded:
			status = "failed"
			span.SetStatus(codes.Error, result.ErrorMessage)
		case fellBack:
			status = "fallback"
		}
		metrics.StagesRunning.WithLabelValues(string(stage)).Dec()
		metrics.StageRunsTotal.WithLabelValues(string(stage), status).Inc()
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(result.Duration.Seconds())
		span.SetAttributes(attribute.String("status", status))
		span.End()

		log.Info("stage finished", map[string]interface{}{
			"status":     status,
			"durationMs": result.Duration.Milliseconds(),
			"errorCode":  result.ErrorCode,
		})
	}()

	prompt, err := e.prompts.Build(stage, in)
	if err != nil {
		return failedResult(stage, classify(ctx, err))
	}
	result.Title = prompt.Title

	if prompt.Truncated {
		msg := fmt.Sprintf("input truncated from %d to %d characters", prompt.InputLength, e.prompts.inputLimit)
		result.Truncated = true
		result.Warnings = append(result.Warnings, msg)
		metrics.InputTruncationsTotal.WithLabelValues(string(stage)).Inc()
		log.Warn("stage input truncated", map[string]interface{}{
			"inputLength": prompt.InputLength,
			"limit":       e.prompts.inputLimit,
		})
	}

	sc := e.cfg.Stage(string(stage))
	opts := CompletionOptions{
		Model:       sc.Model,
		MaxTokens:   sc.MaxTokens,
		Temperature: sc.Temperature,
		Streaming:   false,
		Title:       sc.Title,
	}

	log.Info("stage started", map[string]interface{}{
		"model":        opts.Model,
		"maxTokens":    opts.MaxTokens,
		"promptLength": len(prompt.Text),
	})

	raw, err := e.provider.Complete(ctx, prompt.Text, opts)
	if err != nil {
		return withWarnings(failedResult(stage, classify(ctx, err)), result.Warnings)
	}

	cleaned := Sanitize(raw)
	if strings.TrimSpace(cleaned) == "" {
		return withWarnings(failedResult(stage, apperrors.NewProviderError(0, "empty completion", nil)), result.Warnings)
	}

	result.Succeeded = true
	if stage != StageSalesNav {
		result.Text = cleaned
		return result
	}

	segments, err := ParseStructured(cleaned)
	if err != nil {
		parseErr := apperrors.NewParseFailureError(cleaned, err)
		fellBack = true
		metrics.ParseFallbacksTotal.Inc()
		log.Warn("sales navigator response is not a segment list, returning raw text", map[string]interface{}{
			"error":     err,
			"rawLength": len(cleaned),
		})
		result.Text = cleaned
		result.Warnings = append(result.Warnings, parseErr.Message)
		return result
	}

	result.Structured = segments
	result.Text = FormatSegments(segments)
	if result.Text == "" {
		pretty, _ := json.MarshalIndent(segments, "", "  ")
		result.Text = string(pretty)
	}
	return result
}

func failedResult(stage Stage, err *apperrors.StandardError) StageResult {
	return StageResult{
		Stage:        stage,
		Succeeded:    false,
		ErrorMessage: err.Message,
		ErrorCode:    string(err.Code),
		ErrorDetails: err.Details,
	}
}

func withWarnings(r StageResult, warnings []string) StageResult {
	r.Warnings = warnings
	return r
}

// classify maps an error from prompt building or the provider onto the
// shared error taxonomy.
func classify(ctx context.Context, err error) *apperrors.StandardError {
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	if errors.Is(err, ErrInvalidInput) {
		return apperrors.NewInvalidInputError(err.Error(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewProviderTimeoutError(err)
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		body := provErr.Body
		if body == "" && provErr.Err != nil {
			body = provErr.Err.Error()
		}
		return apperrors.NewProviderError(provErr.StatusCode, body, err)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.NewProviderError(0, "request cancelled", err)
	}
	return apperrors.NewInternalError(err)
}
