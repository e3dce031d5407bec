package pipeline

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("INVALID_INPUT")
	ErrInvalidTransition  = errors.New("INVALID_TRANSITION")
	ErrAdvanceInProgress  = errors.New("ADVANCE_IN_PROGRESS")
	ErrSegmentNotSelected = errors.New("SEGMENT_NOT_SELECTED")
)

// CompletionOptions are the generation parameters sent with a prompt.
type CompletionOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Streaming   bool
	// Title is forwarded as the X-Title attribution header.
	Title string
}

// CompletionProvider turns a prompt into completion text.
type CompletionProvider interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// ProviderFunc adapts a plain function to CompletionProvider.
type ProviderFunc func(ctx context.Context, prompt string, opts CompletionOptions) (string, error)

func (f ProviderFunc) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	return f(ctx, prompt, opts)
}

// ProviderError is a non-2xx answer or transport failure from the provider.
// StatusCode is 0 when no HTTP response was received.
type ProviderError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("completion provider unreachable: %v", e.Err)
		}
		return fmt.Sprintf("completion provider failed: %s", e.Body)
	}
	if e.Body == "" {
		return fmt.Sprintf("OpenRouter API error: %d", e.StatusCode)
	}
	return fmt.Sprintf("OpenRouter API error: %d, %s", e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Err }
