package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	warns  []map[string]interface{}
	errors []map[string]interface{}
}

func (l *recordingLogger) Warn(msg string, fields map[string]interface{}) {
	l.warns = append(l.warns, fields)
}

func (l *recordingLogger) Error(msg string, fields map[string]interface{}) {
	l.errors = append(l.errors, fields)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeSegmentNotSelected, http.StatusBadRequest},
		{ErrCodeInvalidTransition, http.StatusConflict},
		{ErrCodeAdvanceInProgress, http.StatusConflict},
		{ErrCodeSessionNotFound, http.StatusNotFound},
		{ErrCodeProviderError, http.StatusInternalServerError},
		{ErrCodeProviderTimeout, http.StatusInternalServerError},
		{ErrCodeParseFailure, http.StatusInternalServerError},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeStageAbandoned, http.StatusRequestTimeout},
		{ErrCodeSessionStore, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

func TestNewProviderError(t *testing.T) {
	err := NewProviderError(http.StatusTooManyRequests, `{"error":"rate limited"}`, nil)

	assert.Equal(t, ErrCodeProviderError, err.Code)
	assert.Contains(t, err.Message, "429")
	assert.Equal(t, `{"error":"rate limited"}`, err.Details)
	assert.True(t, err.Retryable)
	assert.Equal(t, 429, err.Metadata["status"])

	notRetryable := NewProviderError(http.StatusUnauthorized, "bad key", nil)
	assert.False(t, notRetryable.Retryable)
}

func TestRetryableFollowsCode(t *testing.T) {
	assert.True(t, NewProviderTimeoutError(nil).Retryable)
	assert.True(t, NewAdvanceInProgressError(nil).Retryable)
	assert.True(t, NewSessionStoreError("s1", stderrors.New("down")).Retryable)
	assert.False(t, NewInvalidInputError("x", nil).Retryable)
	assert.False(t, NewSessionNotFoundError("s1").Retryable)
	assert.False(t, NewInternalError(nil).Retryable)
}

func TestNewStageAbandonedError(t *testing.T) {
	err := NewStageAbandonedError("enhanced", context.Canceled)

	assert.Equal(t, ErrCodeStageAbandoned, err.Code)
	assert.Equal(t, "stage enhanced abandoned", err.Details)
	assert.Equal(t, "enhanced", err.Metadata["stage"])
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Equal(t, "STATE", GetErrorCategory(err.Code))
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	sentinel := stderrors.New("out of order")
	wrapped := fmt.Errorf("advance: %w", NewInvalidTransitionError("idle", "enhanced", sentinel))
	got := Normalize(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeInvalidTransition, got.Code)
	assert.True(t, stderrors.Is(got, sentinel))

	plain := Normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, "boom", plain.Details)
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "PROVIDER", GetErrorCategory(ErrCodeProviderTimeout))
	assert.Equal(t, "PARSE", GetErrorCategory(ErrCodeParseFailure))
	assert.Equal(t, "STATE", GetErrorCategory(ErrCodeInvalidTransition))
	assert.Equal(t, "STATE", GetErrorCategory(ErrCodeAdvanceInProgress))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidInput))
	assert.Equal(t, "SESSION", GetErrorCategory(ErrCodeSessionNotFound))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestErrorHandler_Handle(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	status, body := h.Handle(context.Background(), "/api/sales-nav", NewInvalidInputError("segmentInfo must be a string", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", body.Code)
	assert.Equal(t, "segmentInfo must be a string", body.Details)
	assert.Len(t, log.warns, 1)
	assert.Empty(t, log.errors)

	status, body = h.Handle(context.Background(), "/api/sales-nav", stderrors.New("kaboom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.Len(t, log.errors, 1)
	assert.Equal(t, "/api/sales-nav", log.errors[0]["route"])
}

func TestErrorHandler_AbandonedStageStaysTyped(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fmt.Errorf("advance: %w", NewStageAbandonedError("segments", ctx.Err()))

	status, body := h.Handle(ctx, "/api/sessions/:id/advance", err)
	assert.Equal(t, http.StatusRequestTimeout, status)
	assert.Equal(t, "STAGE_ABANDONED", body.Code)
	assert.Equal(t, "Stage result discarded", body.Error)
	require.Len(t, log.warns, 1)
	assert.Equal(t, "context canceled", log.warns[0]["contextErr"])
	assert.Equal(t, true, log.warns[0]["retryable"])
}
