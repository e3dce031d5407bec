package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"segment-research/internal/common/config"
	"segment-research/internal/common/logger"
)

func TestRecordRequest_NilSafe(t *testing.T) {
	var obs *Observability
	assert.NotPanics(t, func() {
		obs.RecordRequest(context.Background(), "/api/sessions", 201, time.Millisecond)
		obs.Shutdown()
	})
	assert.NotPanics(t, func() {
		(&Observability{}).RecordRequest(context.Background(), "/health", 200, 0)
	})
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown := InitTracing(context.Background(), logger.NewTestLogger(t), config.AppConfig{Name: "segment-research"}, config.TelemetryConfig{})
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_StdoutExporter(t *testing.T) {
	shutdown := InitTracing(context.Background(), logger.NewTestLogger(t),
		config.AppConfig{Name: "segment-research", Version: "test"},
		config.TelemetryConfig{TracingEnabled: true, SampleRatio: 1},
	)
	ctx, span := StartSpan(context.Background(), "test.span")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, shutdown(ctx))
}
