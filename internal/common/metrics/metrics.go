package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segment_stage_runs_total",
			Help: "Total number of pipeline stage executions by terminal status",
		},
		[]string{"stage", "status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "segment_stage_duration_seconds",
			Help:    "Duration of pipeline stage executions in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		},
		[]string{"stage"},
	)

	StagesRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "segment_stages_running",
			Help: "Number of pipeline stages currently waiting on the provider",
		},
		[]string{"stage"},
	)

	ParseFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segment_sales_nav_parse_fallbacks_total",
			Help: "Sales Navigator responses that could not be parsed and were returned as raw text",
		},
	)

	InputTruncationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segment_stage_input_truncations_total",
			Help: "Stage inputs truncated to the configured character budget",
		},
		[]string{"stage"},
	)

	ProviderResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segment_provider_responses_total",
			Help: "Completion provider responses by HTTP status class",
		},
		[]string{"status_class"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "segment_sessions_active",
			Help: "Number of live pipeline sessions",
		},
	)
)

// StatusClass buckets an HTTP status as 2xx, 4xx, 5xx or transport.
func StatusClass(status int) string {
	switch {
	case status <= 0:
		return "transport"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
