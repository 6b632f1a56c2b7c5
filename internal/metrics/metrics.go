// Package metrics exposes Prometheus collectors for provider calls, parse
// outcomes and the local HTTP server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docuflow",
			Name:      "provider_requests_total",
			Help:      "Total number of vision provider requests",
		},
		[]string{"provider", "function", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docuflow",
			Name:      "provider_request_duration_seconds",
			Help:      "Vision provider request duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider", "function"},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docuflow",
			Name:      "provider_tokens_total",
			Help:      "Total tokens consumed by vision providers",
		},
		[]string{"provider", "type"}, // "input" / "output"
	)

	// ParseOutcomesTotal counts how provider responses were interpreted:
	// parsed, recovered (brace extraction), degraded, or fallback.
	ParseOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docuflow",
			Name:      "parse_outcomes_total",
			Help:      "Provider response parse outcomes",
		},
		[]string{"function", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderTokensTotal,
		ParseOutcomesTotal,
		httpRequestDuration,
		httpRequestsTotal,
	)
}

// ObserveProviderCall records one vision call.
func ObserveProviderCall(provider, function string, started time.Time, inputTokens, outputTokens int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ProviderRequestsTotal.WithLabelValues(provider, function, status).Inc()
	ProviderRequestDuration.WithLabelValues(provider, function).Observe(time.Since(started).Seconds())
	if inputTokens > 0 {
		ProviderTokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		ProviderTokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// ObserveParse records a parse outcome.
func ObserveParse(function, outcome string) {
	ParseOutcomesTotal.WithLabelValues(function, outcome).Inc()
}
