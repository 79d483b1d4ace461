// Package metrics holds the Prometheus collectors for the coach service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coach"

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"status"}, // success, invalid, provider_error, error
	)

	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of model provider calls",
		},
		[]string{"provider", "status"},
	)

	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of model provider calls in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	providerTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Total tokens reported by model providers",
		},
		[]string{"provider", "type"}, // prompt, completion
	)

	configReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Total number of configuration reload attempts",
		},
		[]string{"status"},
	)

	stageCoverageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_coverage_total",
			Help:      "Total number of sessions that newly covered a stage",
		},
		[]string{"stage"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions held in memory",
		},
	)

	allMetrics = []prometheus.Collector{
		turnsTotal,
		providerRequestsTotal,
		providerRequestDuration,
		providerTokensTotal,
		configReloadsTotal,
		stageCoverageTotal,
		sessionsActive,
	}
)

// NewRegistry returns a registry with every coach collector plus the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func RecordTurn(status string) {
	turnsTotal.WithLabelValues(status).Inc()
}

// RecordProviderRequest records one provider call and its latency.
func RecordProviderRequest(provider, status string, durationSeconds float64) {
	providerRequestDuration.WithLabelValues(provider).Observe(durationSeconds)
	providerRequestsTotal.WithLabelValues(provider, status).Inc()
}

func RecordProviderTokens(provider string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		providerTokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		providerTokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

func RecordConfigReload(status string) {
	configReloadsTotal.WithLabelValues(status).Inc()
}

func RecordStageCovered(stage string) {
	stageCoverageTotal.WithLabelValues(stage).Inc()
}

func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}
