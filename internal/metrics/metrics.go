// Package metrics exposes Prometheus collectors for the collector service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerInvocationsTotal  *prometheus.CounterVec
	crawlerRuntimeSeconds    prometheus.Histogram
	configPatchFailuresTotal prometheus.Counter
	artifactsParsedTotal     *prometheus.CounterVec
	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerInvocationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_crawler_invocations_total",
				Help: "Crawler subprocess invocations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerRuntimeSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "collector_crawler_runtime_seconds",
				Help:    "Wall time per crawler subprocess invocation.",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 2400, 4800, 7200},
			},
		)

		configPatchFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "collector_config_patch_failures_total",
				Help: "Configuration mutate or restore failures.",
			},
		)

		artifactsParsedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_artifacts_parsed_total",
				Help: "Output artifact files read, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawlerRun records one subprocess invocation. Outcome is one of
// "success", "failure" or "timeout".
func ObserveCrawlerRun(outcome string, duration time.Duration) {
	crawlerInvocationsTotal.WithLabelValues(outcome).Inc()
	crawlerRuntimeSeconds.Observe(duration.Seconds())
}

// ObserveConfigPatchFailure counts a failed mutate or restore.
func ObserveConfigPatchFailure() {
	configPatchFailuresTotal.Inc()
}

// ObserveArtifact counts an output artifact read, labeled "ok" or "malformed".
func ObserveArtifact(result string) {
	artifactsParsedTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
