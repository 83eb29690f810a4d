// Package metrics exposes Prometheus collectors for the boss sync service.
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
	syncRunsTotal              *prometheus.CounterVec
	syncPagesTotal             *prometheus.CounterVec
	syncSuccessRate            prometheus.Gauge
	syncDurationSeconds        prometheus.Histogram
	deadLettersTotal           prometheus.Counter
	wikiRequestsTotal          *prometheus.CounterVec
	imageBatchesTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bosssync_runs_total",
				Help: "Total number of sync runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		syncPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bosssync_pages_total",
				Help: "Total number of wiki pages processed, labeled by result.",
			},
			[]string{"result"},
		)

		syncSuccessRate = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bosssync_last_run_success_rate",
				Help: "Fraction of listed pages persisted by the most recent run.",
			},
		)

		syncDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bosssync_run_duration_seconds",
				Help:    "Histogram of full sync run durations.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		)

		deadLettersTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bosssync_dead_letters_total",
				Help: "Total number of items written to the dead letter log.",
			},
		)

		wikiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bosssync_wiki_requests_total",
				Help: "Total number of wiki API requests, labeled by action and code.",
			},
			[]string{"action", "code"},
		)

		imageBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bosssync_image_batches_total",
				Help: "Total number of imageinfo batches, labeled by result.",
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

		httpRequestDurationSeconds = promauto.NewHistogramVec(
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

// ObserveRun records a completed sync run.
func ObserveRun(outcome string, successRate float64, duration time.Duration) {
	syncRunsTotal.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		syncSuccessRate.Set(successRate)
		syncDurationSeconds.Observe(duration.Seconds())
	}
}

// ObservePage increments the per-page result counter.
func ObservePage(result string) {
	syncPagesTotal.WithLabelValues(result).Inc()
}

// ObserveDeadLetter increments the dead letter counter.
func ObserveDeadLetter() {
	deadLettersTotal.Inc()
}

// ObserveWikiRequest increments the wiki API request counter.
func ObserveWikiRequest(action string, code int) {
	wikiRequestsTotal.WithLabelValues(action, strconv.Itoa(code)).Inc()
}

// ObserveImageBatch increments the imageinfo batch counter.
func ObserveImageBatch(result string) {
	imageBatchesTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
