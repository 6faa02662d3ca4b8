// Package metrics exposes Prometheus collectors for the SDK's client
// activity.
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
	requestsTotal          *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
	retriesTotal           *prometheus.CounterVec
	streamReconnectsTotal  prometheus.Counter
	pagesTotal             *prometheus.CounterVec
	activeStreams          prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. Safe to call repeatedly.
func Init() {
	once.Do(func() {
		requestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outblog_requests_total",
				Help: "Total API requests, labeled by method and status code.",
			},
			[]string{"method", "code"},
		)

		requestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outblog_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outblog_retries_total",
				Help: "Total retried attempts, labeled by operation.",
			},
			[]string{"op"},
		)

		streamReconnectsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "outblog_stream_reconnects_total",
				Help: "Total streaming session reconnect attempts.",
			},
		)

		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outblog_pages_total",
				Help: "Total pages handed to the aggregator, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeStreams = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "outblog_active_streams",
				Help: "Number of streaming sessions currently open.",
			},
		)
	})
}

// Handler returns an http.Handler serving the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one API request attempt. code 0 means no
// response was received.
func ObserveRequest(method string, code int, duration time.Duration) {
	Init()
	label := "none"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	requestsTotal.WithLabelValues(method, label).Inc()
	requestDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveRetry counts a retried attempt for the named operation.
func ObserveRetry(op string) {
	Init()
	retriesTotal.WithLabelValues(op).Inc()
}

// ObserveStreamReconnect counts a streaming reconnect attempt.
func ObserveStreamReconnect() {
	Init()
	streamReconnectsTotal.Inc()
}

// ObservePage counts an aggregator hand-off by outcome.
func ObservePage(outcome string) {
	Init()
	pagesTotal.WithLabelValues(outcome).Inc()
}

// IncActiveStreams increments the open-session gauge.
func IncActiveStreams() {
	Init()
	activeStreams.Inc()
}

// DecActiveStreams decrements the open-session gauge.
func DecActiveStreams() {
	Init()
	activeStreams.Dec()
}
