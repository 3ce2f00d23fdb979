// Package metrics provides Prometheus metrics for the drive client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Thumbnail pipeline metrics
	thumbnailFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_thumbnail_fetches_total",
			Help: "Thumbnail fetches by outcome",
		},
		[]string{"outcome"}, // ok, error
	)

	thumbnailHandles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_thumbnail_handles_total",
			Help: "Thumbnail handle lifecycle events",
		},
		[]string{"event"}, // installed, replaced, discarded, evicted
	)

	thumbnailInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drive_thumbnail_fetches_in_flight",
			Help: "Thumbnail fetches currently outstanding",
		},
	)

	thumbnailCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drive_thumbnail_cache_entries",
			Help: "Thumbnail handles currently cached",
		},
	)

	reconciliations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drive_view_reconciliations_total",
			Help: "Visible-set reconciliations started",
		},
	)

	// Search metrics
	searchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_search_requests_total",
			Help: "Search requests by outcome",
		},
		[]string{"outcome"}, // ok, error, stale
	)

	// Item store metrics
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drive_api_request_duration_seconds",
			Help:    "Item store request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFetch records a thumbnail fetch outcome.
func RecordFetch(ok bool) {
	if ok {
		thumbnailFetches.WithLabelValues("ok").Inc()
		return
	}
	thumbnailFetches.WithLabelValues("error").Inc()
}

// RecordHandle records a handle lifecycle event.
func RecordHandle(event string) {
	thumbnailHandles.WithLabelValues(event).Inc()
}

// FetchStarted increments the in-flight gauge.
func FetchStarted() {
	thumbnailInFlight.Inc()
}

// FetchFinished decrements the in-flight gauge.
func FetchFinished() {
	thumbnailInFlight.Dec()
}

// SetCacheSize sets the cached handle gauge.
func SetCacheSize(n int) {
	thumbnailCacheSize.Set(float64(n))
}

// RecordReconcile counts a reconciliation pass.
func RecordReconcile() {
	reconciliations.Inc()
}

// RecordSearch records a search outcome.
func RecordSearch(outcome string) {
	searchRequests.WithLabelValues(outcome).Inc()
}

// ObserveRequest records an item store request.
func ObserveRequest(method, route, status string, seconds float64) {
	apiRequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}
