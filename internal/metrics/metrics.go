// Package metrics provides Prometheus metrics for the drift server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drift_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drift_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Share lifecycle metrics
	sharesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drift_shares_created_total",
			Help: "Total number of share links created",
		},
	)

	sharesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drift_shares_active",
			Help: "Number of live (non-expired, non-revoked) share links",
		},
	)

	sharesSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drift_shares_swept_total",
			Help: "Total number of expired share links removed by the sweeper",
		},
	)

	// Download metrics
	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drift_downloads_total",
			Help: "Total number of share downloads",
		},
		[]string{"status"},
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drift_download_bytes_total",
			Help: "Total bytes streamed to download clients",
		},
	)

	// Listing metrics
	listingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drift_listing_duration_seconds",
			Help:    "Directory listing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	listingEntriesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drift_listing_entries_skipped_total",
			Help: "Directory entries skipped because they could not be read",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordShareCreated records a new share link.
func RecordShareCreated() {
	sharesCreatedTotal.Inc()
}

// SetSharesActive sets the live share link count.
func SetSharesActive(count int64) {
	sharesActive.Set(float64(count))
}

// RecordSharesSwept records expired share links removed by a sweep pass.
func RecordSharesSwept(count int) {
	sharesSweptTotal.Add(float64(count))
}

// RecordDownload records a share download.
func RecordDownload(bytes int64, success bool) {
	downloadBytesTotal.Add(float64(bytes))
	status := "success"
	if !success {
		status = "error"
	}
	downloadsTotal.WithLabelValues(status).Inc()
}

// RecordListing records a directory listing pass.
func RecordListing(duration time.Duration, skipped int) {
	listingDuration.Observe(duration.Seconds())
	if skipped > 0 {
		listingEntriesSkipped.Add(float64(skipped))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
