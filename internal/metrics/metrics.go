// Package metrics exposes Prometheus collectors for the census pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchTotal counts per-key fetch outcomes, labeled by dataset and status.
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "census_fetch_total",
			Help: "Total number of resource fetches, labeled by dataset and status.",
		},
		[]string{"dataset", "status"},
	)

	// DownloadBytesTotal counts bytes streamed to disk, labeled by source host.
	DownloadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "census_download_bytes_total",
			Help: "Total number of bytes downloaded, labeled by site.",
		},
		[]string{"site"},
	)

	// ActiveTasks tracks tasks currently holding a pool slot.
	ActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "census_active_tasks",
			Help: "Number of pool tasks currently executing.",
		},
	)

	// RowsWrittenTotal counts rows flushed to output artifacts.
	RowsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "census_rows_written_total",
			Help: "Total number of rows written to partitioned artifacts, labeled by dataset.",
		},
		[]string{"dataset"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "census_http_requests_total",
			Help: "Total number of HTTP requests served, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "census_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "route"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "census_rate_limit_delay_seconds",
			Help:    "Time downloads spent waiting on the per-host rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"site"},
	)

	// PublishTotal counts conditional-put decisions.
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "census_publish_total",
			Help: "Total number of publish decisions, labeled by action.",
		},
		[]string{"action"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch increments the fetch counter for one key outcome.
func ObserveFetch(dataset, status string) {
	FetchTotal.WithLabelValues(dataset, status).Inc()
}

// ObserveDownload records bytes streamed from rawURL.
func ObserveDownload(rawURL string, n int64) {
	if n <= 0 {
		return
	}
	DownloadBytesTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(n))
}

// ObserveRowsWritten records rows flushed for dataset.
func ObserveRowsWritten(dataset string, n int) {
	if n <= 0 {
		return
	}
	RowsWrittenTotal.WithLabelValues(dataset).Add(float64(n))
}

// ObservePublish increments the publish counter for action.
func ObservePublish(action string) {
	PublishTotal.WithLabelValues(action).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent waiting for a download slot.
func ObserveRateLimitDelay(site string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(site).Observe(d.Seconds())
}

// IncActiveTasks increments the active task gauge.
func IncActiveTasks() {
	ActiveTasks.Inc()
}

// DecActiveTasks decrements the active task gauge.
func DecActiveTasks() {
	ActiveTasks.Dec()
}
