// Package metrics exposes Prometheus collectors for the playlist archiver.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal             *prometheus.CounterVec
	crawlShowsTotal             *prometheus.CounterVec
	crawlPlaysInsertedTotal     *prometheus.CounterVec
	crawlPassDurationSeconds    *prometheus.HistogramVec
	exportRunsTotal             *prometheus.CounterVec
	exportBucketWritesTotal     *prometheus.CounterVec
	exportBucketRows            *prometheus.GaugeVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	sourceRateLimitDelaySeconds *prometheus.HistogramVec
	sourceRobotsFallbackTotal   *prometheus.CounterVec

	once sync.Once
)

// Outcome labels of the page and show counters.
const (
	PageFetched = "fetched"
	PageEmpty   = "empty"
	PageFailed  = "failed"

	ShowNew       = "new"
	ShowSkipped   = "skipped"
	ShowFailed    = "failed"
	ShowMalformed = "malformed"
)

var (
	pageOutcomes = []string{PageFetched, PageEmpty, PageFailed}
	showOutcomes = []string{ShowNew, ShowSkipped, ShowFailed, ShowMalformed}
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times; the Observe helpers call it
// on first use.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playlist_crawl_pages_total",
				Help: "Listing pages fetched, labeled by target and outcome (" + strings.Join(pageOutcomes, ", ") + ").",
			},
			[]string{"target", "outcome"},
		)

		crawlShowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playlist_crawl_shows_total",
				Help: "Shows seen on listing pages, labeled by target and outcome (" + strings.Join(showOutcomes, ", ") + ").",
			},
			[]string{"target", "outcome"},
		)

		crawlPlaysInsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playlist_crawl_plays_inserted_total",
				Help: "Play events newly written to the store, labeled by target.",
			},
			[]string{"target"},
		)

		crawlPassDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playlist_crawl_pass_duration_seconds",
				Help:    "Duration of one crawl pass over a target.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
			},
			[]string{"target"},
		)

		exportRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playlist_export_runs_total",
				Help: "Export runs, labeled by target and status.",
			},
			[]string{"target", "status"},
		)

		exportBucketWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playlist_export_bucket_writes_total",
				Help: "Snapshot bucket writes, labeled by target and status.",
			},
			[]string{"target", "status"},
		)

		exportBucketRows = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "playlist_export_bucket_rows",
				Help: "Rows in the most recent snapshot of each bucket.",
			},
			[]string{"target", "bucket"},
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

		sourceRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playlist_source_rate_limit_delay_seconds",
				Help:    "Histogram of polite-delay waits before source fetches.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		sourceRobotsFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playlist_source_robots_fallback_total",
				Help: "robots.txt probes that timed out and fell back to allow-all.",
			},
			[]string{"site"},
		)
	})
}

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

// ObservePage counts one listing page fetch.
func ObservePage(target, outcome string) {
	Init()
	crawlPagesTotal.WithLabelValues(target, outcome).Inc()
}

// ObserveShow counts one listing entry.
func ObserveShow(target, outcome string) {
	Init()
	crawlShowsTotal.WithLabelValues(target, outcome).Inc()
}

// AddPlaysInserted adds newly stored plays.
func AddPlaysInserted(target string, n int) {
	Init()
	if n > 0 {
		crawlPlaysInsertedTotal.WithLabelValues(target).Add(float64(n))
	}
}

// ObserveCrawlPass records the duration of a crawl pass.
func ObserveCrawlPass(target string, d time.Duration) {
	Init()
	crawlPassDurationSeconds.WithLabelValues(target).Observe(d.Seconds())
}

// ObserveExport counts an export run.
func ObserveExport(target, status string) {
	Init()
	exportRunsTotal.WithLabelValues(target, status).Inc()
}

// ObserveBucketWrite counts a bucket write and, on success, records its size.
func ObserveBucketWrite(target, bucket, status string, rows int) {
	Init()
	exportBucketWritesTotal.WithLabelValues(target, status).Inc()
	if status == "success" {
		exportBucketRows.WithLabelValues(target, bucket).Set(float64(rows))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a polite-delay wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	sourceRateLimitDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt probe that fell back to allow-all.
func ObserveRobotsFallback(site string) {
	Init()
	sourceRobotsFallbackTotal.WithLabelValues(SanitizeSite(site)).Inc()
}
