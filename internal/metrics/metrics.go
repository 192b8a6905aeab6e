// Package metrics exposes Prometheus collectors for the fetch path, the
// queues and the extraction API. Stage outcomes are exported by the progress
// sinks.
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
	queuePopsTotal             *prometheus.CounterVec
	fetchTotal                 *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	imagesTotal                *prometheus.CounterVec
	activeHandlers             prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		queuePopsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spiders_queue_pops_total",
				Help: "Queue pops, labeled by queue and whether an id was returned.",
			},
			[]string{"queue", "result"},
		)

		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spiders_fetch_total",
				Help: "Pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spiders_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		imagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spiders_images_total",
				Help: "Images re-hosted, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeHandlers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "spiders_active_handlers",
				Help: "Number of stage handlers currently running.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spiders_rate_limit_delay_seconds",
				Help:    "Histogram of per-domain politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// SanitizeSite reduces a URL to its lowercase hostname, or "unknown".
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

// Handler returns an http.Handler exposing the registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveQueuePop records a pop attempt on queue.
func ObserveQueuePop(queue string, hit bool) {
	Init()
	result := "empty"
	if hit {
		result = "hit"
	}
	queuePopsTotal.WithLabelValues(queue, result).Inc()
}

// ObserveFetch records a fetch of rawURL.
func ObserveFetch(rawURL string, status int, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	fetchTotal.WithLabelValues(site, label).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveImages records n images with outcome.
func ObserveImages(outcome string, n int) {
	Init()
	imagesTotal.WithLabelValues(outcome).Add(float64(n))
}

// IncActiveHandlers increments the running handler gauge.
func IncActiveHandlers() {
	Init()
	activeHandlers.Inc()
}

// DecActiveHandlers decrements the running handler gauge.
func DecActiveHandlers() {
	Init()
	activeHandlers.Dec()
}

// ObserveRateLimitDelay records a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
