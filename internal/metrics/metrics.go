// Package metrics exposes Prometheus collectors for the release crawler.
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
	scrapesTotal               *prometheus.CounterVec
	scrapeDurationSeconds      prometheus.Histogram
	releasesDiscoveredTotal    prometheus.Counter
	releasesUpdatedTotal       prometheus.Counter
	pagesFetchedTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_scrapes_total",
				Help: "Total number of author scrapes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scrapeDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_scrape_duration_seconds",
				Help:    "Histogram of per-author scrape durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		releasesDiscoveredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_releases_discovered_total",
				Help: "Total number of new releases created by scrapes.",
			},
		)

		releasesUpdatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_releases_updated_total",
				Help: "Total number of existing releases enriched by scrapes.",
			},
		)

		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_fetched_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
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

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by domain.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// ObserveScrape records one finished author scrape.
func ObserveScrape(outcome string, duration time.Duration) {
	Init()
	scrapesTotal.WithLabelValues(outcome).Inc()
	scrapeDurationSeconds.Observe(duration.Seconds())
}

// AddReleases records releases created and enriched by a scrape.
func AddReleases(discovered, updated int) {
	Init()
	if discovered > 0 {
		releasesDiscoveredTotal.Add(float64(discovered))
	}
	if updated > 0 {
		releasesUpdatedTotal.Add(float64(updated))
	}
}

// ObservePageFetch increments the page fetch counter.
func ObservePageFetch(site string, statusCode int) {
	Init()
	pagesFetchedTotal.WithLabelValues(SanitizeSite(site), strconv.Itoa(statusCode)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
