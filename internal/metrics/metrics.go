// Package metrics exposes Prometheus collectors for the API.
//
// Usage:
//
//	metrics.RecordTrendLookup(true)
//	metrics.RecordSceneOutcome("primary", "done")
//	metrics.RecordHTTPRequest("GET", "/v1/courses", 200, 12*time.Millisecond)
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
	// HTTPRequestsTotal counts handled requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_http_requests_total",
			Help: "Total number of handled HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "academy_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	TrendCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "academy_trend_cache_hits_total",
			Help: "Trend lookups answered from cache",
		},
	)

	TrendCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "academy_trend_cache_misses_total",
			Help: "Trend lookups that required a remote query",
		},
	)

	// QuotaRejections counts lookups refused by the daily quota.
	QuotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "academy_quota_rejections_total",
			Help: "Requests refused because the caller's daily quota was exhausted",
		},
	)

	SceneOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_scene_assets_total",
			Help: "Scene asset generation outcomes by slot",
		},
		[]string{"slot", "status"},
	)

	GenerationRunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "academy_generation_runs_active",
			Help: "Generation runs currently in progress",
		},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "academy_provider_call_duration_seconds",
			Help:    "Latency of upstream provider calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "outcome"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func RecordTrendLookup(hit bool) {
	if hit {
		TrendCacheHits.Inc()
		return
	}
	TrendCacheMisses.Inc()
}

func RecordQuotaRejection() {
	QuotaRejections.Inc()
}

func RecordSceneOutcome(slot, status string) {
	SceneOutcomes.WithLabelValues(slot, status).Inc()
}

// RecordProviderCall observes a provider latency; err decides the outcome label.
func RecordProviderCall(provider string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProviderCallDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}
