package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Archive API call rate. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Archive API latency per request. The 5-year hourly fetch is slow by
	// nature; buckets reach into tens of seconds.
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for archive API calls. High retries = unstable upstream.
	WeatherAPIRetriesTotal prometheus.Counter

	// Plot cache hits. Hit rate = hits/(hits + plotRendersTotal).
	CacheHitsTotal *prometheus.CounterVec

	// Full pipeline runs (fetch + classify + render). One per cache miss.
	PlotRendersTotal prometheus.Counter

	// End-to-end pipeline latency per render.
	PlotRenderDuration prometheus.Histogram

	// Rate limit denials on the plot route. Watch for: abusive traffic.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weather archive API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather archive API latency in seconds (per request)",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather archive API calls",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of plot cache hits. Hit rate = hits/(hits + plotRendersTotal).",
		},
		[]string{"cacheType"},
	)
	PlotRendersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "plotRendersTotal",
			Help: "Total number of full plot pipeline runs (fetch, classify, render)",
		},
	)
	PlotRenderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plotRenderDurationSeconds",
			Help:    "End-to-end plot pipeline latency in seconds (per render)",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		CacheHitsTotal, PlotRendersTotal, PlotRenderDuration,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
