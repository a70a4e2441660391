package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route", "status"},
	)

	adapterRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_adapter_requests_total",
			Help: "Marketplace adapter searches by source, origin and outcome.",
		},
		[]string{"source", "origin", "outcome"},
	)
	adapterDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketplace_adapter_duration_seconds",
			Help:    "Marketplace adapter search latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"source"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_lookups_total",
			Help: "Search response cache lookups by result.",
		},
		[]string{"result"},
	)

	quotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_limit_rejections_total",
			Help: "Requests rejected because the daily quota was exhausted.",
		},
		[]string{"action", "tier"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		adapterRequestsTotal,
		adapterDuration,
		cacheLookupsTotal,
		quotaRejectionsTotal,
	)
}

// RecordRequest records metrics for one HTTP request.
func RecordRequest(method, route string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordAdapter records one adapter search. outcome is "ok", "empty" or "degraded".
func RecordAdapter(source, origin, outcome string, duration time.Duration) {
	adapterRequestsTotal.WithLabelValues(source, origin, outcome).Inc()
	adapterDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCacheLookup counts a search cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordQuotaRejection counts a LIMIT_REACHED response.
func RecordQuotaRejection(action, tier string) {
	quotaRejectionsTotal.WithLabelValues(action, tier).Inc()
}

func classifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	}
	return "unknown"
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
