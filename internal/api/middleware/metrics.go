// Package middleware provides HTTP middleware for the health recorder server.
// This file contains Prometheus metrics for requests, the generation gateway
// and record storage.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// httpRequestsTotal counts the total number of HTTP requests processed.
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthrecorder_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDurationSeconds tracks the duration of HTTP requests.
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthrecorder_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// activeConnections tracks the number of in-flight requests.
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthrecorder_active_connections",
			Help: "Number of in-flight HTTP requests",
		},
	)

	activeConnectionsCount int64

	// gatewayRequestsTotal counts generation calls by outcome (ok, empty, error, http_error).
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthrecorder_gateway_requests_total",
			Help: "Total generation gateway calls by outcome",
		},
		[]string{"outcome"},
	)

	// Model calls are slow; buckets run from 100ms to ~100s.
	gatewayDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthrecorder_gateway_duration_seconds",
			Help:    "Duration of generation gateway calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 11),
		},
	)

	recordsSavedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "healthrecorder_records_saved_total",
			Help: "Total health records written",
		},
	)

	recordSaveErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "healthrecorder_record_save_errors_total",
			Help: "Total health record writes that failed",
		},
	)

	// chatContextRecords tracks how many records reached each prompt.
	chatContextRecords = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthrecorder_chat_context_records",
			Help:    "Number of records included as chat context",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	answerCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthrecorder_answer_cache_requests_total",
			Help: "Answer cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
	answerCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthrecorder_answer_cache_size",
			Help: "Current number of entries in the answer cache",
		},
	)

	metricsRegistered atomic.Bool
	metricsEnabled    atomic.Bool
)

// SetMetricsEnabled toggles Prometheus metrics collection.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// IsMetricsEnabled reports whether metrics are enabled.
func IsMetricsEnabled() bool {
	return metricsEnabled.Load()
}

// RegisterMetrics registers all Prometheus metrics.
// It is safe to call multiple times; metrics will only be registered once.
func RegisterMetrics() {
	if !metricsRegistered.CompareAndSwap(false, true) {
		return
	}

	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		activeConnections,
		gatewayRequestsTotal,
		gatewayDurationSeconds,
		recordsSavedTotal,
		recordSaveErrorsTotal,
		chatContextRecords,
		answerCacheRequestsTotal,
		answerCacheSize,
	)
}

// PrometheusMiddleware returns a Gin middleware that collects request count,
// duration and in-flight requests.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsMetricsEnabled() {
			c.Next()
			return
		}
		RegisterMetrics()

		// Skip metrics endpoint to avoid self-referential metrics
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		atomic.AddInt64(&activeConnectionsCount, 1)
		activeConnections.Inc()
		defer func() {
			atomic.AddInt64(&activeConnectionsCount, -1)
			activeConnections.Dec()
		}()

		path := normalizePath(c.Request.URL.Path)
		method := c.Request.Method
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// normalizePath folds unknown paths into one label to bound cardinality.
func normalizePath(path string) string {
	switch path {
	case "/", "/chat", "/healthz", "/metrics", "/api/records", "/api/chat", "/api/logs":
		return path
	}
	if strings.HasPrefix(path, "/static/") {
		return "/static/*"
	}
	return "other"
}

// MetricsHandler returns the Prometheus HTTP handler for the /metrics endpoint.
func MetricsHandler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		if !IsMetricsEnabled() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		RegisterMetrics()
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// GetActiveConnections returns the current number of in-flight requests.
func GetActiveConnections() int64 {
	return atomic.LoadInt64(&activeConnectionsCount)
}

// ObserveGateway records one generation call. Its signature matches the
// gateway's observer hook.
func ObserveGateway(outcome string, elapsed time.Duration) {
	if !IsMetricsEnabled() {
		return
	}
	RegisterMetrics()
	gatewayRequestsTotal.WithLabelValues(outcome).Inc()
	gatewayDurationSeconds.Observe(elapsed.Seconds())
}

// RecordSaved counts a record write attempt.
func RecordSaved(err error) {
	if !IsMetricsEnabled() {
		return
	}
	RegisterMetrics()
	if err != nil {
		recordSaveErrorsTotal.Inc()
		return
	}
	recordsSavedTotal.Inc()
}

// ObserveChatContext records how many records were sent as context.
func ObserveChatContext(n int) {
	if !IsMetricsEnabled() {
		return
	}
	RegisterMetrics()
	chatContextRecords.Observe(float64(n))
}

// RecordAnswerCache counts an answer cache lookup.
func RecordAnswerCache(hit bool) {
	if !IsMetricsEnabled() {
		return
	}
	RegisterMetrics()
	result := "miss"
	if hit {
		result = "hit"
	}
	answerCacheRequestsTotal.WithLabelValues(result).Inc()
}

// SetAnswerCacheSize sets the current answer cache size gauge.
func SetAnswerCacheSize(size int) {
	if !IsMetricsEnabled() {
		return
	}
	RegisterMetrics()
	answerCacheSize.Set(float64(size))
}
