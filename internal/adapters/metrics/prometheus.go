// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	ingestCounter       *prometheus.CounterVec
	ingestDuration      *prometheus.HistogramVec
	resolveCounter      *prometheus.CounterVec
	executeCounter      *prometheus.CounterVec
	upstreamDuration    *prometheus.HistogramVec
	layersRegistered    prometheus.Gauge
	servicesRegistered  prometheus.Gauge
	storageOperations   *prometheus.CounterVec
	storageDuration     *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "stratum"
	}

	return &Collector{
		ingestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingests_total",
				Help:      "Total number of capability ingestions",
			},
			[]string{"service_type", "status"},
		),

		ingestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_duration_seconds",
				Help:      "Capability ingestion duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service_type"},
		),

		resolveCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolves_total",
				Help:      "Total number of request resolutions",
			},
			[]string{"kind", "status"},
		),

		executeCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of upstream preview executions",
			},
			[]string{"kind", "status"},
		),

		upstreamDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream request round-trip duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		layersRegistered: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "layers_registered",
				Help:      "Number of registered layers",
			},
		),

		servicesRegistered: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "services_registered",
				Help:      "Number of registered service scopes",
			},
		),

		storageOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of artifact storage operations",
			},
			[]string{"operation", "status"},
		),

		storageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_duration_seconds",
				Help:      "Artifact storage operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// IncIngest increments the ingestion counter.
func (c *Collector) IncIngest(serviceType string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.ingestCounter.WithLabelValues(serviceType, status).Inc()
}

// ObserveIngestDuration records capability ingestion duration.
func (c *Collector) ObserveIngestDuration(serviceType string, duration time.Duration) {
	c.ingestDuration.WithLabelValues(serviceType).Observe(duration.Seconds())
}

// IncResolve increments the resolution counter.
func (c *Collector) IncResolve(kind string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.resolveCounter.WithLabelValues(kind, status).Inc()
}

// IncExecute increments the execution counter.
func (c *Collector) IncExecute(kind string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.executeCounter.WithLabelValues(kind, status).Inc()
}

// ObserveUpstreamDuration records upstream round-trip duration.
func (c *Collector) ObserveUpstreamDuration(operation string, duration time.Duration) {
	c.upstreamDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetLayersRegistered sets the current registry size.
func (c *Collector) SetLayersRegistered(count int) {
	c.layersRegistered.Set(float64(count))
}

// SetServicesRegistered sets the number of registered service scopes.
func (c *Collector) SetServicesRegistered(count int) {
	c.servicesRegistered.Set(float64(count))
}

// IncStorageOperations increments storage operation counter.
func (c *Collector) IncStorageOperations(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.storageOperations.WithLabelValues(operation, status).Inc()
}

// ObserveStorageDuration records storage operation duration.
func (c *Collector) ObserveStorageDuration(operation string, duration time.Duration) {
	c.storageDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncHTTPRequests increments the HTTP request counter.
func (c *Collector) IncHTTPRequests(method, path, status string) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveHTTPDuration records HTTP request duration.
func (c *Collector) ObserveHTTPDuration(method, path string, duration time.Duration) {
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		path := normalizePath(r.URL.Path)
		status := statusToString(wrapped.statusCode)

		c.IncHTTPRequests(r.Method, path, status)
		c.ObserveHTTPDuration(r.Method, path, duration)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath collapses dynamic URL segments so label cardinality
// stays bounded by the route table rather than by resource IDs.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/layers/"):
		return "/api/v1/layers/{id}"
	case strings.HasPrefix(path, "/preview/"):
		return "/preview/{id}"
	case len(path) > 40:
		return path[:40] + "..."
	default:
		return path
	}
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
