// Package metrics declares the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ocsearch"

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SearchRequestsTotal counts search, record and similarity requests.
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by application, kind and outcome",
		},
		[]string{"search", "kind", "outcome"},
	)

	EngineRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_request_duration_seconds",
			Help:      "Search engine call duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op"},
	)

	// ImportDocumentsTotal counts imported records; outcome is one of
	// indexed, skipped, failed.
	ImportDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_documents_total",
			Help:      "Imported records by application and outcome",
		},
		[]string{"search", "outcome"},
	)

	ImportFailedBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_failed_batches_total",
			Help:      "Import batches written to the error file",
		},
		[]string{"search"},
	)

	ExportTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_tasks_total",
			Help:      "Export requests by outcome (cached, queued, generated, failed)",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(EngineRequestDuration)
	prometheus.MustRegister(ImportDocumentsTotal)
	prometheus.MustRegister(ImportFailedBatchesTotal)
	prometheus.MustRegister(ExportTasksTotal)
}

// ObserveEngine records the duration of one engine call started at start.
func ObserveEngine(op string, start time.Time) {
	EngineRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Middleware records request duration and count keyed by the gin route
// pattern, so path parameters do not explode label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
