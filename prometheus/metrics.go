package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Family login counter
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xiaojilu_login_total",
			Help: "Total number of family login attempts",
		},
	)

	// Record operation counter
	RecordOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xiaojilu_record_operations_total",
			Help: "Total number of record operations",
		},
		[]string{"kind", "operation"}, // kind is "instant" or "duration"
	)

	// Upload counter
	UploadCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xiaojilu_uploads_total",
			Help: "Total number of image upload attempts",
		},
		[]string{"result"}, // "accepted", "unsupported_type", "too_large", "failed"
	)

	// Family management operation counter
	FamilyOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xiaojilu_family_operations_total",
			Help: "Total number of admin family operations",
		},
		[]string{"operation"}, // "create", "update", "delete", "list"
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xiaojilu_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xiaojilu_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // "missing_token", "invalid_token", "invalid_admin_token", ...
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xiaojilu_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xiaojilu_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Open duration events across all families
	ActiveEventsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xiaojilu_active_duration_events",
			Help: "Number of duration events currently in progress",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "xiaojilu_info",
			Help: "Information about the xiaojilu service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RecordOperationCounter)
	prometheus.MustRegister(UploadCounter)
	prometheus.MustRegister(FamilyOperationCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(ActiveEventsGauge)
	prometheus.MustRegister(InfoGauge)

	// Set initial service info
	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Execute the request handler
			err := next(c)

			// Record request duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordOperation records a record operation by kind
func RecordOperation(kind, operation string) {
	RecordOperationCounter.With(prometheus.Labels{"kind": kind, "operation": operation}).Inc()
}

// RecordUpload records an upload attempt result
func RecordUpload(result string) {
	UploadCounter.With(prometheus.Labels{"result": result}).Inc()
}

// RecordFamilyOperation records an admin family operation
func RecordFamilyOperation(operation string) {
	FamilyOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}
