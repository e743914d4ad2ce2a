// Package metrics provides Prometheus metrics for the portal.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal       atomic.Pointer[prometheus.CounterVec]
	requestDuration     atomic.Pointer[prometheus.HistogramVec]
	authorizationsTotal atomic.Pointer[prometheus.CounterVec]
	controllerPushTotal atomic.Pointer[prometheus.CounterVec]
)

// Init registers all metrics with reg. Call once at startup; until then the
// Record functions are no-ops.
func Init(reg prometheus.Registerer) error {
	requestsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "airfi",
			Subsystem: "portal",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the portal",
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestsVec); err != nil {
		return fmt.Errorf("failed to register requestsTotal: %w", err)
	}

	durationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "airfi",
			Subsystem: "portal",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(durationVec); err != nil {
		return fmt.Errorf("failed to register requestDuration: %w", err)
	}

	// path is "authenticated" or "guest"; result is "granted" or the
	// rejection reason.
	authorizationsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "airfi",
			Subsystem: "portal",
			Name:      "authorizations_total",
			Help:      "Authorization attempts by identity path and outcome",
		},
		[]string{"path", "result"},
	)
	if err := reg.Register(authorizationsVec); err != nil {
		return fmt.Errorf("failed to register authorizationsTotal: %w", err)
	}

	pushVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "airfi",
			Subsystem: "portal",
			Name:      "controller_push_total",
			Help:      "Controller authorize pushes by outcome",
		},
		[]string{"result"},
	)
	if err := reg.Register(pushVec); err != nil {
		return fmt.Errorf("failed to register controllerPushTotal: %w", err)
	}

	requestsTotal.Store(requestsVec)
	requestDuration.Store(durationVec)
	authorizationsTotal.Store(authorizationsVec)
	controllerPushTotal.Store(pushVec)

	return nil
}

// RecordRequest counts one handled HTTP request and its latency.
func RecordRequest(method, path, status string, durationSeconds float64) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, status).Inc()
	}
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, status).Observe(durationSeconds)
	}
}

// RecordAuthorization counts one authorization attempt.
func RecordAuthorization(path, result string) {
	if counter := authorizationsTotal.Load(); counter != nil {
		counter.WithLabelValues(path, result).Inc()
	}
}

// RecordControllerPush counts one controller push.
func RecordControllerPush(result string) {
	if counter := controllerPushTotal.Load(); counter != nil {
		counter.WithLabelValues(result).Inc()
	}
}

// Middleware records request count and latency, labelled by route pattern
// rather than raw path to keep cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RecordRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// Handler returns the handler for the /metrics endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
