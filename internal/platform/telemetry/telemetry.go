// Package telemetry registers the server's Prometheus metrics and exposes
// the HTTP middleware and /metrics handler that feed and serve them.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskadvisor"

var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// HTTP server metrics.
var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route and status.",
		Buckets:   defaultDurationBuckets,
	}, []string{"method", "route", "status"})

	HTTPActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "active_requests",
		Help:      "Requests currently being served.",
	})
)

// Domain metrics.
var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "analyses_total",
		Help:      "Completed risk analyses by recommended plan tier.",
	}, []string{"tier"})

	AnalysisFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "analysis_failures_total",
		Help:      "Failed risk analyses by reason.",
	}, []string{"reason"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "analysis_duration_seconds",
		Help:      "Time spent computing one analysis, excluding data access.",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
	})

	CatalogReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "reloads_total",
		Help:      "Plan catalog load attempts by result.",
	}, []string{"result"})

	SummaryCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "summary_cache",
		Name:      "requests_total",
		Help:      "Health summary cache lookups by result.",
	}, []string{"result"})

	DBPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "pool_connections",
		Help:      "Database pool connections by state.",
	}, []string{"state"})
)

// MetricsMiddleware records request latency and in-flight requests. The
// route pattern is used as a label, never the raw path.
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			HTTPActiveRequests.Inc()
			defer HTTPActiveRequests.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			HTTPRequestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the default registry in the text exposition format.
func PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
