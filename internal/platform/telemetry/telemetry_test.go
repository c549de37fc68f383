package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	e := echo.New()
	e.Use(MetricsMiddleware())
	e.GET("/api/v1/patients/:patient_id/risk-analysis", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/P001/risk-analysis", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := testutil.CollectAndCount(HTTPRequestDuration); got == 0 {
		t.Fatalf("expected a duration series, got %d", got)
	}
	if got := testutil.ToFloat64(HTTPActiveRequests); got != 0 {
		t.Fatalf("expected no active requests after completion, got %v", got)
	}
}

func TestMetricsMiddleware_UsesHTTPErrorCode(t *testing.T) {
	e := echo.New()
	e.Use(MetricsMiddleware())
	e.GET("/forbidden", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "no")
	})

	e.GET("/metrics", PrometheusHandler())

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/forbidden", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `riskadvisor_http_request_duration_seconds_count{method="GET",route="/forbidden",status="403"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("expected %q in metrics output", want)
	}
}

func TestPrometheusHandler(t *testing.T) {
	AnalysesTotal.WithLabelValues("Premium").Inc()

	e := echo.New()
	e.GET("/metrics", PrometheusHandler())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `riskadvisor_risk_analyses_total{tier="Premium"}`) {
		t.Fatalf("expected analyses counter in output, got:\n%s", body)
	}
}
