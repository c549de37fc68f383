package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func timeoutContext(path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	return e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), rec), rec
}

func TestRequestTimeout_Table(t *testing.T) {
	waitForDeadline := func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	}

	tests := []struct {
		name     string
		timeout  time.Duration
		handler  echo.HandlerFunc
		wantCode int // 0 means the handler error or nil passes through
		wantErr  error
	}{
		{
			name:    "completes within deadline",
			timeout: 5 * time.Second,
			handler: okHandler,
		},
		{
			name:     "deadline passes",
			timeout:  20 * time.Millisecond,
			handler:  waitForDeadline,
			wantCode: http.StatusGatewayTimeout,
		},
		{
			name:    "handler error propagates",
			timeout: 5 * time.Second,
			handler: func(c echo.Context) error {
				return echo.NewHTTPError(http.StatusNotFound, "not found")
			},
			wantCode: http.StatusNotFound,
		},
		{
			name:    "failure after deadline reports timeout",
			timeout: 20 * time.Millisecond,
			handler: func(c echo.Context) error {
				<-c.Request().Context().Done()
				return errBackend
			},
			wantCode: http.StatusGatewayTimeout,
		},
		{
			name:    "fast failure keeps its own error",
			timeout: 5 * time.Second,
			handler: func(c echo.Context) error {
				return errBackend
			},
			wantErr: errBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := timeoutContext("/api/v1/health-summaries")
			err := RequestTimeout(tt.timeout)(tt.handler)(c)

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.wantCode != 0:
				var he *echo.HTTPError
				if !errors.As(err, &he) {
					t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
				}
				if he.Code != tt.wantCode {
					t.Errorf("expected %d, got %d", tt.wantCode, he.Code)
				}
			default:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

var errBackend = errors.New("backend unavailable")

func TestRequestTimeout_CommittedResponseIsKept(t *testing.T) {
	c, rec := timeoutContext("/api/v1/risk-analyses")
	handler := func(c echo.Context) error {
		if err := c.String(http.StatusOK, "partial"); err != nil {
			return err
		}
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	}

	err := RequestTimeout(20 * time.Millisecond)(handler)(c)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the raw deadline error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected committed 200 to stand, got %d", rec.Code)
	}
}

func TestRequestTimeout_SkipsConfiguredPrefixes(t *testing.T) {
	c, _ := timeoutContext("/api/v1/reports/risk-analyses.xlsx")

	called := false
	handler := func(c echo.Context) error {
		called = true
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("expected no deadline for report export")
		}
		return c.String(http.StatusOK, "exported")
	}

	if err := RequestTimeout(50*time.Millisecond, "/api/v1/reports/")(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called for skipped path")
	}
}

func TestRequestTimeout_ContextHasDeadline(t *testing.T) {
	c, _ := timeoutContext("/api/v1/health-summaries")
	handler := func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected context to have a deadline")
		}
		return nil
	}
	if err := RequestTimeout(30 * time.Second)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
