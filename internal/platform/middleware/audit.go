package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/riskadvisor/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// AuditEntry records one access to patient data.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	PatientID  string
	Action     string // read, analyze, update, delete, export
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries. The structured log line is always
// written; recorders are an additional sink.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every request under /api/v1/ after the handler has run, with
// the caller identity, the patient touched and the outcome status.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, apiPrefix) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			ctx := req.Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Resource:   resourceFromPath(path),
				PatientID:  patientIDFromRequest(c),
				Action:     auditAction(req.Method, path),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: status,
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if status == http.StatusForbidden {
				evt = logger.Warn()
			}
			evt.
				Str("type", "phi_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

// resourceFromPath returns the last static segment of an API path:
//   - /api/v1/patients/P001/risk-analysis -> risk-analysis
//   - /api/v1/health-summaries            -> health-summaries
func resourceFromPath(path string) string {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, apiPrefix), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown"
	}
	if segments[0] == "patients" && len(segments) >= 3 {
		return segments[2]
	}
	return segments[0]
}

func patientIDFromRequest(c echo.Context) string {
	if pid := c.Param("patient_id"); pid != "" {
		return pid
	}
	path := strings.TrimPrefix(c.Request().URL.Path, apiPrefix)
	if strings.HasPrefix(path, "patients/") {
		if seg := strings.SplitN(strings.TrimPrefix(path, "patients/"), "/", 2)[0]; seg != "" {
			return seg
		}
	}
	return c.QueryParam("patient_id")
}

func auditAction(method, path string) string {
	switch {
	case strings.HasPrefix(path, apiPrefix+"reports/"):
		return "export"
	case strings.Contains(path, "risk-analys"):
		return "analyze"
	}
	switch method {
	case http.MethodPut, http.MethodPatch, http.MethodPost:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
