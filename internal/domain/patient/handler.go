package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/riskadvisor/internal/domain/riskengine"
	"github.com/ehr/riskadvisor/internal/platform/auth"
	"github.com/ehr/riskadvisor/pkg/pagination"
)

// Handler provides HTTP handlers for patient health summaries.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the health summary routes. Reads are checked per
// patient by the service; writes are limited to clinicians.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:patient_id/health-summary", h.GetSummary)
	api.GET("/health-summaries", h.ListSummaries)

	clinician := auth.RequireRole(auth.RoleDoctor)
	api.PUT("/patients/:patient_id/health-summary", h.PutSummary, clinician)
	api.DELETE("/patients/:patient_id/health-summary", h.DeleteSummary, clinician)
}

func (h *Handler) GetSummary(c echo.Context) error {
	s, err := h.svc.GetSummary(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) PutSummary(c echo.Context) error {
	var s riskengine.HealthSummary
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pid := c.Param("patient_id")
	if s.PatientID != "" && s.PatientID != pid {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id in body does not match path")
	}
	s.PatientID = pid
	if err := h.svc.SaveSummary(c.Request().Context(), &s); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteSummary(c echo.Context) error {
	if err := h.svc.DeleteSummary(c.Request().Context(), c.Param("patient_id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListSummaries(c echo.Context) error {
	pg := pagination.FromContext(c)
	level := riskengine.RiskLevel(c.QueryParam("risk_level"))
	items, total, err := h.svc.ListSummaries(c.Request().Context(), level, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, riskengine.ErrSummaryNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidSummary):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
