package riskassessment

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/riskadvisor/internal/domain/patient"
	"github.com/ehr/riskadvisor/internal/domain/riskengine"
	"github.com/ehr/riskadvisor/internal/platform/auth"
	"github.com/ehr/riskadvisor/pkg/pagination"
)

// Handler provides HTTP handlers for risk analysis and the plan catalog.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:patient_id/risk-analysis", h.AnalyzePatient)
	api.POST("/risk-analyses", h.AnalyzeSummary)
	api.GET("/risk-analyses", h.AnalyzeByRiskLevel)
	api.GET("/insurance-plans", h.ListPlans)
}

func (h *Handler) AnalyzePatient(c echo.Context) error {
	a, err := h.svc.Analyze(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) AnalyzeSummary(c echo.Context) error {
	var s riskengine.HealthSummary
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.AnalyzeSummary(c.Request().Context(), &s)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) AnalyzeByRiskLevel(c echo.Context) error {
	pg := pagination.FromContext(c)
	level := riskengine.RiskLevel(c.QueryParam("risk_level"))
	items, total, err := h.svc.AnalyzeByRiskLevel(c.Request().Context(), level, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) ListPlans(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Catalog())
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, riskengine.ErrSummaryNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, patient.ErrInvalidSummary):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, riskengine.ErrCatalogConfiguration):
		return echo.NewHTTPError(http.StatusInternalServerError, "plan catalog unavailable").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
