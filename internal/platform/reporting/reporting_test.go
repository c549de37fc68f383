package reporting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ehr/riskadvisor/internal/domain/riskengine"
	"github.com/ehr/riskadvisor/internal/platform/auth"
)

type fakeAnalyzer struct {
	analyses []*riskengine.RiskAnalysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) AnalyzeByRiskLevel(_ context.Context, level riskengine.RiskLevel, limit, offset int) ([]*riskengine.RiskAnalysis, int, error) {
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	var matched []*riskengine.RiskAnalysis
	for _, a := range f.analyses {
		if level == "" || a.RiskLevel == level {
			matched = append(matched, a)
		}
	}
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func analysis(id string, score int, tier riskengine.Tier, premium string) *riskengine.RiskAnalysis {
	return &riskengine.RiskAnalysis{
		PatientID:        id,
		OverallRiskScore: score,
		RiskLevel:        riskengine.LevelForScore(score),
		RiskFactors:      []riskengine.RiskFactor{},
		Recommendations: riskengine.Recommendation{
			PlanID:     "plan-" + string(tier),
			PlanName:   string(tier) + " Care",
			PlanType:   tier,
			Premium:    decimal.RequireFromString(premium),
			Exclusions: []string{"Pre-existing diabetes complications", "Cosmetic procedures"},
		},
		AIInsights: riskengine.Insights{PredictedClaims: 8, CostEstimate: decimal.NewFromInt(23400)},
	}
}

func TestBuildWorkbook(t *testing.T) {
	analyses := []*riskengine.RiskAnalysis{
		analysis("P001", 75, riskengine.TierPremium, "878"),
		analysis("P002", 35, riskengine.TierBasic, "150"),
		analysis("P003", 85, riskengine.TierComprehensive, "2063"),
	}
	data, err := BuildWorkbook(analyses, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{AnalysesSheet, TiersSheet}, f.GetSheetList())

	rows, err := f.GetRows(AnalysesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, analysisHeaders, rows[0])
	assert.Equal(t, []string{
		"P001", "75", "High", "Premium Care", "Premium", "878", "8", "23400",
		"Pre-existing diabetes complications; Cosmetic procedures",
	}, rows[1])
	assert.Equal(t, "P003", rows[3][0])

	tiers, err := f.GetRows(TiersSheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Basic", "1"}, tiers[1])
	assert.Equal(t, []string{"Standard", "0"}, tiers[2])
	assert.Equal(t, []string{"Generated", "2024-03-01T12:00:00Z"}, tiers[6])
}

func TestBuildWorkbook_Empty(t *testing.T) {
	data, err := BuildWorkbook(nil, time.Now())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(AnalysesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCollect_PagesUntilTotal(t *testing.T) {
	fa := &fakeAnalyzer{}
	for i := 0; i < 250; i++ {
		fa.analyses = append(fa.analyses, analysis(fmt.Sprintf("P%03d", i), 70, riskengine.TierPremium, "450"))
	}

	got, err := Collect(context.Background(), fa, riskengine.RiskLevelHigh)
	require.NoError(t, err)
	assert.Len(t, got, 250)
	assert.Equal(t, 3, fa.calls)
	assert.Equal(t, "P249", got[249].PatientID)
}

func TestCollect_PropagatesError(t *testing.T) {
	fa := &fakeAnalyzer{err: &auth.AuthorizationError{Capability: auth.CapAnalyzeRisk}}
	_, err := Collect(context.Background(), fa, "")
	assert.True(t, errors.Is(err, auth.ErrForbidden))
}

func TestHandler_ExportRiskAnalyses(t *testing.T) {
	fa := &fakeAnalyzer{analyses: []*riskengine.RiskAnalysis{
		analysis("P001", 75, riskengine.TierPremium, "878"),
		analysis("P002", 35, riskengine.TierBasic, "150"),
	}}
	h := NewHandler(fa)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?risk_level=High", nil), rec)

	require.NoError(t, h.ExportRiskAnalyses(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "risk-analyses-high.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(AnalysesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestHandler_ExportRiskAnalyses_Errors(t *testing.T) {
	e := echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?risk_level=Severe", nil), httptest.NewRecorder())
	err := NewHandler(&fakeAnalyzer{}).ExportRiskAnalyses(c)
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err = NewHandler(&fakeAnalyzer{err: &auth.AuthorizationError{}}).ExportRiskAnalyses(c)
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusForbidden, he.Code)
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), "ph-1", []string{auth.RolePharmacy}, "")
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(&fakeAnalyzer{}).RegisterRoutes(api)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/risk-analyses.xlsx", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/unknown.csv", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
