package riskassessment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/riskadvisor/internal/domain/plancatalog"
	"github.com/ehr/riskadvisor/internal/domain/riskengine"
	"github.com/ehr/riskadvisor/internal/platform/auth"
)

func requestAs(req *http.Request, role, patientID string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), "u-"+role, []string{role}, patientID))
}

func expectHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestHandler_AnalyzePatient(t *testing.T) {
	h := NewHandler(newTestService(t, newMockSummaryRepo(highRiskSummary("P001"))))
	e := echo.New()

	req := requestAs(httptest.NewRequest(http.MethodGet, "/", nil), auth.RoleDoctor, "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patient_id")
	c.SetParamValues("P001")

	if err := h.AnalyzePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"patient_id", "overall_risk_score", "risk_level", "risk_factors", "recommendations", "ai_insights"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
	rec2 := body["recommendations"].(map[string]interface{})
	if rec2["premium"] != "878" {
		t.Errorf("expected premium serialized as \"878\", got %v", rec2["premium"])
	}
}

func TestHandler_AnalyzePatient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		role    string
		boundID string
		id      string
		catalog *riskengine.Catalog
		want    int
	}{
		{"missing summary", auth.RoleDoctor, "", "P404", nil, http.StatusNotFound},
		{"pharmacy", auth.RolePharmacy, "", "P001", nil, http.StatusForbidden},
		{"other patient", auth.RolePatient, "P002", "P001", nil, http.StatusForbidden},
		{"broken catalog", auth.RoleDoctor, "", "P001", &riskengine.Catalog{Version: "x"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, newMockSummaryRepo(highRiskSummary("P001")))
			if tt.catalog != nil {
				svc = NewService(svc.summaries, plancatalog.NewStaticProvider(tt.catalog), 1, zerolog.Nop())
			}
			h := NewHandler(svc)
			e := echo.New()

			req := requestAs(httptest.NewRequest(http.MethodGet, "/", nil), tt.role, tt.boundID)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetParamNames("patient_id")
			c.SetParamValues(tt.id)
			expectHTTPStatus(t, h.AnalyzePatient(c), tt.want)
		})
	}
}

func TestHandler_AnalyzeSummary(t *testing.T) {
	h := NewHandler(newTestService(t, newMockSummaryRepo()))
	e := echo.New()

	body := `{
		"patient_id": "P003", "age": 67, "risk_score": 85, "risk_level": "Critical",
		"chronic_conditions": ["heart_disease", "arthritis", "chronic_kidney_disease"],
		"recent_hospitalizations": 4,
		"lifestyle_factors": {"smoking": true, "alcohol": false, "exercise": "Low", "diet": "Poor"},
		"family_history": ["heart_disease"],
		"claims_history": {"total_claims": 0, "total_amount": 0}
	}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = requestAs(req, auth.RoleInsurance, "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.AnalyzeSummary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got riskengine.RiskAnalysis
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Recommendations.PlanType != riskengine.TierComprehensive {
		t.Errorf("expected Comprehensive, got %s", got.Recommendations.PlanType)
	}
	if got.Recommendations.Premium.String() != "2063" {
		t.Errorf("expected premium 2063, got %s", got.Recommendations.Premium)
	}
}

func TestHandler_AnalyzeSummary_BadInput(t *testing.T) {
	h := NewHandler(newTestService(t, newMockSummaryRepo()))
	e := echo.New()

	for name, body := range map[string]string{
		"malformed json": `{"age": `,
		"score too high": `{"patient_id": "P1", "age": 30, "risk_score": 120, "risk_level": "Critical",
			"lifestyle_factors": {"exercise": "Low", "diet": "Poor"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			req = requestAs(req, auth.RoleDoctor, "")
			c := e.NewContext(req, httptest.NewRecorder())
			expectHTTPStatus(t, h.AnalyzeSummary(c), http.StatusBadRequest)
		})
	}
}

func TestHandler_AnalyzeByRiskLevel(t *testing.T) {
	h := NewHandler(newTestService(t, newMockSummaryRepo(
		highRiskSummary("P002"), highRiskSummary("P001"), lowRiskSummary("P003"),
	)))
	e := echo.New()

	req := requestAs(httptest.NewRequest(http.MethodGet, "/?risk_level=High", nil), auth.RoleInsurance, "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.AnalyzeByRiskLevel(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []riskengine.RiskAnalysis `json:"data"`
		Total int                       `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || len(body.Data) != 2 || body.Data[0].PatientID != "P001" || body.Data[1].PatientID != "P002" {
		t.Errorf("unexpected batch: %+v", body)
	}
}

func TestHandler_ListPlans(t *testing.T) {
	h := NewHandler(newTestService(t, newMockSummaryRepo()))
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := h.ListPlans(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var cat riskengine.Catalog
	if err := json.Unmarshal(rec.Body.Bytes(), &cat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cat.Plans) != 4 || cat.Plans[0].Tier != riskengine.TierBasic {
		t.Errorf("unexpected catalog: %+v", cat)
	}
}
