// Package reporting exports batch risk analyses as XLSX workbooks.
package reporting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/ehr/riskadvisor/internal/domain/riskengine"
	"github.com/ehr/riskadvisor/internal/platform/auth"
	"github.com/ehr/riskadvisor/pkg/pagination"
)

const (
	AnalysesSheet = "Risk Analyses"
	TiersSheet    = "Plan Tiers"

	// MaxReportRows caps how many analyses one export will collect.
	MaxReportRows = 10000

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var analysisHeaders = []string{
	"Patient ID", "Risk Score", "Risk Level", "Plan", "Plan Tier",
	"Monthly Premium", "Predicted Claims", "Cost Estimate", "Exclusions",
}

var columnWidths = []float64{14, 11, 11, 22, 15, 16, 16, 15, 60}

// BatchAnalyzer produces one page of analyses for a risk level.
type BatchAnalyzer interface {
	AnalyzeByRiskLevel(ctx context.Context, level riskengine.RiskLevel, limit, offset int) ([]*riskengine.RiskAnalysis, int, error)
}

// Collect pages through analyzer until every analysis for level is read or
// MaxReportRows is reached.
func Collect(ctx context.Context, analyzer BatchAnalyzer, level riskengine.RiskLevel) ([]*riskengine.RiskAnalysis, error) {
	var out []*riskengine.RiskAnalysis
	for p := pagination.New(pagination.MaxLimit, 0); len(out) < MaxReportRows; {
		page, total, err := analyzer.AnalyzeByRiskLevel(ctx, level, p.Limit, p.Offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		next, ok := p.Next(total)
		if len(page) == 0 || !ok {
			break
		}
		p = next
	}
	if len(out) > MaxReportRows {
		out = out[:MaxReportRows]
	}
	return out, nil
}

// BuildWorkbook renders analyses into an XLSX document: one row per patient
// on the first sheet and a per-tier summary on the second.
func BuildWorkbook(analyses []*riskengine.RiskAnalysis, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(AnalysesSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := writeRow(f, AnalysesSheet, 1, stringsToRow(analysisHeaders)); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(analysisHeaders), 1)
	if err := f.SetCellStyle(AnalysesSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}
	for i, w := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(AnalysesSheet, col, col, w); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	tiers := make(map[riskengine.Tier]int)
	for i, a := range analyses {
		rec := a.Recommendations
		row := []interface{}{
			a.PatientID,
			a.OverallRiskScore,
			string(a.RiskLevel),
			rec.PlanName,
			string(rec.PlanType),
			rec.Premium.InexactFloat64(),
			a.AIInsights.PredictedClaims,
			a.AIInsights.CostEstimate.InexactFloat64(),
			strings.Join(rec.Exclusions, "; "),
		}
		if err := writeRow(f, AnalysesSheet, i+2, row); err != nil {
			return nil, err
		}
		tiers[rec.PlanType]++
	}

	if err := f.SetPanes(AnalysesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.NewSheet(TiersSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := writeRow(f, TiersSheet, 1, []interface{}{"Plan Tier", "Patients"}); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(TiersSheet, "A1", "B1", headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}
	row := 2
	for _, t := range []riskengine.Tier{riskengine.TierBasic, riskengine.TierStandard, riskengine.TierPremium, riskengine.TierComprehensive} {
		if err := writeRow(f, TiersSheet, row, []interface{}{string(t), tiers[t]}); err != nil {
			return nil, err
		}
		row++
	}
	if err := writeRow(f, TiersSheet, row+1, []interface{}{"Generated", generatedAt.UTC().Format(time.RFC3339)}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func stringsToRow(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// Handler serves risk reports over HTTP.
type Handler struct {
	analyzer BatchAnalyzer
	now      func() time.Time
}

func NewHandler(analyzer BatchAnalyzer) *Handler {
	return &Handler{analyzer: analyzer, now: time.Now}
}

// RegisterRoutes registers the report export routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reports/risk-analyses.xlsx", h.ExportRiskAnalyses, auth.RequireRole(auth.RoleInsurance))
}

// ExportRiskAnalyses streams an XLSX workbook of analyses for the optional
// risk_level query parameter.
func (h *Handler) ExportRiskAnalyses(c echo.Context) error {
	level := riskengine.RiskLevel(c.QueryParam("risk_level"))
	if level != "" && !level.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid risk_level %q", level))
	}

	analyses, err := Collect(c.Request().Context(), h.analyzer, level)
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "report generation failed").SetInternal(err)
	}

	data, err := BuildWorkbook(analyses, h.now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "report generation failed").SetInternal(err)
	}

	name := "risk-analyses"
	if level != "" {
		name += "-" + strings.ToLower(string(level))
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.xlsx"`, name))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}
