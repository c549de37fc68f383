// Package riskengine turns a patient health summary into a plan
// recommendation: weighted risk factors, the catalog plan owning the
// patient's risk score, a risk-adjusted premium, exclusions, waiting
// periods, claim predictions and preventive-care advice.
//
// Everything here is a pure function of its arguments. Callers may analyze
// any number of summaries concurrently against a shared *Catalog as long as
// nobody mutates the catalog in place.
package riskengine

import "errors"

// Analyze runs the full pipeline for one summary. It returns either a
// complete analysis or an error, never a partial result.
func Analyze(s *HealthSummary, catalog *Catalog) (*RiskAnalysis, error) {
	if s == nil {
		return nil, &NotFoundError{}
	}
	if catalog == nil {
		return nil, &CatalogConfigurationError{Reason: "no catalog loaded"}
	}

	plan, err := SelectPlan(s.RiskScore, catalog.Plans)
	if err != nil {
		var ce *CatalogConfigurationError
		if errors.As(err, &ce) {
			ce.Version = catalog.Version
		}
		return nil, err
	}

	return &RiskAnalysis{
		PatientID:        s.PatientID,
		OverallRiskScore: s.RiskScore,
		RiskLevel:        LevelForScore(s.RiskScore),
		RiskFactors:      AnalyzeFactors(s),
		Recommendations: Recommendation{
			PlanID:             plan.ID,
			PlanName:           plan.Name,
			PlanType:           plan.Tier,
			Premium:            CalculatePremium(plan.BasePremium, s),
			CoverageCategories: plan.Coverage,
			Exclusions:         Exclusions(s),
			WaitingPeriods:     WaitingPeriods(s),
		},
		AIInsights: Insights{
			PredictedClaims:               PredictClaims(s),
			CostEstimate:                  EstimateAnnualCost(s),
			PreventiveCareRecommendations: PreventiveCare(s),
		},
	}, nil
}
