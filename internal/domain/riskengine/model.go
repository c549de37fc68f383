package riskengine

import (
	"github.com/shopspring/decimal"
)

// RiskLevel is the coarse four-band classification of a risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "Low"
	RiskLevelModerate RiskLevel = "Moderate"
	RiskLevelHigh     RiskLevel = "High"
	RiskLevelCritical RiskLevel = "Critical"
)

// Valid reports whether l is one of the four known levels.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLevelLow, RiskLevelModerate, RiskLevelHigh, RiskLevelCritical:
		return true
	}
	return false
}

// LevelForScore bands a 0-100 score: Low 0-39, Moderate 40-64, High 65-79,
// Critical 80-100.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskLevelCritical
	case score >= 65:
		return RiskLevelHigh
	case score >= 40:
		return RiskLevelModerate
	default:
		return RiskLevelLow
	}
}

type ExerciseLevel string

const (
	ExerciseLow      ExerciseLevel = "Low"
	ExerciseModerate ExerciseLevel = "Moderate"
	ExerciseHigh     ExerciseLevel = "High"
)

type DietQuality string

const (
	DietPoor      DietQuality = "Poor"
	DietFair      DietQuality = "Fair"
	DietGood      DietQuality = "Good"
	DietExcellent DietQuality = "Excellent"
)

// Impact grades how strongly a single risk factor weighs on the profile.
type Impact string

const (
	ImpactLow    Impact = "Low"
	ImpactMedium Impact = "Medium"
	ImpactHigh   Impact = "High"
)

// Well-known condition tags referenced by the rule tables.
const (
	ConditionDiabetes     = "diabetes"
	ConditionHeartDisease = "heart_disease"
	ConditionCancer       = "cancer"
)

type LifestyleFactors struct {
	Smoking  bool          `json:"smoking"`
	Alcohol  bool          `json:"alcohol"`
	Exercise ExerciseLevel `json:"exercise" validate:"required,oneof=Low Moderate High"`
	Diet     DietQuality   `json:"diet" validate:"required,oneof=Poor Fair Good Excellent"`
}

type ClaimsHistory struct {
	TotalClaims int             `json:"total_claims" validate:"gte=0"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// HealthSummary is the patient profile the engine reads. RiskScore is computed
// upstream and is authoritative for plan selection; RiskLevel is carried for
// display and grouping only.
type HealthSummary struct {
	PatientID              string           `json:"patient_id" validate:"required,max=64"`
	Age                    int              `json:"age" validate:"gte=0,lte=150"`
	RiskScore              int              `json:"risk_score" validate:"gte=0,lte=100"`
	RiskLevel              RiskLevel        `json:"risk_level" validate:"required,oneof=Low Moderate High Critical"`
	ChronicConditions      []string         `json:"chronic_conditions" validate:"dive,required"`
	RecentHospitalizations int              `json:"recent_hospitalizations" validate:"gte=0"`
	Lifestyle              LifestyleFactors `json:"lifestyle_factors"`
	FamilyHistory          []string         `json:"family_history" validate:"dive,required"`
	ClaimsHistory          ClaimsHistory    `json:"claims_history"`
}

// HasCondition reports whether tag is among the chronic conditions.
func (s *HealthSummary) HasCondition(tag string) bool {
	return containsTag(s.ChronicConditions, tag)
}

// HasFamilyHistory reports whether tag is among the family history entries.
func (s *HealthSummary) HasFamilyHistory(tag string) bool {
	return containsTag(s.FamilyHistory, tag)
}

// ChronicCount is the number of distinct chronic condition tags.
func (s *HealthSummary) ChronicCount() int {
	return len(NormalizeTags(s.ChronicConditions))
}

// FamilyHistoryCount is the number of distinct family history tags.
func (s *HealthSummary) FamilyHistoryCount() int {
	return len(NormalizeTags(s.FamilyHistory))
}

// NormalizeTags removes empty and duplicate tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RiskFactor is one weighted contributor to a patient's risk profile.
type RiskFactor struct {
	Factor      string  `json:"factor"`
	Weight      float64 `json:"weight"`
	Impact      Impact  `json:"impact"`
	Description string  `json:"description"`
}

// WaitingPeriod delays coverage for a condition category.
type WaitingPeriod struct {
	Condition string `json:"condition"`
	Period    string `json:"period"`
}

type Recommendation struct {
	PlanID             string          `json:"plan_id"`
	PlanName           string          `json:"plan_name"`
	PlanType           Tier            `json:"plan_type"`
	Premium            decimal.Decimal `json:"premium"`
	CoverageCategories Coverage        `json:"coverage_categories"`
	Exclusions         []string        `json:"exclusions"`
	WaitingPeriods     []WaitingPeriod `json:"waiting_periods"`
}

type Insights struct {
	PredictedClaims               int             `json:"predicted_claims"`
	CostEstimate                  decimal.Decimal `json:"cost_estimate"`
	PreventiveCareRecommendations []string        `json:"preventive_care_recommendations"`
}

// RiskAnalysis is the complete engine output for one summary.
type RiskAnalysis struct {
	PatientID        string         `json:"patient_id"`
	OverallRiskScore int            `json:"overall_risk_score"`
	RiskLevel        RiskLevel      `json:"risk_level"`
	RiskFactors      []RiskFactor   `json:"risk_factors"`
	Recommendations  Recommendation `json:"recommendations"`
	AIInsights       Insights       `json:"ai_insights"`
}
