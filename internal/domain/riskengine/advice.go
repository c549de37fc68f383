package riskengine

import (
	"github.com/shopspring/decimal"
)

// -- Exclusions and waiting periods --

type exclusionRule struct {
	applies   func(s *HealthSummary) bool
	exclusion string
}

var exclusionRules = []exclusionRule{
	{
		applies:   func(s *HealthSummary) bool { return s.HasCondition(ConditionDiabetes) },
		exclusion: "Pre-existing diabetes complications",
	},
	{
		applies:   func(s *HealthSummary) bool { return s.HasCondition(ConditionHeartDisease) },
		exclusion: "Pre-existing cardiovascular conditions",
	},
	{
		applies:   func(s *HealthSummary) bool { return s.Lifestyle.Smoking },
		exclusion: "Smoking-related illnesses (first 2 years)",
	},
}

type waitingRule struct {
	applies func(s *HealthSummary) bool
	period  WaitingPeriod
}

var waitingRules = []waitingRule{
	{
		applies: func(s *HealthSummary) bool { return s.ChronicCount() > 0 },
		period:  WaitingPeriod{Condition: "Pre-existing conditions", Period: "12 months"},
	},
	{
		applies: func(s *HealthSummary) bool { return s.HasFamilyHistory(ConditionCancer) },
		period:  WaitingPeriod{Condition: "Cancer coverage", Period: "24 months"},
	},
}

// Exclusions lists the coverage exclusions triggered by s.
func Exclusions(s *HealthSummary) []string {
	out := []string{}
	for _, r := range exclusionRules {
		if r.applies(s) {
			out = append(out, r.exclusion)
		}
	}
	return out
}

// WaitingPeriods lists the waiting periods triggered by s.
func WaitingPeriods(s *HealthSummary) []WaitingPeriod {
	out := []WaitingPeriod{}
	for _, r := range waitingRules {
		if r.applies(s) {
			out = append(out, r.period)
		}
	}
	return out
}

// -- Claims prediction --

const maxPredictedClaims = 15

var (
	baseAnnualCost         = decimal.NewFromInt(3000)
	annualCostPerCondition = decimal.NewFromInt(5000)
	annualCostSenior       = decimal.NewFromInt(7000)
)

var levelCostFactors = map[RiskLevel]decimal.Decimal{
	RiskLevelCritical: decimal.New(25, -1),
	RiskLevelHigh:     decimal.New(18, -1),
	RiskLevelModerate: decimal.New(13, -1),
	RiskLevelLow:      decimal.NewFromInt(1),
}

// PredictClaims estimates the yearly claim count, capped at 15.
func PredictClaims(s *HealthSummary) int {
	n := 2 + 2*s.ChronicCount() + s.RecentHospitalizations
	if s.Age > seniorAge {
		n += 3
	}
	if n > maxPredictedClaims {
		return maxPredictedClaims
	}
	return n
}

// EstimateAnnualCost scales the base cost by the factor for the level the
// authoritative score bands into.
func EstimateAnnualCost(s *HealthSummary) decimal.Decimal {
	cost := baseAnnualCost.Add(annualCostPerCondition.Mul(decimal.NewFromInt(int64(s.ChronicCount()))))
	if s.Age > seniorAge {
		cost = cost.Add(annualCostSenior)
	}
	factor, ok := levelCostFactors[LevelForScore(s.RiskScore)]
	if !ok {
		factor = decimal.NewFromInt(1)
	}
	return cost.Mul(factor).Round(0)
}

// -- Preventive care --

type preventiveRule struct {
	applies func(s *HealthSummary) bool
	items   []string
}

var preventiveRules = []preventiveRule{
	{
		applies: func(s *HealthSummary) bool { return s.Age > 40 },
		items:   []string{"Annual comprehensive health screening"},
	},
	{
		applies: func(s *HealthSummary) bool { return s.HasCondition(ConditionDiabetes) },
		items: []string{
			"Quarterly blood glucose and HbA1c monitoring",
			"Annual diabetic eye and foot examination",
		},
	},
	{
		applies: func(s *HealthSummary) bool { return s.HasCondition(ConditionHeartDisease) },
		items: []string{
			"Regular cardiology follow-up",
			"Cardiac stress testing",
		},
	},
	{
		applies: func(s *HealthSummary) bool { return s.Lifestyle.Smoking },
		items: []string{
			"Smoking cessation program",
			"Low-dose CT lung cancer screening",
		},
	},
	{
		applies: func(s *HealthSummary) bool { return s.Lifestyle.Exercise == ExerciseLow },
		items:   []string{"Physical therapy or structured exercise program"},
	},
}

// PreventiveCare lists recommendations in rule order, without de-duplication.
func PreventiveCare(s *HealthSummary) []string {
	out := []string{}
	for _, r := range preventiveRules {
		if r.applies(s) {
			out = append(out, r.items...)
		}
	}
	return out
}
