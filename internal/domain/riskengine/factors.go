package riskengine

import "fmt"

// factorRule emits at most one factor for a summary. Rules run in table
// order and their output is never re-sorted.
type factorRule struct {
	name string
	eval func(s *HealthSummary) (RiskFactor, bool)
}

var factorRules = []factorRule{
	{name: "age", eval: ageFactor},
	{name: "chronic_conditions", eval: func(s *HealthSummary) (RiskFactor, bool) {
		n := s.ChronicCount()
		if n == 0 {
			return RiskFactor{}, false
		}
		return RiskFactor{
			Factor:      "Chronic conditions",
			Weight:      0.30,
			Impact:      ImpactHigh,
			Description: fmt.Sprintf("%d chronic condition(s) on record", n),
		}, true
	}},
	{name: "smoking", eval: func(s *HealthSummary) (RiskFactor, bool) {
		if !s.Lifestyle.Smoking {
			return RiskFactor{}, false
		}
		return RiskFactor{
			Factor:      "Smoking",
			Weight:      0.25,
			Impact:      ImpactHigh,
			Description: "Active smoker",
		}, true
	}},
	{name: "exercise", eval: func(s *HealthSummary) (RiskFactor, bool) {
		if s.Lifestyle.Exercise != ExerciseLow {
			return RiskFactor{}, false
		}
		return RiskFactor{
			Factor:      "Sedentary lifestyle",
			Weight:      0.15,
			Impact:      ImpactMedium,
			Description: "Low level of physical activity",
		}, true
	}},
	{name: "family_history", eval: func(s *HealthSummary) (RiskFactor, bool) {
		n := s.FamilyHistoryCount()
		if n <= 2 {
			return RiskFactor{}, false
		}
		return RiskFactor{
			Factor:      "Family history",
			Weight:      0.10,
			Impact:      ImpactMedium,
			Description: fmt.Sprintf("%d conditions in family history", n),
		}, true
	}},
}

func ageFactor(s *HealthSummary) (RiskFactor, bool) {
	switch {
	case s.Age > 60:
		return RiskFactor{
			Factor:      "Age",
			Weight:      0.20,
			Impact:      ImpactHigh,
			Description: fmt.Sprintf("Age %d is above 60", s.Age),
		}, true
	case s.Age > 40:
		return RiskFactor{
			Factor:      "Age",
			Weight:      0.10,
			Impact:      ImpactMedium,
			Description: fmt.Sprintf("Age %d is above 40", s.Age),
		}, true
	}
	return RiskFactor{}, false
}

// AnalyzeFactors lists the risk factors present in s.
func AnalyzeFactors(s *HealthSummary) []RiskFactor {
	factors := make([]RiskFactor, 0, len(factorRules))
	for _, rule := range factorRules {
		if f, ok := rule.eval(s); ok {
			factors = append(factors, f)
		}
	}
	return factors
}
