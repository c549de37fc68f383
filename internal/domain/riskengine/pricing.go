package riskengine

import (
	"github.com/shopspring/decimal"
)

// SelectPlan returns the first plan whose range contains score. A catalog
// that matches nothing falls back to its last plan; only an empty catalog
// is an error.
func SelectPlan(score int, plans []InsurancePlan) (InsurancePlan, error) {
	if len(plans) == 0 {
		return InsurancePlan{}, &CatalogConfigurationError{Reason: "no plans available for selection"}
	}
	for _, p := range plans {
		if p.RiskRange.Contains(score) {
			return p, nil
		}
	}
	return plans[len(plans)-1], nil
}

// premiumLoading adds to the premium multiplier when it applies.
type premiumLoading struct {
	name   string
	amount func(s *HealthSummary) decimal.Decimal
}

const (
	seniorAge              = 60
	hospitalizationTrigger = 1
)

var (
	loadingPerCondition = decimal.New(20, -2)
	loadingSmoker       = decimal.New(30, -2)
	loadingSenior       = decimal.New(25, -2)
	loadingAlcohol      = decimal.New(25, -2)
	loadingPerHospital  = decimal.New(15, -2)
	zero                = decimal.Zero
)

// Loadings are additive and independent. The multiplier has no ceiling:
// severely high-risk profiles can exceed several times the base premium.
var premiumLoadings = []premiumLoading{
	{name: "chronic_conditions", amount: func(s *HealthSummary) decimal.Decimal {
		return loadingPerCondition.Mul(decimal.NewFromInt(int64(s.ChronicCount())))
	}},
	{name: "smoking", amount: func(s *HealthSummary) decimal.Decimal {
		if s.Lifestyle.Smoking {
			return loadingSmoker
		}
		return zero
	}},
	{name: "senior", amount: func(s *HealthSummary) decimal.Decimal {
		if s.Age > seniorAge {
			return loadingSenior
		}
		return zero
	}},
	{name: "alcohol", amount: func(s *HealthSummary) decimal.Decimal {
		if s.Lifestyle.Alcohol {
			return loadingAlcohol
		}
		return zero
	}},
	// The full count is charged once the threshold is crossed.
	{name: "hospitalizations", amount: func(s *HealthSummary) decimal.Decimal {
		if s.RecentHospitalizations > hospitalizationTrigger {
			return loadingPerHospital.Mul(decimal.NewFromInt(int64(s.RecentHospitalizations)))
		}
		return zero
	}},
}

// PremiumMultiplier is 1 plus every applicable loading.
func PremiumMultiplier(s *HealthSummary) decimal.Decimal {
	m := decimal.NewFromInt(1)
	for _, l := range premiumLoadings {
		m = m.Add(l.amount(s))
	}
	return m
}

// CalculatePremium rounds base x multiplier to a whole currency unit,
// half away from zero.
func CalculatePremium(base decimal.Decimal, s *HealthSummary) decimal.Decimal {
	return base.Mul(PremiumMultiplier(s)).Round(0)
}
