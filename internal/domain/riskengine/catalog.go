package riskengine

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Tier names one of the four catalog products.
type Tier string

const (
	TierBasic         Tier = "Basic"
	TierStandard      Tier = "Standard"
	TierPremium       Tier = "Premium"
	TierComprehensive Tier = "Comprehensive"
)

func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierStandard, TierPremium, TierComprehensive:
		return true
	}
	return false
}

func (t *Tier) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	tier := Tier(s)
	if !tier.Valid() {
		return fmt.Errorf("invalid value for tier: %q", s)
	}
	*t = tier
	return nil
}

// Coverage holds the percentage covered per care category.
type Coverage struct {
	HospitalCare   int `json:"hospital_care" yaml:"hospital_care"`
	OutpatientCare int `json:"outpatient_care" yaml:"outpatient_care"`
	Prescription   int `json:"prescription" yaml:"prescription"`
	PreventiveCare int `json:"preventive_care" yaml:"preventive_care"`
	MentalHealth   int `json:"mental_health" yaml:"mental_health"`
	Dental         int `json:"dental" yaml:"dental"`
	Vision         int `json:"vision" yaml:"vision"`
}

func (c Coverage) categories() map[string]int {
	return map[string]int{
		"hospital_care":   c.HospitalCare,
		"outpatient_care": c.OutpatientCare,
		"prescription":    c.Prescription,
		"preventive_care": c.PreventiveCare,
		"mental_health":   c.MentalHealth,
		"dental":          c.Dental,
		"vision":          c.Vision,
	}
}

// RiskRange is an inclusive score band.
type RiskRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

func (r RiskRange) Contains(score int) bool {
	return score >= r.Min && score <= r.Max
}

type InsurancePlan struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Tier        Tier            `json:"tier" yaml:"tier"`
	BasePremium decimal.Decimal `json:"base_premium" yaml:"base_premium"`
	Coverage    Coverage        `json:"coverage" yaml:"coverage"`
	MaxCoverage decimal.Decimal `json:"max_coverage" yaml:"max_coverage"`
	Deductible  decimal.Decimal `json:"deductible" yaml:"deductible"`
	Copay       decimal.Decimal `json:"copay" yaml:"copay"`
	RiskRange   RiskRange       `json:"risk_range" yaml:"risk_range"`
}

// Catalog is the ordered plan table, ascending by risk range. Ranges are
// inclusive on both ends and neighbours may share a boundary score; the
// earlier plan wins a shared boundary.
type Catalog struct {
	Version string          `json:"version" yaml:"version"`
	Plans   []InsurancePlan `json:"plans" yaml:"plans"`
}

// TierOrder is the required catalog order, lowest risk first.
var TierOrder = []Tier{TierBasic, TierStandard, TierPremium, TierComprehensive}

// Validate checks the catalog holds one plan per tier in TierOrder, that the
// ranges partition [0,100] and that every plan can be selected by at least
// one score.
func (c *Catalog) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return &CatalogConfigurationError{Version: c.Version, Reason: fmt.Sprintf(format, args...)}
	}

	if len(c.Plans) == 0 {
		return fail("catalog has no plans")
	}
	if len(c.Plans) != len(TierOrder) {
		return fail("catalog must have %d plans, has %d", len(TierOrder), len(c.Plans))
	}

	ids := make(map[string]bool, len(c.Plans))
	for i, p := range c.Plans {
		if p.ID == "" {
			return fail("plan %d has no id", i)
		}
		if ids[p.ID] {
			return fail("duplicate plan id %q", p.ID)
		}
		ids[p.ID] = true

		if !p.Tier.Valid() {
			return fail("plan %q has invalid tier %q", p.ID, p.Tier)
		}
		if p.Tier != TierOrder[i] {
			return fail("plan %d (%q) must be tier %s, is %s", i, p.ID, TierOrder[i], p.Tier)
		}
		if !p.BasePremium.IsPositive() {
			return fail("plan %q base premium must be positive", p.ID)
		}
		if p.MaxCoverage.IsNegative() || p.Deductible.IsNegative() || p.Copay.IsNegative() {
			return fail("plan %q has a negative monetary amount", p.ID)
		}
		for name, pct := range p.Coverage.categories() {
			if pct < 0 || pct > 100 {
				return fail("plan %q coverage %s=%d outside 0-100", p.ID, name, pct)
			}
		}

		r := p.RiskRange
		if r.Min < 0 || r.Max > 100 || r.Min > r.Max {
			return fail("plan %q risk range [%d,%d] invalid", p.ID, r.Min, r.Max)
		}
		if i == 0 {
			if r.Min != 0 {
				return fail("first plan %q must start at 0, starts at %d", p.ID, r.Min)
			}
			continue
		}
		prev := c.Plans[i-1].RiskRange
		switch {
		case r.Min > prev.Max+1:
			return fail("gap between %d and %d before plan %q", prev.Max, r.Min, p.ID)
		case r.Min < prev.Max:
			return fail("plan %q range [%d,%d] overlaps previous plan ending at %d", p.ID, r.Min, r.Max, prev.Max)
		case r.Max == prev.Max:
			// The earlier plan wins the shared score, so nothing selects this one.
			return fail("plan %q range [%d,%d] is unreachable", p.ID, r.Min, r.Max)
		}
	}

	if last := c.Plans[len(c.Plans)-1].RiskRange; last.Max != 100 {
		return fail("last plan must end at 100, ends at %d", last.Max)
	}
	return nil
}

// PlanByTier returns the first plan with the given tier.
func (c *Catalog) PlanByTier(t Tier) (InsurancePlan, bool) {
	for _, p := range c.Plans {
		if p.Tier == t {
			return p, true
		}
	}
	return InsurancePlan{}, false
}
