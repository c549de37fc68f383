package patient

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ehr/riskadvisor/internal/domain/riskengine"
)

// Claim amounts are stored as NUMERIC(14, 2).
const (
	maxAmountScale  = 2
	maxAmountDigits = 12
)

// ErrInvalidSummary matches any *ValidationError via errors.Is.
var ErrInvalidSummary = errors.New("invalid health summary")

// ValidationError lists every problem found in a summary.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return ErrInvalidSummary.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSummary
}

// Validator checks health summaries against their struct tags and the
// score banding rules. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Validate returns a *ValidationError describing everything wrong with s.
func (val *Validator) Validate(s *riskengine.HealthSummary) error {
	if s == nil {
		return &ValidationError{Problems: []string{"summary is required"}}
	}

	var problems []string
	if err := val.v.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
	}

	if s.RiskLevel.Valid() && s.RiskScore >= 0 && s.RiskScore <= 100 {
		if want := riskengine.LevelForScore(s.RiskScore); want != s.RiskLevel {
			problems = append(problems, fmt.Sprintf(
				"risk_level: %s does not match risk_score %d (expected %s)", s.RiskLevel, s.RiskScore, want))
		}
	}
	problems = append(problems, amountProblems("claims_history.total_amount", s.ClaimsHistory.TotalAmount)...)

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// amountProblems rejects amounts the summary table would round or overflow.
func amountProblems(field string, d decimal.Decimal) []string {
	var problems []string
	if d.IsNegative() {
		problems = append(problems, field+": must not be negative")
	}
	if !d.Equal(d.Truncate(maxAmountScale)) {
		problems = append(problems, fmt.Sprintf("%s: at most %d decimal places", field, maxAmountScale))
	}
	if len(d.Abs().Truncate(0).String()) > maxAmountDigits {
		problems = append(problems, fmt.Sprintf("%s: at most %d integer digits", field, maxAmountDigits))
	}
	return problems
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + ": is required"
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s]", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s: must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s: must be at most %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s: must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
}

// Normalize fills derivable fields and canonicalises tag sets in place:
// empty and duplicate tags are dropped and a missing risk level is derived
// from the score.
func Normalize(s *riskengine.HealthSummary) {
	s.PatientID = strings.TrimSpace(s.PatientID)
	s.ChronicConditions = riskengine.NormalizeTags(s.ChronicConditions)
	s.FamilyHistory = riskengine.NormalizeTags(s.FamilyHistory)
	if s.RiskLevel == "" {
		s.RiskLevel = riskengine.LevelForScore(s.RiskScore)
	}
}
