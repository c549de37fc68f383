package patient

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/riskadvisor/internal/domain/riskengine"
	"github.com/ehr/riskadvisor/internal/platform/auth"
)

// Service provides access-controlled reads and validated writes of patient
// health summaries.
type Service struct {
	summaries SummaryRepository
	validator *Validator
	logger    zerolog.Logger
}

func NewService(summaries SummaryRepository, logger zerolog.Logger) *Service {
	return &Service{
		summaries: summaries,
		validator: NewValidator(),
		logger:    logger.With().Str("component", "patient").Logger(),
	}
}

func (s *Service) GetSummary(ctx context.Context, patientID string) (*riskengine.HealthSummary, error) {
	if patientID == "" {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidSummary)
	}
	if err := auth.Authorize(ctx, auth.CapViewPatientData, patientID); err != nil {
		s.logger.Warn().Str("user_id", auth.UserIDFromContext(ctx)).Str("patient_id", patientID).Msg("summary access denied")
		return nil, err
	}
	return s.summaries.Get(ctx, patientID)
}

// SaveSummary normalizes, validates and stores sum, replacing any previous
// summary for the same patient.
func (s *Service) SaveSummary(ctx context.Context, sum *riskengine.HealthSummary) error {
	if sum == nil {
		return &ValidationError{Problems: []string{"summary is required"}}
	}
	Normalize(sum)
	if err := s.validator.Validate(sum); err != nil {
		return err
	}
	if err := s.summaries.Upsert(ctx, sum); err != nil {
		return fmt.Errorf("store summary %s: %w", sum.PatientID, err)
	}
	s.logger.Info().Str("user_id", auth.UserIDFromContext(ctx)).Str("patient_id", sum.PatientID).Msg("health summary saved")
	return nil
}

func (s *Service) DeleteSummary(ctx context.Context, patientID string) error {
	if patientID == "" {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidSummary)
	}
	return s.summaries.Delete(ctx, patientID)
}

// ListSummaries pages through summaries, optionally filtered by level. The
// caller needs view_patient_data without a patient binding, so patient-role
// callers are refused.
func (s *Service) ListSummaries(ctx context.Context, level riskengine.RiskLevel, limit, offset int) ([]*riskengine.HealthSummary, int, error) {
	if level != "" && !level.Valid() {
		return nil, 0, fmt.Errorf("%w: invalid risk_level %q", ErrInvalidSummary, level)
	}
	if err := auth.Authorize(ctx, auth.CapViewPatientData, ""); err != nil {
		return nil, 0, err
	}
	return s.summaries.ListByRiskLevel(ctx, level, limit, offset)
}
