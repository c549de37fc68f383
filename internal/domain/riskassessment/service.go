// Package riskassessment runs the risk engine on behalf of authenticated
// callers. It enforces the capability checks, loads summaries through the
// patient repository and records analysis metrics.
package riskassessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/riskadvisor/internal/domain/patient"
	"github.com/ehr/riskadvisor/internal/domain/plancatalog"
	"github.com/ehr/riskadvisor/internal/domain/riskengine"
	"github.com/ehr/riskadvisor/internal/platform/auth"
	"github.com/ehr/riskadvisor/internal/platform/telemetry"
)

const defaultConcurrency = 8

type Service struct {
	summaries   patient.SummaryRepository
	catalogs    *plancatalog.Provider
	validator   *patient.Validator
	concurrency int
	logger      zerolog.Logger
}

// NewService creates a Service. concurrency bounds the number of analyses a
// batch computes at once; values below 1 use the default.
func NewService(summaries patient.SummaryRepository, catalogs *plancatalog.Provider, concurrency int, logger zerolog.Logger) *Service {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	return &Service{
		summaries:   summaries,
		catalogs:    catalogs,
		validator:   patient.NewValidator(),
		concurrency: concurrency,
		logger:      logger.With().Str("component", "riskassessment").Logger(),
	}
}

// Analyze loads the stored summary for patientID and analyzes it. Both
// view_patient_data and analyze_risk are checked before anything is computed.
func (s *Service) Analyze(ctx context.Context, patientID string) (*riskengine.RiskAnalysis, error) {
	if patientID == "" {
		return nil, fmt.Errorf("%w: patient_id is required", patient.ErrInvalidSummary)
	}
	if err := auth.Authorize(ctx, auth.CapViewPatientData, patientID); err != nil {
		return nil, s.fail(ctx, err, patientID)
	}
	sum, err := s.summaries.Get(ctx, patientID)
	if err != nil {
		return nil, s.fail(ctx, err, patientID)
	}
	if err := auth.Authorize(ctx, auth.CapAnalyzeRisk, patientID); err != nil {
		return nil, s.fail(ctx, err, patientID)
	}
	return s.run(ctx, sum, s.catalogs.Current())
}

// AnalyzeSummary analyzes a caller-supplied summary without storing it.
func (s *Service) AnalyzeSummary(ctx context.Context, sum *riskengine.HealthSummary) (*riskengine.RiskAnalysis, error) {
	if sum == nil {
		return nil, &patient.ValidationError{Problems: []string{"summary is required"}}
	}
	patient.Normalize(sum)
	if err := auth.Authorize(ctx, auth.CapAnalyzeRisk, sum.PatientID); err != nil {
		return nil, s.fail(ctx, err, sum.PatientID)
	}
	if err := s.validator.Validate(sum); err != nil {
		return nil, s.fail(ctx, err, sum.PatientID)
	}
	return s.run(ctx, sum, s.catalogs.Current())
}

// AnalyzeByRiskLevel analyzes one page of stored summaries, optionally
// filtered by level. Results keep the repository order. Every analysis in a
// batch uses the same catalog snapshot.
func (s *Service) AnalyzeByRiskLevel(ctx context.Context, level riskengine.RiskLevel, limit, offset int) ([]*riskengine.RiskAnalysis, int, error) {
	if level != "" && !level.Valid() {
		return nil, 0, fmt.Errorf("%w: invalid risk_level %q", patient.ErrInvalidSummary, level)
	}
	for _, c := range []auth.Capability{auth.CapViewPatientData, auth.CapAnalyzeRisk} {
		if err := auth.Authorize(ctx, c, ""); err != nil {
			return nil, 0, s.fail(ctx, err, "")
		}
	}

	sums, total, err := s.summaries.ListByRiskLevel(ctx, level, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list summaries: %w", err)
	}

	catalog := s.catalogs.Current()
	out := make([]*riskengine.RiskAnalysis, len(sums))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, sum := range sums {
		i, sum := i, sum
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a, err := s.run(gctx, sum, catalog)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", sum.PatientID, err)
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	s.logger.Info().
		Str("user_id", auth.UserIDFromContext(ctx)).
		Str("risk_level", string(level)).
		Int("count", len(out)).
		Int("total", total).
		Msg("batch risk analysis completed")
	return out, total, nil
}

// Catalog returns the plan catalog currently used for recommendations.
func (s *Service) Catalog() *riskengine.Catalog {
	return s.catalogs.Current()
}

func (s *Service) run(ctx context.Context, sum *riskengine.HealthSummary, catalog *riskengine.Catalog) (*riskengine.RiskAnalysis, error) {
	start := time.Now()
	a, err := riskengine.Analyze(sum, catalog)
	if err != nil {
		return nil, s.fail(ctx, err, sum.PatientID)
	}
	telemetry.AnalysisDuration.Observe(time.Since(start).Seconds())
	telemetry.AnalysesTotal.WithLabelValues(string(a.Recommendations.PlanType)).Inc()
	return a, nil
}

// fail records the failure reason and returns err unchanged.
func (s *Service) fail(ctx context.Context, err error, patientID string) error {
	reason := failureReason(err)
	telemetry.AnalysisFailures.WithLabelValues(reason).Inc()

	ev := s.logger.Warn()
	if reason == "catalog" || reason == "internal" {
		ev = s.logger.Error()
	}
	ev.Err(err).
		Str("reason", reason).
		Str("user_id", auth.UserIDFromContext(ctx)).
		Str("patient_id", patientID).
		Msg("risk analysis failed")
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return "forbidden"
	case errors.Is(err, riskengine.ErrSummaryNotFound):
		return "not_found"
	case errors.Is(err, patient.ErrInvalidSummary):
		return "invalid"
	case errors.Is(err, riskengine.ErrCatalogConfiguration):
		return "catalog"
	default:
		return "internal"
	}
}
