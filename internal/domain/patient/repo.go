package patient

import (
	"context"

	"github.com/ehr/riskadvisor/internal/domain/riskengine"
)

// SummaryRepository stores one health summary per patient. Get and Delete
// return *riskengine.NotFoundError when the patient has no summary.
type SummaryRepository interface {
	Get(ctx context.Context, patientID string) (*riskengine.HealthSummary, error)
	Upsert(ctx context.Context, s *riskengine.HealthSummary) error
	Delete(ctx context.Context, patientID string) error
	// ListByRiskLevel pages through summaries ordered by patient id. An empty
	// level lists every summary.
	ListByRiskLevel(ctx context.Context, level riskengine.RiskLevel, limit, offset int) ([]*riskengine.HealthSummary, int, error)
}
