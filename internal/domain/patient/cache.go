package patient

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ehr/riskadvisor/internal/domain/riskengine"
	"github.com/ehr/riskadvisor/internal/platform/cache"
	"github.com/ehr/riskadvisor/internal/platform/telemetry"
)

const cacheKeyPrefix = "health_summary:"

// CachedSummaryRepository is a read-through cache in front of another
// repository. Writes go to the backing repository first and then evict the
// cached copy. Cache failures degrade to direct reads.
type CachedSummaryRepository struct {
	next   SummaryRepository
	kv     cache.KVStore
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedSummaryRepository(next SummaryRepository, kv cache.KVStore, ttl time.Duration, logger zerolog.Logger) *CachedSummaryRepository {
	return &CachedSummaryRepository{
		next:   next,
		kv:     kv,
		ttl:    ttl,
		logger: logger.With().Str("component", "summary_cache").Logger(),
	}
}

func cacheKey(patientID string) string {
	return cacheKeyPrefix + patientID
}

func (r *CachedSummaryRepository) Get(ctx context.Context, patientID string) (*riskengine.HealthSummary, error) {
	raw, err := r.kv.Get(ctx, cacheKey(patientID))
	switch {
	case err == nil:
		var s riskengine.HealthSummary
		if uerr := json.Unmarshal([]byte(raw), &s); uerr == nil {
			telemetry.SummaryCacheRequests.WithLabelValues("hit").Inc()
			return &s, nil
		}
		r.logger.Warn().Str("patient_id", patientID).Msg("discarding undecodable cache entry")
		telemetry.SummaryCacheRequests.WithLabelValues("error").Inc()
	case errors.Is(err, cache.ErrCacheMiss):
		telemetry.SummaryCacheRequests.WithLabelValues("miss").Inc()
	default:
		r.logger.Warn().Err(err).Msg("summary cache read failed")
		telemetry.SummaryCacheRequests.WithLabelValues("error").Inc()
	}

	s, err := r.next.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if data, merr := json.Marshal(s); merr == nil {
		if serr := r.kv.Set(ctx, cacheKey(patientID), string(data), r.ttl); serr != nil {
			r.logger.Warn().Err(serr).Msg("summary cache write failed")
		}
	}
	return s, nil
}

func (r *CachedSummaryRepository) Upsert(ctx context.Context, s *riskengine.HealthSummary) error {
	if err := r.next.Upsert(ctx, s); err != nil {
		return err
	}
	r.evict(ctx, s.PatientID)
	return nil
}

func (r *CachedSummaryRepository) Delete(ctx context.Context, patientID string) error {
	if err := r.next.Delete(ctx, patientID); err != nil {
		return err
	}
	r.evict(ctx, patientID)
	return nil
}

func (r *CachedSummaryRepository) ListByRiskLevel(ctx context.Context, level riskengine.RiskLevel, limit, offset int) ([]*riskengine.HealthSummary, int, error) {
	return r.next.ListByRiskLevel(ctx, level, limit, offset)
}

func (r *CachedSummaryRepository) evict(ctx context.Context, patientID string) {
	if err := r.kv.Delete(ctx, cacheKey(patientID)); err != nil {
		r.logger.Warn().Err(err).Str("patient_id", patientID).Msg("summary cache eviction failed")
	}
}
