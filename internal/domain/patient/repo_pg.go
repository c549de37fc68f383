package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ehr/riskadvisor/internal/domain/riskengine"
	"github.com/ehr/riskadvisor/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type summaryRepoPG struct{ pool *pgxpool.Pool }

func NewSummaryRepoPG(pool *pgxpool.Pool) SummaryRepository {
	return &summaryRepoPG{pool: pool}
}

func (r *summaryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const summaryCols = `patient_id, age, risk_score, risk_level, chronic_conditions,
	recent_hospitalizations, lifestyle, family_history, total_claims,
	total_claims_amount::text`

func (r *summaryRepoPG) scanSummary(row pgx.Row) (*riskengine.HealthSummary, error) {
	var (
		s                          riskengine.HealthSummary
		level, amount              string
		chronic, lifestyle, family []byte
	)
	err := row.Scan(&s.PatientID, &s.Age, &s.RiskScore, &level, &chronic,
		&s.RecentHospitalizations, &lifestyle, &family, &s.ClaimsHistory.TotalClaims, &amount)
	if err != nil {
		return nil, err
	}
	s.RiskLevel = riskengine.RiskLevel(level)

	if err := json.Unmarshal(chronic, &s.ChronicConditions); err != nil {
		return nil, fmt.Errorf("decode chronic_conditions for %s: %w", s.PatientID, err)
	}
	if err := json.Unmarshal(lifestyle, &s.Lifestyle); err != nil {
		return nil, fmt.Errorf("decode lifestyle for %s: %w", s.PatientID, err)
	}
	if err := json.Unmarshal(family, &s.FamilyHistory); err != nil {
		return nil, fmt.Errorf("decode family_history for %s: %w", s.PatientID, err)
	}
	if s.ClaimsHistory.TotalAmount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("decode total_claims_amount for %s: %w", s.PatientID, err)
	}
	return &s, nil
}

func (r *summaryRepoPG) Get(ctx context.Context, patientID string) (*riskengine.HealthSummary, error) {
	s, err := r.scanSummary(r.conn(ctx).QueryRow(ctx,
		`SELECT `+summaryCols+` FROM patient_health_summary WHERE patient_id = $1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &riskengine.NotFoundError{PatientID: patientID}
	}
	return s, err
}

func (r *summaryRepoPG) Upsert(ctx context.Context, s *riskengine.HealthSummary) error {
	chronic, err := json.Marshal(s.ChronicConditions)
	if err != nil {
		return err
	}
	lifestyle, err := json.Marshal(s.Lifestyle)
	if err != nil {
		return err
	}
	family, err := json.Marshal(s.FamilyHistory)
	if err != nil {
		return err
	}

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_health_summary (patient_id, age, risk_score, risk_level,
			chronic_conditions, recent_hospitalizations, lifestyle, family_history,
			total_claims, total_claims_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::numeric)
		ON CONFLICT (patient_id) DO UPDATE SET
			age = EXCLUDED.age,
			risk_score = EXCLUDED.risk_score,
			risk_level = EXCLUDED.risk_level,
			chronic_conditions = EXCLUDED.chronic_conditions,
			recent_hospitalizations = EXCLUDED.recent_hospitalizations,
			lifestyle = EXCLUDED.lifestyle,
			family_history = EXCLUDED.family_history,
			total_claims = EXCLUDED.total_claims,
			total_claims_amount = EXCLUDED.total_claims_amount,
			updated_at = NOW()`,
		s.PatientID, s.Age, s.RiskScore, string(s.RiskLevel),
		chronic, s.RecentHospitalizations, lifestyle, family,
		s.ClaimsHistory.TotalClaims, s.ClaimsHistory.TotalAmount.String())
	return err
}

func (r *summaryRepoPG) Delete(ctx context.Context, patientID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_health_summary WHERE patient_id = $1`, patientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &riskengine.NotFoundError{PatientID: patientID}
	}
	return nil
}

func (r *summaryRepoPG) ListByRiskLevel(ctx context.Context, level riskengine.RiskLevel, limit, offset int) ([]*riskengine.HealthSummary, int, error) {
	where, args := "", []interface{}{}
	if level != "" {
		where = ` WHERE risk_level = $1`
		args = append(args, string(level))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient_health_summary`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM patient_health_summary%s ORDER BY patient_id LIMIT $%d OFFSET $%d`,
		summaryCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*riskengine.HealthSummary{}
	for rows.Next() {
		s, err := r.scanSummary(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}
