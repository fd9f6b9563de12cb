package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

const deltaColumns = `id, company_id, base_report_id, comparison_report_id, base_analysis_id, comparison_analysis_id,
	optimism_delta, risk_delta, uncertainty_delta, overall_sentiment_delta,
	themes_added, themes_removed, themes_evolved, shift_significance, created_at, updated_at`

// DeltaStorage implements the DeltaStorage interface for Postgres
type DeltaStorage struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// NewDeltaStorage creates a new DeltaStorage instance
func NewDeltaStorage(pool *pgxpool.Pool, logger arbor.ILogger) interfaces.DeltaStorage {
	return &DeltaStorage{pool: pool, logger: logger}
}

func scanDelta(row pgx.Row) (*models.NarrativeDelta, error) {
	var d models.NarrativeDelta
	err := row.Scan(&d.ID, &d.CompanyID, &d.BaseReportID, &d.ComparisonReportID, &d.BaseAnalysisID,
		&d.ComparisonAnalysisID, &d.OptimismDelta, &d.RiskDelta, &d.UncertaintyDelta, &d.OverallSentimentDelta,
		&d.ThemesAdded, &d.ThemesRemoved, &d.ThemesEvolved, &d.ShiftSignificance, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// FindOrCreateDelta relies on the unique (base, comparison) constraint. xmax is
// zero only for a freshly inserted row, which tells creation from refresh.
func (s *DeltaStorage) FindOrCreateDelta(ctx context.Context, delta *models.NarrativeDelta) (*models.NarrativeDelta, bool, error) {
	if delta.BaseAnalysisID == "" || delta.ComparisonAnalysisID == "" {
		return nil, false, common.ValidationError("find_or_create_delta", "both analysis IDs are required")
	}
	if delta.ID == "" {
		delta.ID = common.NewDeltaID()
	}
	now := time.Now()
	if delta.CreatedAt.IsZero() {
		delta.CreatedAt = now
	}
	delta.UpdatedAt = now

	row := s.pool.QueryRow(ctx, `
		INSERT INTO narrative_deltas (`+deltaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (base_analysis_id, comparison_analysis_id) DO UPDATE SET
			optimism_delta = EXCLUDED.optimism_delta,
			risk_delta = EXCLUDED.risk_delta,
			uncertainty_delta = EXCLUDED.uncertainty_delta,
			overall_sentiment_delta = EXCLUDED.overall_sentiment_delta,
			themes_added = EXCLUDED.themes_added,
			themes_removed = EXCLUDED.themes_removed,
			themes_evolved = EXCLUDED.themes_evolved,
			shift_significance = EXCLUDED.shift_significance,
			updated_at = EXCLUDED.updated_at
		RETURNING `+deltaColumns+`, (xmax = 0) AS inserted`,
		delta.ID, delta.CompanyID, delta.BaseReportID, delta.ComparisonReportID, delta.BaseAnalysisID,
		delta.ComparisonAnalysisID, delta.OptimismDelta, delta.RiskDelta, delta.UncertaintyDelta,
		delta.OverallSentimentDelta, nonNil(delta.ThemesAdded), nonNil(delta.ThemesRemoved),
		nonNil(delta.ThemesEvolved), string(delta.ShiftSignificance), delta.CreatedAt, delta.UpdatedAt)

	var d models.NarrativeDelta
	var inserted bool
	err := row.Scan(&d.ID, &d.CompanyID, &d.BaseReportID, &d.ComparisonReportID, &d.BaseAnalysisID,
		&d.ComparisonAnalysisID, &d.OptimismDelta, &d.RiskDelta, &d.UncertaintyDelta, &d.OverallSentimentDelta,
		&d.ThemesAdded, &d.ThemesRemoved, &d.ThemesEvolved, &d.ShiftSignificance, &d.CreatedAt, &d.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, mapError("find_or_create_delta", err, "failed to store delta %s", delta.PairKey())
	}
	return &d, inserted, nil
}

func (s *DeltaStorage) GetDelta(ctx context.Context, id string) (*models.NarrativeDelta, error) {
	d, err := scanDelta(s.pool.QueryRow(ctx, `SELECT `+deltaColumns+` FROM narrative_deltas WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("get_delta", err, "delta %s not found", id)
	}
	return d, nil
}

func (s *DeltaStorage) ListDeltasByCompany(ctx context.Context, companyID string) ([]*models.NarrativeDelta, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deltaColumns+` FROM narrative_deltas WHERE company_id = $1 ORDER BY created_at`, companyID)
	if err != nil {
		return nil, mapError("list_deltas", err, "query failed")
	}
	defer rows.Close()

	var result []*models.NarrativeDelta
	for rows.Next() {
		d, err := scanDelta(rows)
		if err != nil {
			return nil, mapError("list_deltas", err, "scan failed")
		}
		result = append(result, d)
	}
	return result, mapError("list_deltas", rows.Err(), "rows failed")
}
