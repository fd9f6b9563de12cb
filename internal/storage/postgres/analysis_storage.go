package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

const analysisColumns = `id, report_id, optimism_score, optimism_confidence, risk_score, risk_confidence,
	uncertainty_score, uncertainty_confidence, key_themes, risk_indicators, narrative_sections,
	financial_metrics, processing_time_seconds, model_version, created_at`

// AnalysisStorage implements the AnalysisStorage interface for Postgres
type AnalysisStorage struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// NewAnalysisStorage creates a new AnalysisStorage instance
func NewAnalysisStorage(pool *pgxpool.Pool, logger arbor.ILogger) interfaces.AnalysisStorage {
	return &AnalysisStorage{pool: pool, logger: logger}
}

func scanAnalysis(row pgx.Row) (*models.NarrativeAnalysis, error) {
	var a models.NarrativeAnalysis
	var sections, metrics []byte
	err := row.Scan(&a.ID, &a.ReportID, &a.OptimismScore, &a.OptimismConfidence, &a.RiskScore, &a.RiskConfidence,
		&a.UncertaintyScore, &a.UncertaintyConfidence, &a.KeyThemes, &a.RiskIndicators, &sections,
		&metrics, &a.ProcessingTimeSeconds, &a.ModelVersion, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &a.NarrativeSections); err != nil {
			return nil, err
		}
	}
	if len(metrics) > 0 {
		a.FinancialMetrics = &models.CrossReferenceInsights{}
		if err := json.Unmarshal(metrics, a.FinancialMetrics); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func insertAnalysis(ctx context.Context, q querier, a *models.NarrativeAnalysis) error {
	sections, err := json.Marshal(a.NarrativeSections)
	if err != nil {
		return err
	}
	var metrics []byte
	if a.FinancialMetrics != nil {
		if metrics, err = json.Marshal(a.FinancialMetrics); err != nil {
			return err
		}
	}
	themes := a.KeyThemes
	if themes == nil {
		themes = []string{}
	}
	indicators := a.RiskIndicators
	if indicators == nil {
		indicators = []string{}
	}

	_, err = q.Exec(ctx, `INSERT INTO narrative_analyses (`+analysisColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.ReportID, a.OptimismScore, a.OptimismConfidence, a.RiskScore, a.RiskConfidence,
		a.UncertaintyScore, a.UncertaintyConfidence, themes, indicators, sections,
		metrics, a.ProcessingTimeSeconds, a.ModelVersion, a.CreatedAt)
	return err
}

func (s *AnalysisStorage) GetAnalysis(ctx context.Context, id string) (*models.NarrativeAnalysis, error) {
	a, err := scanAnalysis(s.pool.QueryRow(ctx, `SELECT `+analysisColumns+` FROM narrative_analyses WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("get_analysis", err, "analysis %s not found", id)
	}
	return a, nil
}

func (s *AnalysisStorage) GetAnalysisByReport(ctx context.Context, reportID string) (*models.NarrativeAnalysis, error) {
	a, err := scanAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM narrative_analyses WHERE report_id = $1`, reportID))
	if err != nil {
		return nil, mapError("get_analysis_by_report", err, "no analysis for report %s", reportID)
	}
	return a, nil
}

func (s *AnalysisStorage) UpdateFinancialMetrics(ctx context.Context, analysisID string, insights *models.CrossReferenceInsights) error {
	metrics, err := json.Marshal(insights)
	if err != nil {
		return common.ValidationError("update_financial_metrics", "cannot encode insights: %v", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE narrative_analyses SET financial_metrics = $2 WHERE id = $1`, analysisID, metrics)
	if err != nil {
		return mapError("update_financial_metrics", err, "failed to update analysis %s", analysisID)
	}
	if tag.RowsAffected() == 0 {
		return common.NotFoundError("update_financial_metrics", "analysis %s not found", analysisID)
	}
	return nil
}
