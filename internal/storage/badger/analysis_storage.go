package badger

import (
	"context"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// AnalysisStorage implements the AnalysisStorage interface for Badger
type AnalysisStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAnalysisStorage creates a new AnalysisStorage instance
func NewAnalysisStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AnalysisStorage {
	return &AnalysisStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AnalysisStorage) GetAnalysis(ctx context.Context, id string) (*models.NarrativeAnalysis, error) {
	var analysis models.NarrativeAnalysis
	if err := s.db.Store().Get(id, &analysis); err != nil {
		return nil, mapError("get_analysis", err, "analysis %s not found", id)
	}
	return &analysis, nil
}

func (s *AnalysisStorage) GetAnalysisByReport(ctx context.Context, reportID string) (*models.NarrativeAnalysis, error) {
	var analysis models.NarrativeAnalysis
	err := s.db.Store().FindOne(&analysis, badgerhold.Where("ReportID").Eq(reportID).Index("ReportID"))
	if err != nil {
		return nil, mapError("get_analysis_by_report", err, "no analysis for report %s", reportID)
	}
	return &analysis, nil
}

func (s *AnalysisStorage) UpdateFinancialMetrics(ctx context.Context, analysisID string, insights *models.CrossReferenceInsights) error {
	return s.db.update(func(tx *badgerdb.Txn) error {
		var analysis models.NarrativeAnalysis
		if err := s.db.Store().TxGet(tx, analysisID, &analysis); err != nil {
			return mapError("update_financial_metrics", err, "analysis %s not found", analysisID)
		}
		analysis.FinancialMetrics = insights
		if err := s.db.Store().TxUpdate(tx, analysisID, &analysis); err != nil {
			return mapError("update_financial_metrics", err, "failed to update analysis %s", analysisID)
		}
		return nil
	})
}
