package badger

import (
	"context"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// ReportStorage implements the ReportStorage interface for Badger
type ReportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ReportStorage) SaveReport(ctx context.Context, report *models.FinancialReport) error {
	if report.ID == "" {
		return common.ValidationError("save_report", "report ID is required")
	}
	if err := report.CheckInvariant(); err != nil {
		return common.ValidationError("save_report", "%v", err)
	}

	now := time.Now()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now

	if err := s.db.Store().Upsert(report.ID, report); err != nil {
		return mapError("save_report", err, "failed to save report %s", report.ID)
	}
	return nil
}

func (s *ReportStorage) GetReport(ctx context.Context, id string) (*models.FinancialReport, error) {
	var report models.FinancialReport
	if err := s.db.Store().Get(id, &report); err != nil {
		return nil, mapError("get_report", err, "report %s not found", id)
	}
	return &report, nil
}

// ListReports returns reports ordered by filing date, oldest first
func (s *ReportStorage) ListReports(ctx context.Context, filter *interfaces.ReportFilter) ([]*models.FinancialReport, error) {
	if filter == nil {
		filter = &interfaces.ReportFilter{}
	}

	var reports []models.FinancialReport
	var query *badgerhold.Query
	if filter.CompanyID != "" {
		query = badgerhold.Where("CompanyID").Eq(filter.CompanyID)
	}
	if err := s.db.Store().Find(&reports, query); err != nil {
		return nil, mapError("list_reports", err, "failed to list reports")
	}

	statuses := map[models.ProcessingStatus]bool{}
	for _, st := range filter.Statuses {
		statuses[st] = true
	}
	ids := map[string]bool{}
	for _, id := range filter.IDs {
		ids[id] = true
	}

	result := make([]*models.FinancialReport, 0, len(reports))
	for i := range reports {
		r := &reports[i]
		if len(statuses) > 0 && !statuses[r.Status] {
			continue
		}
		if len(ids) > 0 && !ids[r.ID] {
			continue
		}
		result = append(result, r)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].FilingDate.Equal(result[j].FilingDate) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].FilingDate.Before(result[j].FilingDate)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *ReportStorage) FindStuckReports(ctx context.Context, updatedBefore time.Time) ([]*models.FinancialReport, error) {
	var reports []models.FinancialReport
	if err := s.db.Store().Find(&reports, badgerhold.Where("Status").Eq(models.StatusProcessing)); err != nil {
		return nil, mapError("find_stuck_reports", err, "failed to query processing reports")
	}

	var stuck []*models.FinancialReport
	for i := range reports {
		if reports[i].IsStuck(updatedBefore) {
			stuck = append(stuck, &reports[i])
		}
	}
	return stuck, nil
}
