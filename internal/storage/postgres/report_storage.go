package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

const reportColumns = `id, company_id, report_type, fiscal_period, filing_date, file_path, file_format,
	file_size, download_source, status, processing_error, claimed_by, created_at, updated_at, processed_at`

// ReportStorage implements the ReportStorage interface for Postgres
type ReportStorage struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(pool *pgxpool.Pool, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{pool: pool, logger: logger}
}

func scanReport(row pgx.Row) (*models.FinancialReport, error) {
	var r models.FinancialReport
	err := row.Scan(&r.ID, &r.CompanyID, &r.ReportType, &r.FiscalPeriod, &r.FilingDate, &r.FilePath,
		&r.FileFormat, &r.FileSize, &r.DownloadSource, &r.Status, &r.ProcessingError, &r.ClaimedBy,
		&r.CreatedAt, &r.UpdatedAt, &r.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func upsertReport(ctx context.Context, q querier, r *models.FinancialReport) error {
	_, err := q.Exec(ctx, `
		INSERT INTO financial_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			report_type = EXCLUDED.report_type,
			fiscal_period = EXCLUDED.fiscal_period,
			filing_date = EXCLUDED.filing_date,
			file_path = EXCLUDED.file_path,
			file_format = EXCLUDED.file_format,
			file_size = EXCLUDED.file_size,
			download_source = EXCLUDED.download_source,
			status = EXCLUDED.status,
			processing_error = EXCLUDED.processing_error,
			claimed_by = EXCLUDED.claimed_by,
			updated_at = EXCLUDED.updated_at,
			processed_at = EXCLUDED.processed_at`,
		r.ID, r.CompanyID, string(r.ReportType), r.FiscalPeriod, r.FilingDate, r.FilePath, string(r.FileFormat),
		r.FileSize, string(r.DownloadSource), string(r.Status), r.ProcessingError, r.ClaimedBy,
		r.CreatedAt, r.UpdatedAt, r.ProcessedAt)
	return err
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

	return mapError("save_report", upsertReport(ctx, s.pool, report), "failed to save report %s", report.ID)
}

func (s *ReportStorage) GetReport(ctx context.Context, id string) (*models.FinancialReport, error) {
	r, err := scanReport(s.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM financial_reports WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("get_report", err, "report %s not found", id)
	}
	return r, nil
}

func (s *ReportStorage) ListReports(ctx context.Context, filter *interfaces.ReportFilter) ([]*models.FinancialReport, error) {
	if filter == nil {
		filter = &interfaces.ReportFilter{}
	}

	var where []string
	var args []any
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		where = append(where, fmt.Sprintf("company_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}

	sql := `SELECT ` + reportColumns + ` FROM financial_reports`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY filing_date, created_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return s.queryReports(ctx, "list_reports", sql, args...)
}

func (s *ReportStorage) FindStuckReports(ctx context.Context, updatedBefore time.Time) ([]*models.FinancialReport, error) {
	return s.queryReports(ctx, "find_stuck_reports",
		`SELECT `+reportColumns+` FROM financial_reports WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`,
		string(models.StatusProcessing), updatedBefore)
}

func (s *ReportStorage) queryReports(ctx context.Context, op, sql string, args ...any) ([]*models.FinancialReport, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(op, err, "query failed")
	}
	defer rows.Close()

	var reports []*models.FinancialReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, mapError(op, err, "scan failed")
		}
		reports = append(reports, r)
	}
	return reports, mapError(op, rows.Err(), "rows failed")
}
