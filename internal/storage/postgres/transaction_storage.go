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

// TransactionStorage implements the multi-entity writes in single Postgres transactions
type TransactionStorage struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// NewTransactionStorage creates a new TransactionStorage instance
func NewTransactionStorage(pool *pgxpool.Pool, logger arbor.ILogger) interfaces.TransactionStorage {
	return &TransactionStorage{pool: pool, logger: logger}
}

func (s *TransactionStorage) StartProcessing(ctx context.Context, reportID, claimedBy string, resetCompleted bool) (*models.FinancialReport, error) {
	return s.transition(ctx, "start_processing", reportID, func(r *models.FinancialReport) error {
		if resetCompleted && r.Status == models.StatusCompleted {
			if err := r.Reset(); err != nil {
				return err
			}
		}
		return r.StartProcessing(claimedBy)
	})
}

func (s *TransactionStorage) FailReport(ctx context.Context, reportID, claimedBy, cause string) (*models.FinancialReport, error) {
	return s.transition(ctx, "fail_report", reportID, func(r *models.FinancialReport) error {
		if err := r.CheckClaim("fail_report", claimedBy); err != nil {
			return err
		}
		return r.Fail(cause)
	})
}

func (s *TransactionStorage) ResetReport(ctx context.Context, reportID string) (*models.FinancialReport, error) {
	return s.transition(ctx, "reset_report", reportID, func(r *models.FinancialReport) error {
		return r.Reset()
	})
}

func (s *TransactionStorage) ResetStuckReport(ctx context.Context, reportID string, cutoff time.Time) (*models.FinancialReport, error) {
	return s.transition(ctx, "reset_stuck", reportID, func(r *models.FinancialReport) error {
		if !r.IsStuck(cutoff) {
			return common.ConflictError("reset_stuck", "report %s is %s, updated %s", r.ID, r.Status, r.UpdatedAt.Format(time.RFC3339))
		}
		return r.ResetStuck()
	})
}

// transition locks the report row, applies fn and writes it back in one transaction
func (s *TransactionStorage) transition(ctx context.Context, op, reportID string, fn func(*models.FinancialReport) error) (*models.FinancialReport, error) {
	var report *models.FinancialReport
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		report, err = lockReport(ctx, tx, reportID)
		if err != nil {
			return mapError(op, err, "report %s not found", reportID)
		}
		if err := fn(report); err != nil {
			return err
		}
		if err := report.CheckInvariant(); err != nil {
			return common.ValidationError(op, "%v", err)
		}
		report.UpdatedAt = time.Now()
		return upsertReport(ctx, tx, report)
	})
	if err != nil {
		return nil, mapError(op, err, "failed to update report %s", reportID)
	}
	return report, nil
}

func lockReport(ctx context.Context, tx pgx.Tx, id string) (*models.FinancialReport, error) {
	return scanReport(tx.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM financial_reports WHERE id = $1 FOR UPDATE`, id))
}

// CommitAnalysis deletes the prior analysis; embeddings and deltas cascade
func (s *TransactionStorage) CommitAnalysis(ctx context.Context, report *models.FinancialReport, claimedBy string,
	analysis *models.NarrativeAnalysis, embeddings []*models.NarrativeEmbedding) error {
	if analysis == nil {
		return common.ValidationError("commit_analysis", "analysis is required")
	}
	if analysis.ReportID != report.ID {
		return common.ValidationError("commit_analysis", "analysis %s belongs to report %s, not %s",
			analysis.ID, analysis.ReportID, report.ID)
	}
	if err := analysis.Validate(); err != nil {
		return err
	}
	if err := report.CheckInvariant(); err != nil {
		return common.ValidationError("commit_analysis", "%v", err)
	}

	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		stored, err := lockReport(ctx, tx, report.ID)
		if err != nil {
			return mapError("commit_analysis", err, "report %s not found", report.ID)
		}
		if err := stored.CheckClaim("commit_analysis", claimedBy); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM narrative_analyses WHERE report_id = $1 AND id <> $2`,
			report.ID, analysis.ID); err != nil {
			return err
		}
		if err := insertAnalysis(ctx, tx, analysis); err != nil {
			return err
		}
		for _, e := range embeddings {
			if e.AnalysisID != analysis.ID {
				return common.ValidationError("commit_analysis", "embedding %s belongs to analysis %s", e.ID, e.AnalysisID)
			}
			if err := insertEmbedding(ctx, tx, e); err != nil {
				return err
			}
		}
		report.UpdatedAt = time.Now()
		return upsertReport(ctx, tx, report)
	})
	return mapError("commit_analysis", err, "failed to commit analysis for report %s", report.ID)
}

// ClaimBatch locks the member rows with FOR UPDATE so concurrent claims serialize
func (s *TransactionStorage) ClaimBatch(ctx context.Context, batch *models.BatchJob, force bool) ([]*models.FinancialReport, error) {
	claimed := make([]*models.FinancialReport, 0, len(batch.ReportIDs))

	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, id := range batch.ReportIDs {
			report, err := lockReport(ctx, tx, id)
			if err != nil {
				return mapError("claim_batch", err, "report %s not found", id)
			}
			if force && report.Status == models.StatusCompleted {
				if err := report.Reset(); err != nil {
					return err
				}
			}
			if err := report.Claim(batch.ID); err != nil {
				return err
			}
			if err := upsertReport(ctx, tx, report); err != nil {
				return err
			}
			claimed = append(claimed, report)
		}
		return upsertBatch(ctx, tx, batch)
	})
	if err != nil {
		return nil, mapError("claim_batch", err, "failed to claim batch %s", batch.ID)
	}
	return claimed, nil
}
