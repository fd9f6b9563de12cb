package badger

import (
	"context"
	"errors"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// TransactionStorage implements the multi-entity writes in single Badger transactions
type TransactionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTransactionStorage creates a new TransactionStorage instance
func NewTransactionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TransactionStorage {
	return &TransactionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TransactionStorage) StartProcessing(ctx context.Context, reportID, claimedBy string, resetCompleted bool) (*models.FinancialReport, error) {
	return s.transition("start_processing", reportID, func(r *models.FinancialReport) error {
		if resetCompleted && r.Status == models.StatusCompleted {
			if err := r.Reset(); err != nil {
				return err
			}
		}
		return r.StartProcessing(claimedBy)
	})
}

func (s *TransactionStorage) FailReport(ctx context.Context, reportID, claimedBy, cause string) (*models.FinancialReport, error) {
	return s.transition("fail_report", reportID, func(r *models.FinancialReport) error {
		if err := r.CheckClaim("fail_report", claimedBy); err != nil {
			return err
		}
		return r.Fail(cause)
	})
}

func (s *TransactionStorage) ResetReport(ctx context.Context, reportID string) (*models.FinancialReport, error) {
	return s.transition("reset_report", reportID, func(r *models.FinancialReport) error {
		return r.Reset()
	})
}

func (s *TransactionStorage) ResetStuckReport(ctx context.Context, reportID string, cutoff time.Time) (*models.FinancialReport, error) {
	return s.transition("reset_stuck", reportID, func(r *models.FinancialReport) error {
		if !r.IsStuck(cutoff) {
			return common.ConflictError("reset_stuck", "report %s is %s, updated %s", r.ID, r.Status, r.UpdatedAt.Format(time.RFC3339))
		}
		return r.ResetStuck()
	})
}

// transition loads the report, applies fn and writes it back in one transaction
func (s *TransactionStorage) transition(op, reportID string, fn func(*models.FinancialReport) error) (*models.FinancialReport, error) {
	store := s.db.Store()
	var report models.FinancialReport

	err := s.db.update(func(tx *badgerdb.Txn) error {
		report = models.FinancialReport{}
		if err := store.TxGet(tx, reportID, &report); err != nil {
			return mapError(op, err, "report %s not found", reportID)
		}
		if err := fn(&report); err != nil {
			return err
		}
		if err := report.CheckInvariant(); err != nil {
			return common.ValidationError(op, "%v", err)
		}
		report.UpdatedAt = time.Now()
		return store.TxUpsert(tx, report.ID, &report)
	})
	if err != nil {
		return nil, txError(op, err, "failed to update report %s", reportID)
	}

	s.logger.Debug().
		Str("report_id", report.ID).
		Str("status", string(report.Status)).
		Str("claimed_by", report.ClaimedBy).
		Str("op", op).
		Msg("Report transition committed")
	return &report, nil
}

// txError keeps typed errors, reports a lost optimistic-commit race as a
// conflict and wraps anything else as a database error
func txError(op string, err error, format string, args ...interface{}) error {
	if common.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, badgerdb.ErrConflict) {
		return common.ConflictError(op, format, args...)
	}
	return common.DatabaseError(op, err, format, args...)
}

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

	store := s.db.Store()
	replaced := 0

	err := s.db.update(func(tx *badgerdb.Txn) error {
		var stored models.FinancialReport
		if err := store.TxGet(tx, report.ID, &stored); err != nil {
			return mapError("commit_analysis", err, "report %s not found", report.ID)
		}
		if err := stored.CheckClaim("commit_analysis", claimedBy); err != nil {
			return err
		}

		var prior []models.NarrativeAnalysis
		if err := store.TxFind(tx, &prior, badgerhold.Where("ReportID").Eq(report.ID).Index("ReportID")); err != nil {
			return err
		}
		for _, old := range prior {
			if old.ID == analysis.ID {
				continue
			}
			if err := s.deleteAnalysis(tx, old.ID); err != nil {
				return err
			}
			replaced++
		}

		if err := store.TxUpsert(tx, analysis.ID, analysis); err != nil {
			return err
		}
		for _, e := range embeddings {
			if e.AnalysisID != analysis.ID {
				return common.ValidationError("commit_analysis", "embedding %s belongs to analysis %s", e.ID, e.AnalysisID)
			}
			if err := store.TxUpsert(tx, e.ID, e); err != nil {
				return err
			}
		}

		report.UpdatedAt = time.Now()
		return store.TxUpsert(tx, report.ID, report)
	})
	if err != nil {
		return txError("commit_analysis", err, "failed to commit analysis for report %s", report.ID)
	}

	s.logger.Debug().
		Str("report_id", report.ID).
		Str("analysis_id", analysis.ID).
		Int("embeddings", len(embeddings)).
		Int("replaced", replaced).
		Msg("Analysis committed")
	return nil
}

// deleteAnalysis removes an analysis together with its embeddings and any
// delta that references it
func (s *TransactionStorage) deleteAnalysis(tx *badgerdb.Txn, analysisID string) error {
	store := s.db.Store()
	if err := store.TxDeleteMatching(tx, &models.NarrativeEmbedding{},
		badgerhold.Where("AnalysisID").Eq(analysisID).Index("AnalysisID")); err != nil {
		return err
	}
	if err := store.TxDeleteMatching(tx, &models.NarrativeDelta{},
		badgerhold.Where("BaseAnalysisID").Eq(analysisID).Or(badgerhold.Where("ComparisonAnalysisID").Eq(analysisID))); err != nil {
		return err
	}
	return store.TxDelete(tx, analysisID, &models.NarrativeAnalysis{})
}

func (s *TransactionStorage) ClaimBatch(ctx context.Context, batch *models.BatchJob, force bool) ([]*models.FinancialReport, error) {
	store := s.db.Store()
	claimed := make([]*models.FinancialReport, 0, len(batch.ReportIDs))

	err := s.db.update(func(tx *badgerdb.Txn) error {
		for _, id := range batch.ReportIDs {
			var report models.FinancialReport
			if err := store.TxGet(tx, id, &report); err != nil {
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
			if err := store.TxUpsert(tx, report.ID, &report); err != nil {
				return common.DatabaseError("claim_batch", err, "failed to claim report %s", id)
			}
			claimed = append(claimed, &report)
		}
		if err := store.TxUpsert(tx, batch.ID, batch); err != nil {
			return common.DatabaseError("claim_batch", err, "failed to save batch %s", batch.ID)
		}
		return nil
	})
	if err != nil {
		return nil, txError("claim_batch", err, "failed to claim batch %s", batch.ID)
	}

	s.logger.Debug().
		Str("batch_id", batch.ID).
		Int("reports", len(claimed)).
		Bool("force", force).
		Msg("Batch members claimed")
	return claimed, nil
}
