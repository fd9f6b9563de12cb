package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/tenor/internal/models"
)

// ReportFilter selects reports for listing. Zero values are ignored.
type ReportFilter struct {
	CompanyID string
	Statuses  []models.ProcessingStatus
	IDs       []string
	Limit     int
}

// ReportStorage - interface for financial report persistence
type ReportStorage interface {
	SaveReport(ctx context.Context, report *models.FinancialReport) error
	GetReport(ctx context.Context, id string) (*models.FinancialReport, error)
	ListReports(ctx context.Context, filter *ReportFilter) ([]*models.FinancialReport, error)

	// FindStuckReports returns PROCESSING reports not updated since the cutoff
	FindStuckReports(ctx context.Context, updatedBefore time.Time) ([]*models.FinancialReport, error)
}

// AnalysisStorage - interface for narrative analysis persistence
type AnalysisStorage interface {
	GetAnalysis(ctx context.Context, id string) (*models.NarrativeAnalysis, error)

	// GetAnalysisByReport returns the current analysis of a report
	GetAnalysisByReport(ctx context.Context, reportID string) (*models.NarrativeAnalysis, error)

	// UpdateFinancialMetrics replaces the cross-reference insights of a persisted analysis.
	// It is the only mutation allowed after persistence.
	UpdateFinancialMetrics(ctx context.Context, analysisID string, insights *models.CrossReferenceInsights) error
}

// EmbeddingStorage - interface for section embedding persistence
type EmbeddingStorage interface {
	GetEmbeddings(ctx context.Context, analysisID string) ([]*models.NarrativeEmbedding, error)
	CountEmbeddings(ctx context.Context) (int, error)

	// SearchSimilar returns the stored embeddings closest to the query vector by cosine similarity
	SearchSimilar(ctx context.Context, query []float32, limit int) ([]*models.NarrativeEmbedding, error)
}

// DeltaStorage - interface for narrative delta persistence
type DeltaStorage interface {
	// FindOrCreateDelta stores the delta unless one already exists for the same
	// (base, comparison) analysis pair, in which case the existing record is
	// refreshed with the new values and returned. created reports which happened.
	FindOrCreateDelta(ctx context.Context, delta *models.NarrativeDelta) (result *models.NarrativeDelta, created bool, err error)
	GetDelta(ctx context.Context, id string) (*models.NarrativeDelta, error)
	ListDeltasByCompany(ctx context.Context, companyID string) ([]*models.NarrativeDelta, error)
}

// BatchStorage - interface for batch job persistence
type BatchStorage interface {
	SaveBatch(ctx context.Context, batch *models.BatchJob) error
	GetBatch(ctx context.Context, id string) (*models.BatchJob, error)
	ListBatchesByUser(ctx context.Context, userID string) ([]*models.BatchJob, error)
}

// TransactionStorage groups the writes that must commit atomically. Every
// report status transition goes through it: each method reads the stored
// report, applies the state-machine guard and writes the result in one
// transaction, so a caller holding a stale copy cannot overwrite a newer state.
type TransactionStorage interface {
	// StartProcessing moves the stored report to PROCESSING for claimedBy.
	// With resetCompleted, a COMPLETED report is reset first.
	StartProcessing(ctx context.Context, reportID, claimedBy string, resetCompleted bool) (*models.FinancialReport, error)

	// FailReport records cause on a report that is still PROCESSING for
	// claimedBy. Any other stored state is a conflict.
	FailReport(ctx context.Context, reportID, claimedBy, cause string) (*models.FinancialReport, error)

	// ResetReport returns a FAILED or COMPLETED report to PENDING
	ResetReport(ctx context.Context, reportID string) (*models.FinancialReport, error)

	// ResetStuckReport returns a report to PENDING only while it is still
	// PROCESSING and was last updated before cutoff
	ResetStuckReport(ctx context.Context, reportID string, cutoff time.Time) (*models.FinancialReport, error)

	// CommitAnalysis replaces any prior analysis of the report (cascading its
	// embeddings), stores the new analysis and embeddings, and saves the
	// completed report, all in one transaction. The stored report must still be
	// PROCESSING for claimedBy.
	CommitAnalysis(ctx context.Context, report *models.FinancialReport, claimedBy string,
		analysis *models.NarrativeAnalysis, embeddings []*models.NarrativeEmbedding) error

	// ClaimBatch loads every member report, moves each to PROCESSING claimed by
	// the batch, and stores the batch, all in one transaction. With force,
	// COMPLETED members are reset first; otherwise any member that cannot start
	// processing aborts the claim. The claimed reports are returned.
	ClaimBatch(ctx context.Context, batch *models.BatchJob, force bool) ([]*models.FinancialReport, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	ReportStorage() ReportStorage
	AnalysisStorage() AnalysisStorage
	EmbeddingStorage() EmbeddingStorage
	DeltaStorage() DeltaStorage
	BatchStorage() BatchStorage
	TransactionStorage() TransactionStorage
	Backend() string
	Ping(ctx context.Context) error
	Close() error
}
