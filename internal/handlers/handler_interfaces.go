package handlers

import (
	"context"
	"time"

	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/services/batch"
	"github.com/ternarybob/tenor/internal/services/export"
	"github.com/ternarybob/tenor/internal/services/sweep"
	"github.com/ternarybob/tenor/internal/services/trends"
)

// BatchCoordinator submits and reads batch jobs
type BatchCoordinator interface {
	Submit(ctx context.Context, req batch.Request) (*models.BatchJob, error)
	Get(ctx context.Context, batchID string) (*models.BatchJob, error)
}

// DeltaComparer compares the analyses of two reports of one company
type DeltaComparer interface {
	Compare(ctx context.Context, baseReportID, comparisonReportID string) (*models.NarrativeDelta, error)
}

// TrendBuilder builds a company's sentiment timeline
type TrendBuilder interface {
	Build(ctx context.Context, companyID string, window int) (*trends.Trends, error)
}

// Exporter renders analyses, deltas and trends as documents
type Exporter interface {
	Analysis(ctx context.Context, analysisID string, format export.Format) (*export.Document, error)
	Delta(ctx context.Context, deltaID string, format export.Format) (*export.Document, error)
	Trends(ctx context.Context, companyID string, window int) (*export.Document, error)
}

// StuckSweeper resets reports left in PROCESSING
type StuckSweeper interface {
	ResetStuck(ctx context.Context, olderThan time.Duration) (*sweep.Result, error)
}
