package interfaces

import (
	"context"

	"github.com/ternarybob/tenor/internal/models"
)

// ProcessOptions controls one Document Processor run
type ProcessOptions struct {
	IncludeEmbeddings bool
	ForceReprocess    bool
	// ClaimedBy is the batch holding the PROCESSING claim, empty for direct runs
	ClaimedBy string
}

// DocumentProcessor runs the full pipeline for one report. It never returns an
// error: every failure is reported in the result and the report is marked FAILED.
type DocumentProcessor interface {
	Process(ctx context.Context, reportID string, opts ProcessOptions) *models.ProcessingResult
}

// SentimentAnalyzer scores narrative text
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text, sectionHint string) (*models.SentimentResult, error)
}

// EmbeddingGenerator produces normalized section vectors
type EmbeddingGenerator interface {
	Load(ctx context.Context) error
	IsLoaded() bool
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
