package interfaces

import (
	"context"

	"github.com/ternarybob/tenor/internal/models"
)

// StructuredParser reads machine-tagged (inline XBRL) filings
type StructuredParser interface {
	// Parse returns the tagged facts and narrative text blocks of the filing
	Parse(ctx context.Context, path string) (*models.ParsedDocument, error)

	HealthCheck(ctx context.Context) error
}

// Extractor turns a filing on disk into narrative sections and optional facts.
// Narrative failure is returned as an error; fact failure is recorded in
// Extraction.Warnings.
type Extractor interface {
	Extract(ctx context.Context, path string, format models.FileFormat) (*models.Extraction, error)
}

// PDFInspector validates PDF structure without extracting text
type PDFInspector interface {
	PageCount(path string) (int, error)
}
