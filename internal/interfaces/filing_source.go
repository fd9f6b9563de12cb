package interfaces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/tenor/internal/models"
)

// ErrFilingNotFound is returned when no filing of the requested kind exists.
// It is distinct from DownloadError, which covers transport failures.
var ErrFilingNotFound = errors.New("filing not found")

// DownloadError is a failed filing download
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("download %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Filing is a downloaded filing document
type Filing struct {
	Content     []byte
	ContentType string
	FilingDate  time.Time
	Format      models.FileFormat
}

// FilingSource fetches filings from an external registry (e.g. SEC EDGAR)
type FilingSource interface {
	Fetch(ctx context.Context, companyID string, kind models.ReportType) (*Filing, error)
}
