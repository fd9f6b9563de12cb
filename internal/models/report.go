package models

import (
	"fmt"
	"time"

	"github.com/ternarybob/tenor/internal/common"
)

// FinancialReport is one filed document. It is never deleted; re-processing
// supersedes its analysis.
type FinancialReport struct {
	ID              string           `json:"id" badgerhold:"key"`
	CompanyID       string           `json:"company_id" badgerhold:"index"`
	ReportType      ReportType       `json:"report_type"`
	FiscalPeriod    string           `json:"fiscal_period"`
	FilingDate      time.Time        `json:"filing_date"`
	FilePath        string           `json:"file_path"`
	FileFormat      FileFormat       `json:"file_format"`
	FileSize        int64            `json:"file_size"`
	DownloadSource  DownloadSource   `json:"download_source"`
	Status          ProcessingStatus `json:"status" badgerhold:"index"`
	ProcessingError string           `json:"processing_error,omitempty"`
	ClaimedBy       string           `json:"claimed_by,omitempty"` // Batch ID holding the PROCESSING claim
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
}

// NewFinancialReport builds a PENDING report after checking the closed enum fields
func NewFinancialReport(companyID string, reportType ReportType, fiscalPeriod string, filingDate time.Time,
	filePath string, format FileFormat, source DownloadSource) (*FinancialReport, error) {
	if companyID == "" {
		return nil, common.ValidationError("new_report", "company id is required")
	}
	if !reportType.IsValid() {
		return nil, common.ValidationError("new_report", "invalid report type %q", reportType)
	}
	if !format.IsValid() {
		return nil, common.ValidationError("new_report", "invalid file format %q", format)
	}
	if !source.IsValid() {
		return nil, common.ValidationError("new_report", "invalid download source %q", source)
	}
	if filePath == "" {
		return nil, common.ValidationError("new_report", "file path is required")
	}

	now := time.Now()
	return &FinancialReport{
		ID:             common.NewReportID(),
		CompanyID:      companyID,
		ReportType:     reportType,
		FiscalPeriod:   fiscalPeriod,
		FilingDate:     filingDate,
		FilePath:       filePath,
		FileFormat:     format,
		DownloadSource: source,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CanStartProcessing reports whether StartProcessing would succeed for the given claimant
func (r *FinancialReport) CanStartProcessing(claimedBy string) bool {
	switch r.Status {
	case StatusPending, StatusFailed:
		return true
	case StatusProcessing:
		return claimedBy != "" && r.ClaimedBy == claimedBy
	}
	return false
}

// StartProcessing moves the report to PROCESSING. Only PENDING and FAILED reports
// may enter; a report already claimed by a batch may be started by that batch.
func (r *FinancialReport) StartProcessing(claimedBy string) error {
	if !r.CanStartProcessing(claimedBy) {
		return common.ValidationError("start_processing",
			"report %s cannot enter processing from %s", r.ID, r.Status)
	}
	r.Status = StatusProcessing
	r.ClaimedBy = claimedBy
	r.ProcessingError = ""
	r.ProcessedAt = nil
	r.UpdatedAt = time.Now()
	return nil
}

// Claim marks the report PROCESSING on behalf of a batch before fan-out
func (r *FinancialReport) Claim(batchID string) error {
	if r.Status != StatusPending && r.Status != StatusFailed {
		return common.ValidationError("claim",
			"report %s cannot be claimed from %s", r.ID, r.Status)
	}
	return r.StartProcessing(batchID)
}

// CheckClaim verifies the report is still PROCESSING for claimedBy
func (r *FinancialReport) CheckClaim(op, claimedBy string) error {
	if r.Status != StatusProcessing || r.ClaimedBy != claimedBy {
		return common.ConflictError(op, "report %s is %s (claimed by %q), not processing for %q",
			r.ID, r.Status, r.ClaimedBy, claimedBy)
	}
	return nil
}

// IsStuck reports whether the report is PROCESSING and was last updated before cutoff
func (r *FinancialReport) IsStuck(cutoff time.Time) bool {
	return r.Status == StatusProcessing && r.UpdatedAt.Before(cutoff)
}

// Complete moves a PROCESSING report to COMPLETED. A result is required.
func (r *FinancialReport) Complete(result *NarrativeAnalysis) error {
	if r.Status != StatusProcessing {
		return common.ValidationError("complete", "report %s is %s, not processing", r.ID, r.Status)
	}
	if result == nil {
		return common.ValidationError("complete", "report %s cannot complete without an analysis", r.ID)
	}
	now := time.Now()
	r.Status = StatusCompleted
	r.ProcessingError = ""
	r.ClaimedBy = ""
	r.ProcessedAt = &now
	r.UpdatedAt = now
	return nil
}

// Fail moves the report to FAILED and records the cause. Allowed from any state
// except COMPLETED, so a crash at any pipeline step can be recorded.
func (r *FinancialReport) Fail(cause string) error {
	if r.Status == StatusCompleted {
		return common.ValidationError("fail", "report %s is already completed", r.ID)
	}
	r.Status = StatusFailed
	r.ProcessingError = cause
	r.ClaimedBy = ""
	r.ProcessedAt = nil
	r.UpdatedAt = time.Now()
	return nil
}

// Reset returns a FAILED or COMPLETED report to PENDING and clears ProcessedAt
func (r *FinancialReport) Reset() error {
	if r.Status != StatusFailed && r.Status != StatusCompleted {
		return common.ValidationError("reset", "report %s cannot be reset from %s", r.ID, r.Status)
	}
	r.resetToPending()
	return nil
}

// ResetStuck returns a PROCESSING report to PENDING. Used only by the stuck-report sweep.
func (r *FinancialReport) ResetStuck() error {
	if r.Status != StatusProcessing {
		return common.ValidationError("reset_stuck", "report %s is %s, not processing", r.ID, r.Status)
	}
	r.resetToPending()
	return nil
}

func (r *FinancialReport) resetToPending() {
	r.Status = StatusPending
	r.ProcessingError = ""
	r.ClaimedBy = ""
	r.ProcessedAt = nil
	r.UpdatedAt = time.Now()
}

// CheckInvariant verifies processed_at is set if and only if status is COMPLETED
func (r *FinancialReport) CheckInvariant() error {
	if (r.ProcessedAt != nil) != (r.Status == StatusCompleted) {
		return fmt.Errorf("report %s: processed_at/status mismatch (status=%s, processed_at set=%t)",
			r.ID, r.Status, r.ProcessedAt != nil)
	}
	return nil
}
