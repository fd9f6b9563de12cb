package models

import (
	"time"
)

// BatchReportResult summarizes one member of a batch
type BatchReportResult struct {
	ReportID   string   `json:"report_id"`
	Status     string   `json:"status"` // "success" or "failed"
	Errors     []string `json:"errors,omitempty"`
	AnalysisID string   `json:"analysis_id,omitempty"`
}

// BatchProgress is updated when a member starts and when it completes.
// CurrentReport names the member being processed, empty between members.
type BatchProgress struct {
	Total         int    `json:"total"`
	Successful    int    `json:"successful"`
	Failed        int    `json:"failed"`
	CurrentReport string `json:"current_report,omitempty"`
}

// BatchJob is one batch-processing request. Immutable once terminal.
type BatchJob struct {
	ID                string              `json:"id" badgerhold:"key"`
	UserID            string              `json:"user_id" badgerhold:"index"`
	Status            BatchStatus         `json:"status"`
	TotalReports      int                 `json:"total_reports"`
	SuccessfulReports int                 `json:"successful_reports"`
	FailedReports     int                 `json:"failed_reports"`
	ReportIDs         []string            `json:"report_ids"`
	Results           []BatchReportResult `json:"results"`
	Progress          BatchProgress       `json:"progress"`
	IncludeEmbeddings bool                `json:"include_embeddings"`
	ErrorMessage      string              `json:"error_message,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	StartedAt         *time.Time          `json:"started_at,omitempty"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
}

// StartMember marks reportID as the member being processed
func (b *BatchJob) StartMember(reportID string) {
	b.Progress.Total = b.TotalReports
	b.Progress.CurrentReport = reportID
}

// RecordResult appends a member result and advances the counters
func (b *BatchJob) RecordResult(result BatchReportResult) {
	b.Results = append(b.Results, result)
	if result.Status == "success" {
		b.SuccessfulReports++
	} else {
		b.FailedReports++
	}
	b.Progress = BatchProgress{
		Total:      b.TotalReports,
		Successful: b.SuccessfulReports,
		Failed:     b.FailedReports,
	}
}

// DeriveStatus returns the terminal status once every member has a result
func (b *BatchJob) DeriveStatus() BatchStatus {
	switch {
	case b.SuccessfulReports == b.TotalReports:
		return BatchCompleted
	case b.SuccessfulReports == 0:
		return BatchFailed
	default:
		return BatchPartiallyCompleted
	}
}
