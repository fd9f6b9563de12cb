package models

import (
	"fmt"
	"strings"
)

// ReportType is the kind of filing
type ReportType string

const (
	ReportTypeAnnual    ReportType = "10-K"
	ReportTypeQuarterly ReportType = "10-Q"
	ReportTypeCurrent   ReportType = "8-K"
	ReportTypeOther     ReportType = "other"
)

func (t ReportType) IsValid() bool {
	switch t {
	case ReportTypeAnnual, ReportTypeQuarterly, ReportTypeCurrent, ReportTypeOther:
		return true
	}
	return false
}

// ParseReportType accepts the form names and their descriptive aliases
func ParseReportType(s string) (ReportType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "10-k", "10k", "annual":
		return ReportTypeAnnual, nil
	case "10-q", "10q", "quarterly":
		return ReportTypeQuarterly, nil
	case "8-k", "8k", "current":
		return ReportTypeCurrent, nil
	case "other":
		return ReportTypeOther, nil
	}
	return "", fmt.Errorf("unknown report type %q", s)
}

// FileFormat is the on-disk format of a filing
type FileFormat string

const (
	FileFormatPDF   FileFormat = "pdf"
	FileFormatHTML  FileFormat = "html"
	FileFormatTXT   FileFormat = "txt"
	FileFormatIXBRL FileFormat = "ixbrl"
)

func (f FileFormat) IsValid() bool {
	switch f {
	case FileFormatPDF, FileFormatHTML, FileFormatTXT, FileFormatIXBRL:
		return true
	}
	return false
}

// IsMachineTagged reports whether structured facts can be extracted
func (f FileFormat) IsMachineTagged() bool {
	return f == FileFormatIXBRL
}

func ParseFileFormat(s string) (FileFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "pdf":
		return FileFormatPDF, nil
	case "html", "htm":
		return FileFormatHTML, nil
	case "txt", "text":
		return FileFormatTXT, nil
	case "ixbrl", "xbrl", "xhtml", "inline-xbrl":
		return FileFormatIXBRL, nil
	}
	return "", fmt.Errorf("unknown file format %q", s)
}

// DownloadSource records how a filing entered the system
type DownloadSource string

const (
	DownloadSourceManual DownloadSource = "manual_upload"
	DownloadSourceSEC    DownloadSource = "sec_auto"
)

func (d DownloadSource) IsValid() bool {
	return d == DownloadSourceManual || d == DownloadSourceSEC
}

// ProcessingStatus is the report lifecycle state
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

func (s ProcessingStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func ParseProcessingStatus(s string) (ProcessingStatus, error) {
	status := ProcessingStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", fmt.Errorf("unknown processing status %q", s)
	}
	return status, nil
}

// SectionType tags a narrative section
type SectionType string

const (
	SectionManagementDiscussion SectionType = "management_discussion"
	SectionExecutiveLetter      SectionType = "executive_letter"
	SectionRiskFactors          SectionType = "risk_factors"
	SectionOther                SectionType = "other"
)

func (s SectionType) IsValid() bool {
	switch s {
	case SectionManagementDiscussion, SectionExecutiveLetter, SectionRiskFactors, SectionOther:
		return true
	}
	return false
}

// SectionTypeForName maps an extracted section name onto a SectionType
func SectionTypeForName(name string) SectionType {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "mda"), strings.Contains(n, "md&a"),
		strings.Contains(n, "management"), strings.Contains(n, "discussion"):
		return SectionManagementDiscussion
	case strings.Contains(n, "ceo"), strings.Contains(n, "letter"), strings.Contains(n, "message"):
		return SectionExecutiveLetter
	case strings.Contains(n, "risk"):
		return SectionRiskFactors
	}
	return SectionOther
}

// ShiftSignificance classifies a narrative delta
type ShiftSignificance string

const (
	SignificanceMinor    ShiftSignificance = "minor"
	SignificanceModerate ShiftSignificance = "moderate"
	SignificanceMajor    ShiftSignificance = "major"
	SignificanceCritical ShiftSignificance = "critical"
)

// Rank orders significance levels, 0 for unknown
func (s ShiftSignificance) Rank() int {
	switch s {
	case SignificanceMinor:
		return 1
	case SignificanceModerate:
		return 2
	case SignificanceMajor:
		return 3
	case SignificanceCritical:
		return 4
	}
	return 0
}

func (s ShiftSignificance) IsValid() bool {
	return s.Rank() > 0
}

func ParseShiftSignificance(s string) (ShiftSignificance, error) {
	sig := ShiftSignificance(strings.ToLower(strings.TrimSpace(s)))
	if !sig.IsValid() {
		return "", fmt.Errorf("unknown shift significance %q", s)
	}
	return sig, nil
}

// BatchStatus is the lifecycle state of a batch job
type BatchStatus string

const (
	BatchPending            BatchStatus = "pending"
	BatchProcessing         BatchStatus = "processing"
	BatchCompleted          BatchStatus = "completed"
	BatchFailed             BatchStatus = "failed"
	BatchPartiallyCompleted BatchStatus = "partially_completed"
)

func (s BatchStatus) IsTerminal() bool {
	return s == BatchCompleted || s == BatchFailed || s == BatchPartiallyCompleted
}

// SubscriptionTier drives the per-user batch cap
type SubscriptionTier string

const (
	TierBasic      SubscriptionTier = "basic"
	TierPro        SubscriptionTier = "pro"
	TierEnterprise SubscriptionTier = "enterprise"
)

func ParseSubscriptionTier(s string) (SubscriptionTier, error) {
	tier := SubscriptionTier(strings.ToLower(strings.TrimSpace(s)))
	switch tier {
	case TierBasic, TierPro, TierEnterprise:
		return tier, nil
	}
	return "", fmt.Errorf("unknown subscription tier %q", s)
}

// ProcessingStep names a pipeline stage recorded in ProcessingResult
type ProcessingStep string

const (
	StepValidation          ProcessingStep = "validation"
	StepTextExtraction      ProcessingStep = "text_extraction"
	StepIXBRLParsing        ProcessingStep = "ixbrl_parsing"
	StepSentimentAnalysis   ProcessingStep = "sentiment_analysis"
	StepEmbeddingGeneration ProcessingStep = "embedding_generation"
	StepDatabaseStorage     ProcessingStep = "database_storage"
	StepCompleted           ProcessingStep = "completed"
)
