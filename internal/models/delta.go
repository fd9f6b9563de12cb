package models

import (
	"time"
)

// NarrativeDelta compares an earlier (base) and later (comparison) analysis of one company.
// (BaseAnalysisID, ComparisonAnalysisID) is unique.
type NarrativeDelta struct {
	ID                    string            `json:"id" badgerhold:"key"`
	CompanyID             string            `json:"company_id" badgerhold:"index"`
	BaseReportID          string            `json:"base_report_id"`
	ComparisonReportID    string            `json:"comparison_report_id"`
	BaseAnalysisID        string            `json:"base_analysis_id" badgerhold:"index"`
	ComparisonAnalysisID  string            `json:"comparison_analysis_id"`
	OptimismDelta         float64           `json:"optimism_delta"`
	RiskDelta             float64           `json:"risk_delta"`
	UncertaintyDelta      float64           `json:"uncertainty_delta"`
	OverallSentimentDelta float64           `json:"overall_sentiment_delta"`
	ThemesAdded           []string          `json:"themes_added"`
	ThemesRemoved         []string          `json:"themes_removed"`
	ThemesEvolved         []string          `json:"themes_evolved"` // Reserved; never populated
	ShiftSignificance     ShiftSignificance `json:"shift_significance"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// PairKey is the unique key of the (base, comparison) pair
func (d *NarrativeDelta) PairKey() string {
	return DeltaPairKey(d.BaseAnalysisID, d.ComparisonAnalysisID)
}

// DeltaPairKey builds the unique key for a (base, comparison) analysis pair
func DeltaPairKey(baseAnalysisID, comparisonAnalysisID string) string {
	return baseAnalysisID + "|" + comparisonAnalysisID
}

// TotalThemeChanges counts added and removed themes
func (d *NarrativeDelta) TotalThemeChanges() int {
	return len(d.ThemesAdded) + len(d.ThemesRemoved) + len(d.ThemesEvolved)
}

// Alert is raised when a delta crosses a user threshold
type Alert struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CompanyID    string    `json:"company_id"`
	DeltaID      string    `json:"delta_id"`
	AlertType    string    `json:"alert_type"`
	Threshold    float64   `json:"threshold"`
	ActualChange float64   `json:"actual_change"`
	Direction    string    `json:"direction"` // "increase" or "decrease"
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}
