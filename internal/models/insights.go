package models

// Trend direction for a facts category
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Correlation is a rule-based alignment between narrative and facts
type Correlation struct {
	Type        string `json:"type"`
	Strength    string `json:"strength"` // "strong" or "moderate"
	Description string `json:"description"`
}

// Discrepancy is a narrative claim contradicted by the facts
type Discrepancy struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"` // "high", "moderate" or "low"
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// RiskAlignment compares the narrative risk level with financial indicators
type RiskAlignment struct {
	NarrativeRiskLevel string   `json:"narrative_risk_level"`
	FinancialRiskLevel string   `json:"financial_risk_level"`
	RiskIndicators     []string `json:"risk_indicators"`
	Alignment          string   `json:"alignment"` // "aligned" or "misaligned"
}

// CrossReferenceInsights annotates an analysis. It never changes the scores.
type CrossReferenceInsights struct {
	HasFinancialData     bool             `json:"has_financial_data"`
	Trends               map[string]Trend `json:"trends,omitempty"`
	ProfitabilityRatio   *float64         `json:"profitability_ratio,omitempty"`
	RevenueVolatility    *float64         `json:"revenue_volatility,omitempty"`
	Correlations         []Correlation    `json:"correlations"`
	Discrepancies        []Discrepancy    `json:"discrepancies"`
	Insights             []string         `json:"insights"`
	ConfidenceAdjustment *float64         `json:"confidence_adjustment,omitempty"`
	RiskAlignment        *RiskAlignment   `json:"risk_alignment,omitempty"`
	OverallSentiment     string           `json:"overall_sentiment"`
	FactCount            int              `json:"fact_count"`
}
