package crossref

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/tenor/internal/models"
)

func yearEnd(year int) *time.Time {
	t := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
	return &t
}

func buildFacts(revenue []int64, income int64) models.StructuredFacts {
	facts := models.StructuredFacts{}
	for i, v := range revenue {
		facts.Add(models.FactRevenue, models.FinancialFact{
			Concept: "Revenues",
			Value:   decimal.NewFromInt(v),
			Unit:    "USD",
			Period:  models.FactPeriod{End: yearEnd(2020 + i)},
		})
	}
	facts.Add(models.FactIncome, models.FinancialFact{
		Concept: "NetIncomeLoss",
		Value:   decimal.NewFromInt(income),
		Unit:    "USD",
		Period:  models.FactPeriod{End: yearEnd(2020 + len(revenue) - 1)},
	})
	// Per-share values must not be mistaken for net income
	facts.Add(models.FactIncome, models.FinancialFact{
		Concept: "EarningsPerShareBasic",
		Value:   decimal.NewFromFloat(1.5),
		Period:  models.FactPeriod{End: yearEnd(2030)},
	})
	return facts
}

func analysisWith(optimism, risk, uncertainty float64) *models.NarrativeAnalysis {
	return &models.NarrativeAnalysis{
		ID:       "ana_1",
		ReportID: "rpt_1",
		SentimentScores: models.SentimentScores{
			OptimismScore:    optimism,
			RiskScore:        risk,
			UncertaintyScore: uncertainty,
		},
	}
}

func TestAnalyze_WithoutFacts(t *testing.T) {
	insights := Analyze(analysisWith(0.5, 0.5, 0.5), nil)

	assert.False(t, insights.HasFinancialData)
	assert.Equal(t, []string{NarrativeOnlyInsight}, insights.Insights)
	assert.Empty(t, insights.Correlations)
	assert.Empty(t, insights.Discrepancies)
	assert.Nil(t, insights.ConfidenceAdjustment)
	assert.Nil(t, insights.RiskAlignment)
	assert.Equal(t, "neutral", insights.OverallSentiment)
}

func TestAnalyze_PositiveAlignment(t *testing.T) {
	analysis := analysisWith(0.75, 0.3, 0.3)
	before := analysis.SentimentScores

	insights := Analyze(analysis, buildFacts([]int64{1000, 1250}, 200))

	assert.Equal(t, before, analysis.SentimentScores)
	assert.True(t, insights.HasFinancialData)
	assert.Equal(t, 4, insights.FactCount)
	assert.Equal(t, models.TrendIncreasing, insights.Trends["revenue"])

	require.NotNil(t, insights.ProfitabilityRatio)
	assert.InDelta(t, 0.16, *insights.ProfitabilityRatio, 1e-9)
	require.NotNil(t, insights.RevenueVolatility)
	assert.InDelta(t, 0.1111, *insights.RevenueVolatility, 1e-4)

	require.Len(t, insights.Correlations, 1)
	assert.Equal(t, "positive_alignment", insights.Correlations[0].Type)
	assert.Equal(t, "strong", insights.Correlations[0].Strength)
	assert.Empty(t, insights.Discrepancies)

	require.NotNil(t, insights.ConfidenceAdjustment)
	assert.InDelta(t, 0.02, *insights.ConfidenceAdjustment, 1e-9)

	require.NotNil(t, insights.RiskAlignment)
	assert.Equal(t, "aligned", insights.RiskAlignment.Alignment)
	assert.Equal(t, "positive", insights.OverallSentiment)
}

func TestAnalyze_Discrepancies(t *testing.T) {
	insights := Analyze(analysisWith(0.7, 0.35, 0.3), buildFacts([]int64{1000, 800}, 10))

	assert.Equal(t, models.TrendDecreasing, insights.Trends["revenue"])
	require.Len(t, insights.Discrepancies, 2)
	assert.Equal(t, "high", insights.Discrepancies[0].Severity)
	assert.Equal(t, "moderate", insights.Discrepancies[1].Severity)
	assert.Empty(t, insights.Correlations)
	assert.Nil(t, insights.ConfidenceAdjustment)

	require.NotNil(t, insights.RiskAlignment)
	assert.Equal(t, "high", insights.RiskAlignment.FinancialRiskLevel)
	assert.Equal(t, "low", insights.RiskAlignment.NarrativeRiskLevel)
	assert.Equal(t, "misaligned", insights.RiskAlignment.Alignment)
	assert.ElementsMatch(t, []string{"declining revenue", "low profitability"}, insights.RiskAlignment.RiskIndicators)
}

func TestAnalyze_StrongNegativeCorrelations(t *testing.T) {
	insights := Analyze(analysisWith(0.25, 0.7, 0.5), buildFacts([]int64{1000, 800}, 10))

	types := []string{}
	for _, c := range insights.Correlations {
		assert.Equal(t, "strong", c.Strength)
		types = append(types, c.Type)
	}
	assert.Equal(t, []string{"negative_alignment", "risk_profitability"}, types)

	require.NotNil(t, insights.ConfidenceAdjustment)
	assert.InDelta(t, 0.05, *insights.ConfidenceAdjustment, 1e-9)
	assert.Equal(t, "negative", insights.OverallSentiment)
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		first, last float64
		want        models.Trend
	}{
		{100, 106, models.TrendIncreasing},
		{100, 104, models.TrendStable},
		{100, 94, models.TrendDecreasing},
		{-100, -90, models.TrendIncreasing},
		{0, 5, models.TrendIncreasing},
		{0, 0, models.TrendStable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, trendOf(tt.first, tt.last), "%v -> %v", tt.first, tt.last)
	}
}

func TestOverallLabel(t *testing.T) {
	tests := []struct {
		name   string
		scores models.SentimentScores
		want   string
	}{
		{"positive", models.SentimentScores{OptimismScore: 0.8, RiskScore: 0.2, UncertaintyScore: 0.2}, "positive"},
		{"negative", models.SentimentScores{OptimismScore: 0.2, RiskScore: 0.8, UncertaintyScore: 0.2}, "negative"},
		{"uncertain", models.SentimentScores{OptimismScore: 0.5, RiskScore: 0.5, UncertaintyScore: 0.8}, "uncertain"},
		{"cautious", models.SentimentScores{OptimismScore: 0.5, RiskScore: 0.7, UncertaintyScore: 0.3}, "cautious"},
		{"neutral", models.SentimentScores{OptimismScore: 0.5, RiskScore: 0.5, UncertaintyScore: 0.5}, "neutral"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverallLabel(tt.scores))
		})
	}
}
