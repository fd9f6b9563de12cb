// Package crossref relates narrative sentiment to the structured financial
// facts of the same filing. Analysis is pure: the inputs are never mutated.
package crossref

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ternarybob/tenor/internal/models"
)

const (
	trendBand = 0.05

	lowProfitability     = 0.05
	highRevenueVariation = 0.15

	maxConfidenceAdjustment = 0.05
)

// NarrativeOnlyInsight is recorded when a filing carries no structured facts
const NarrativeOnlyInsight = "No structured financial data available: narrative sentiment only"

// Analyze builds the cross-reference insights for an analysis. facts may be nil.
func Analyze(analysis *models.NarrativeAnalysis, facts models.StructuredFacts) *models.CrossReferenceInsights {
	scores := analysis.SentimentScores
	insights := &models.CrossReferenceInsights{
		Correlations:     []models.Correlation{},
		Discrepancies:    []models.Discrepancy{},
		Insights:         []string{},
		OverallSentiment: OverallLabel(scores),
	}

	if facts.IsEmpty() {
		insights.Insights = append(insights.Insights, NarrativeOnlyInsight)
		return insights
	}

	insights.HasFinancialData = true
	insights.FactCount = facts.Count()
	insights.Trends = trends(facts)

	revenue, hasRevenue := latest(facts, models.FactRevenue, "revenues", "revenue", "sales")
	income, hasIncome := latest(facts, models.FactIncome, "netincomeloss", "netincome", "profitloss")
	if hasRevenue && hasIncome && revenue != 0 {
		ratio := income / revenue
		insights.ProfitabilityRatio = &ratio
	}

	if values := facts.Values(models.FactRevenue); len(values) >= 2 {
		cv := coefficientOfVariation(values)
		insights.RevenueVolatility = &cv
	}

	insights.Correlations = correlations(scores, insights)
	insights.Discrepancies = discrepancies(scores, insights)
	insights.ConfidenceAdjustment = confidenceAdjustment(insights.Correlations)
	insights.RiskAlignment = riskAlignment(scores, insights)
	insights.Insights = summarize(insights)

	return insights
}

func trends(facts models.StructuredFacts) map[string]models.Trend {
	result := make(map[string]models.Trend)
	for _, category := range models.FactCategories {
		values := facts.Values(category)
		if len(values) < 2 {
			continue
		}
		result[string(category)] = trendOf(values[0], values[len(values)-1])
	}
	return result
}

func trendOf(first, last float64) models.Trend {
	if first == 0 {
		switch {
		case last > 0:
			return models.TrendIncreasing
		case last < 0:
			return models.TrendDecreasing
		}
		return models.TrendStable
	}

	change := (last - first) / math.Abs(first)
	switch {
	case change > trendBand:
		return models.TrendIncreasing
	case change < -trendBand:
		return models.TrendDecreasing
	}
	return models.TrendStable
}

// latest returns the most recent value of the first preferred concept present,
// falling back to the most recent value across the category
func latest(facts models.StructuredFacts, category models.FactCategory, preferred ...string) (float64, bool) {
	concepts := facts[category]
	if len(concepts) == 0 {
		return 0, false
	}

	for _, want := range preferred {
		names := make([]string, 0, len(concepts))
		for name := range concepts {
			if strings.ToLower(name) == want {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			if list := concepts[name]; len(list) > 0 {
				return list[len(list)-1].Value.InexactFloat64(), true
			}
		}
	}

	values := facts.Values(category)
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

func coefficientOfVariation(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq/float64(len(values))) / math.Abs(mean)
}

func correlations(s models.SentimentScores, in *models.CrossReferenceInsights) []models.Correlation {
	result := []models.Correlation{}
	revenueTrend := in.Trends[string(models.FactRevenue)]

	if s.OptimismScore > 0.6 && revenueTrend == models.TrendIncreasing {
		result = append(result, models.Correlation{
			Type:        "positive_alignment",
			Strength:    strength(s.OptimismScore > 0.7),
			Description: "Optimistic narrative is supported by increasing revenue",
		})
	}
	if s.OptimismScore < 0.4 && revenueTrend == models.TrendDecreasing {
		result = append(result, models.Correlation{
			Type:        "negative_alignment",
			Strength:    strength(s.OptimismScore < 0.3),
			Description: "Pessimistic narrative is consistent with decreasing revenue",
		})
	}
	if in.ProfitabilityRatio != nil && *in.ProfitabilityRatio < lowProfitability && s.RiskScore > 0.6 {
		result = append(result, models.Correlation{
			Type:        "risk_profitability",
			Strength:    "strong",
			Description: "High narrative risk matches low profitability",
		})
	}
	if in.RevenueVolatility != nil && *in.RevenueVolatility > highRevenueVariation && s.UncertaintyScore > 0.7 {
		result = append(result, models.Correlation{
			Type:        "uncertainty_volatility",
			Strength:    "moderate",
			Description: "High narrative uncertainty matches volatile revenue",
		})
	}
	return result
}

func strength(strong bool) string {
	if strong {
		return "strong"
	}
	return "moderate"
}

func discrepancies(s models.SentimentScores, in *models.CrossReferenceInsights) []models.Discrepancy {
	result := []models.Discrepancy{}

	if in.Trends[string(models.FactRevenue)] == models.TrendDecreasing && s.OptimismScore > 0.65 {
		result = append(result, models.Discrepancy{
			Type:           "optimism_revenue_decline",
			Severity:       "high",
			Description:    "Narrative is optimistic while revenue is decreasing",
			Recommendation: "Review forward-looking statements against reported revenue",
		})
	}
	if in.ProfitabilityRatio != nil && *in.ProfitabilityRatio < 0.02 && s.RiskScore < 0.4 {
		result = append(result, models.Discrepancy{
			Type:           "low_risk_low_profitability",
			Severity:       "moderate",
			Description:    "Narrative reports low risk while profitability is minimal",
			Recommendation: "Check whether margin pressure is disclosed in risk factors",
		})
	}
	if in.RevenueVolatility != nil && *in.RevenueVolatility < 0.05 && s.UncertaintyScore > 0.7 {
		result = append(result, models.Discrepancy{
			Type:           "uncertainty_stable_revenue",
			Severity:       "low",
			Description:    "Narrative is highly uncertain while revenue is stable",
			Recommendation: "Identify the non-financial sources of uncertainty",
		})
	}
	return result
}

func confidenceAdjustment(correlations []models.Correlation) *float64 {
	strong, moderate := 0, 0
	for _, c := range correlations {
		if c.Strength == "strong" {
			strong++
		} else {
			moderate++
		}
	}

	var adj float64
	switch {
	case strong >= 2:
		adj = maxConfidenceAdjustment
	case strong == 1:
		adj = 0.02
	case moderate >= 2:
		adj = 0.01
	default:
		return nil
	}
	return &adj
}

func riskAlignment(s models.SentimentScores, in *models.CrossReferenceInsights) *models.RiskAlignment {
	indicators := []string{}
	if in.Trends[string(models.FactRevenue)] == models.TrendDecreasing {
		indicators = append(indicators, "declining revenue")
	}
	if in.ProfitabilityRatio != nil {
		if *in.ProfitabilityRatio < 0 {
			indicators = append(indicators, "net loss")
		} else if *in.ProfitabilityRatio < lowProfitability {
			indicators = append(indicators, "low profitability")
		}
	}
	if in.RevenueVolatility != nil && *in.RevenueVolatility > highRevenueVariation {
		indicators = append(indicators, "volatile revenue")
	}

	financial := "low"
	switch {
	case len(indicators) >= 2:
		financial = "high"
	case len(indicators) == 1:
		financial = "moderate"
	}

	narrative := "low"
	switch {
	case s.RiskScore > 0.6:
		narrative = "high"
	case s.RiskScore > 0.4:
		narrative = "moderate"
	}

	alignment := "aligned"
	if financial != narrative {
		alignment = "misaligned"
	}

	return &models.RiskAlignment{
		NarrativeRiskLevel: narrative,
		FinancialRiskLevel: financial,
		RiskIndicators:     indicators,
		Alignment:          alignment,
	}
}

func summarize(in *models.CrossReferenceInsights) []string {
	lines := []string{}
	for _, category := range models.FactCategories {
		if trend, ok := in.Trends[string(category)]; ok {
			lines = append(lines, fmt.Sprintf("%s trend: %s", category, trend))
		}
	}
	if in.ProfitabilityRatio != nil {
		lines = append(lines, fmt.Sprintf("Profitability ratio: %.1f%%", *in.ProfitabilityRatio*100))
	}
	if in.RevenueVolatility != nil {
		lines = append(lines, fmt.Sprintf("Revenue variation: %.1f%%", *in.RevenueVolatility*100))
	}
	for _, c := range in.Correlations {
		lines = append(lines, c.Description)
	}
	for _, d := range in.Discrepancies {
		lines = append(lines, fmt.Sprintf("%s (%s)", d.Description, d.Severity))
	}
	return lines
}

// OverallLabel classifies the scores as positive, negative, uncertain, cautious or neutral
func OverallLabel(s models.SentimentScores) string {
	switch {
	case s.OptimismScore > 0.6 && s.RiskScore < 0.4 && s.UncertaintyScore < 0.4:
		return "positive"
	case s.OptimismScore < 0.4 && s.RiskScore > 0.6:
		return "negative"
	case s.UncertaintyScore > 0.6:
		return "uncertain"
	case s.RiskScore > 0.6:
		return "cautious"
	}
	return "neutral"
}
