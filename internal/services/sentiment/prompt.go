package sentiment

import (
	"fmt"
	"strings"
)

const defaultSectionHint = "financial_report"

const promptTemplate = `You are a financial narrative analyzer. Analyze the following %s text and provide multi-dimensional sentiment scores.

IMPORTANT: Respond ONLY with a valid JSON object containing the requested fields. Do not include any additional text, explanations, or formatting.

TEXT TO ANALYZE:
%s

Required JSON Response Format:
{
    "optimism_score": <float 0.0-1.0>,
    "optimism_confidence": <float 0.0-1.0>,
    "risk_score": <float 0.0-1.0>,
    "risk_confidence": <float 0.0-1.0>,
    "uncertainty_score": <float 0.0-1.0>,
    "uncertainty_confidence": <float 0.0-1.0>,
    "key_themes": [<list of 3-10 main themes as strings>],
    "risk_indicators": [<list of risk-related phrases found in the text>],
    "narrative_sections": {
        "summary": "<brief 1-2 sentence summary>",
        "tone": "<overall tone description>",
        "outlook": "<forward-looking sentiment>"
    }
}

Scoring Guidelines:
- optimism_score: 0.0=very pessimistic, 0.5=neutral, 1.0=very optimistic
- risk_score: 0.0=low risk perception, 0.5=moderate, 1.0=high risk perception
- uncertainty_score: 0.0=very certain/clear, 0.5=some uncertainty, 1.0=very uncertain
- confidence: 0.0=low confidence in score, 1.0=high confidence in score
- key_themes: 3-10 main narrative themes (e.g. "market expansion", "cost management")
- risk_indicators: specific risk-related language (e.g. "challenging", "uncertain", "headwinds")

Focus on financial context, management tone, forward guidance and strategic positioning.`

// buildPrompt renders the analysis prompt. Output depends only on the inputs.
func buildPrompt(text, sectionHint string) string {
	hint := strings.TrimSpace(sectionHint)
	if hint == "" {
		hint = defaultSectionHint
	}
	return fmt.Sprintf(promptTemplate, hint, text)
}

// truncate cuts text to maxChars characters and appends "..." when it was longer
func truncate(text string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text, false
	}
	return string(runes[:maxChars]) + "...", true
}
