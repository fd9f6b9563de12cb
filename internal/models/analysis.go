package models

import (
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/ternarybob/tenor/internal/common"
)

// SentimentScores holds the three dimension scores and their confidences.
// Every value lies in [0, 1].
type SentimentScores struct {
	OptimismScore         float64 `json:"optimism_score"`
	OptimismConfidence    float64 `json:"optimism_confidence"`
	RiskScore             float64 `json:"risk_score"`
	RiskConfidence        float64 `json:"risk_confidence"`
	UncertaintyScore      float64 `json:"uncertainty_score"`
	UncertaintyConfidence float64 `json:"uncertainty_confidence"`
}

// Validate rejects any value outside [0, 1]. Values are never clamped.
func (s SentimentScores) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"optimism_score", s.OptimismScore},
		{"optimism_confidence", s.OptimismConfidence},
		{"risk_score", s.RiskScore},
		{"risk_confidence", s.RiskConfidence},
		{"uncertainty_score", s.UncertaintyScore},
		{"uncertainty_confidence", s.UncertaintyConfidence},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || f.value < 0 || f.value > 1 {
			return common.ValidationError("validate_scores", "%s=%v is outside [0.0, 1.0]", f.name, f.value)
		}
	}
	return nil
}

// OverallSentiment combines the dimensions into one score in [0, 1]:
// optimism counts positively, risk and uncertainty negatively.
func (s SentimentScores) OverallSentiment() float64 {
	return (s.OptimismScore + (1 - s.RiskScore) + (1 - s.UncertaintyScore)) / 3
}

// NarrativeAnalysis is one sentiment-analysis outcome for one report
type NarrativeAnalysis struct {
	ID       string `json:"id" badgerhold:"key"`
	ReportID string `json:"report_id" badgerhold:"index"`
	SentimentScores
	KeyThemes             []string                `json:"key_themes"`
	RiskIndicators        []string                `json:"risk_indicators"`
	NarrativeSections     map[string]string       `json:"narrative_sections"`
	FinancialMetrics      *CrossReferenceInsights `json:"financial_metrics,omitempty"`
	ProcessingTimeSeconds float64                 `json:"processing_time_seconds"`
	ModelVersion          string                  `json:"model_version"`
	CreatedAt             time.Time               `json:"created_at"`
}

// NewNarrativeAnalysis constructs a validated analysis. Construction fails on
// any out-of-range score or empty theme.
func NewNarrativeAnalysis(reportID string, scores SentimentScores, themes, riskIndicators []string,
	sections map[string]string, modelVersion string) (*NarrativeAnalysis, error) {
	a := &NarrativeAnalysis{
		ID:                common.NewAnalysisID(),
		ReportID:          reportID,
		SentimentScores:   scores,
		KeyThemes:         themes,
		RiskIndicators:    riskIndicators,
		NarrativeSections: sections,
		ModelVersion:      modelVersion,
		CreatedAt:         time.Now(),
	}
	if a.NarrativeSections == nil {
		a.NarrativeSections = map[string]string{}
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the committable invariants
func (a *NarrativeAnalysis) Validate() error {
	if a.ReportID == "" {
		return common.ValidationError("validate_analysis", "report id is required")
	}
	if err := a.SentimentScores.Validate(); err != nil {
		return err
	}
	for i, theme := range a.KeyThemes {
		if strings.TrimSpace(theme) == "" {
			return common.ValidationError("validate_analysis", "key theme %d is empty", i)
		}
	}
	return nil
}

// NarrativeEmbedding is the vector for one narrative section of an analysis
type NarrativeEmbedding struct {
	ID          string      `json:"id" badgerhold:"key"`
	AnalysisID  string      `json:"analysis_id" badgerhold:"index"`
	SectionType SectionType `json:"section_type"`
	TextChunk   string      `json:"text_chunk"`
	Vector      []float32   `json:"vector"`
	ChunkIndex  int         `json:"chunk_index"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SentimentResult is the validated output of one sentiment engine call
type SentimentResult struct {
	SentimentScores
	KeyThemes         []string          `json:"key_themes"`
	RiskIndicators    []string          `json:"risk_indicators"`
	NarrativeSections map[string]string `json:"narrative_sections"` // summary, tone, outlook
	Model             string            `json:"model"`
	Duration          time.Duration     `json:"duration"`
}

// Clone returns a deep copy whose slices and map share nothing with r
func (r *SentimentResult) Clone() *SentimentResult {
	out := *r
	out.KeyThemes = slices.Clone(r.KeyThemes)
	out.RiskIndicators = slices.Clone(r.RiskIndicators)
	out.NarrativeSections = maps.Clone(r.NarrativeSections)
	return &out
}
