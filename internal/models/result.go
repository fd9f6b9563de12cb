package models

import (
	"time"
)

// ProcessingSummary is a compact view of a pipeline run for CLI and API output
type ProcessingSummary struct {
	SectionsExtracted   int      `json:"sections_extracted"`
	SectionsAnalyzed    int      `json:"sections_analyzed"`
	FactsExtracted      int      `json:"facts_extracted"`
	EmbeddingsGenerated int      `json:"embeddings_generated"`
	OptimismScore       *float64 `json:"optimism_score,omitempty"`
	RiskScore           *float64 `json:"risk_score,omitempty"`
	UncertaintyScore    *float64 `json:"uncertainty_score,omitempty"`
	KeyThemes           []string `json:"key_themes,omitempty"`
	OverallSentiment    string   `json:"overall_sentiment,omitempty"`
}

// ProcessingResult is the single outcome shape of a Document Processor run.
// Failures are reported through Errors; the processor never returns an error.
type ProcessingResult struct {
	ReportID       string                `json:"report_id"`
	FinalStatus    ProcessingStatus      `json:"final_status"`
	CompletedSteps []ProcessingStep      `json:"completed_steps"`
	Duration       time.Duration         `json:"duration"`
	Analysis       *NarrativeAnalysis    `json:"analysis,omitempty"`
	Facts          StructuredFacts       `json:"facts,omitempty"`
	Embeddings     []*NarrativeEmbedding `json:"embeddings,omitempty"`
	Errors         []string              `json:"errors"`
	Warnings       []string              `json:"warnings"`
	Summary        ProcessingSummary     `json:"summary"`
	Reused         bool                  `json:"reused"` // Existing analysis returned without reprocessing
}

// NewProcessingResult starts an empty result for a report
func NewProcessingResult(reportID string) *ProcessingResult {
	return &ProcessingResult{
		ReportID:       reportID,
		CompletedSteps: []ProcessingStep{},
		Errors:         []string{},
		Warnings:       []string{},
	}
}

// Success is true when the completed step was reached and no errors were recorded
func (r *ProcessingResult) Success() bool {
	if len(r.Errors) > 0 {
		return false
	}
	for _, step := range r.CompletedSteps {
		if step == StepCompleted {
			return true
		}
	}
	return false
}

func (r *ProcessingResult) AddStep(step ProcessingStep) {
	r.CompletedSteps = append(r.CompletedSteps, step)
}

func (r *ProcessingResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *ProcessingResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}
