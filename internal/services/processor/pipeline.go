package processor

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/services/crossref"
)

const (
	defaultSectionHint = "financial_report"
	embeddingChunkSize = 2000
)

var fiscalPeriodPattern = regexp.MustCompile(`(?i)^(FY\s?\d{4}|Q[1-4]\s?\d{4}|\d{4}(-Q[1-4])?|H[12]\s?\d{4})$`)

// run executes the pipeline after the report entered PROCESSING. A returned
// error is fatal; best-effort failures are recorded as warnings.
func (s *Service) run(ctx context.Context, report *models.FinancialReport, opts interfaces.ProcessOptions,
	result *models.ProcessingResult, start time.Time) error {
	if err := s.validate(report, result); err != nil {
		return err
	}
	result.AddStep(models.StepValidation)

	extraction, err := s.extractor.Extract(ctx, report.FilePath, report.FileFormat)
	if err != nil {
		return err
	}
	result.AddStep(models.StepTextExtraction)
	for _, w := range extraction.Warnings {
		result.AddWarning(w)
	}
	if report.FileFormat.IsMachineTagged() && !extraction.Facts.IsEmpty() {
		result.Facts = extraction.Facts
		result.AddStep(models.StepIXBRLParsing)
	}

	names := analysisSections(extraction.Sections, s.config.MinAnalysisSection)
	if len(names) == 0 {
		return common.FileProcessingError("processor.analyze", nil, "no section longer than %d characters to analyze", s.config.MinAnalysisSection)
	}

	hint := defaultSectionHint
	if len(names) == 1 && names[0] != models.SectionFullDocument {
		hint = names[0]
	}
	sentiment, err := s.analyzer.Analyze(ctx, joinSections(extraction.Sections, names), hint)
	if err != nil {
		return err
	}
	result.AddStep(models.StepSentimentAnalysis)

	modelVersion := s.config.ModelVersion
	if modelVersion == "" {
		modelVersion = sentiment.Model
	}
	analysis, err := models.NewNarrativeAnalysis(report.ID, sentiment.SentimentScores, sentiment.KeyThemes,
		sentiment.RiskIndicators, s.previews(extraction.Sections, sentiment.NarrativeSections), modelVersion)
	if err != nil {
		return common.ModelInferenceError("processor.analyze", err, "analysis rejected")
	}

	if opts.IncludeEmbeddings {
		embeddings, err := s.embed(ctx, analysis, extraction.Sections)
		if err != nil {
			result.AddWarning(fmt.Sprintf("embedding generation failed: %v", err))
			s.logger.Warn().Err(err).Str("report_id", report.ID).Msg("Embedding generation failed, continuing without embeddings")
		} else if len(embeddings) > 0 {
			result.Embeddings = embeddings
			result.AddStep(models.StepEmbeddingGeneration)
		}
	}

	if insights, err := enrich(analysis, result.Facts); err != nil {
		result.AddWarning(fmt.Sprintf("cross-reference enrichment failed: %v", err))
	} else {
		analysis.FinancialMetrics = insights
	}

	analysis.ProcessingTimeSeconds = time.Since(start).Seconds()

	// Complete a copy so a failed commit leaves the report failable
	completed := *report
	if err := completed.Complete(analysis); err != nil {
		return err
	}
	if err := s.storage.TransactionStorage().CommitAnalysis(ctx, &completed, opts.ClaimedBy, analysis, result.Embeddings); err != nil {
		return err
	}
	*report = completed
	result.AddStep(models.StepDatabaseStorage)

	result.Analysis = analysis
	result.AddStep(models.StepCompleted)
	result.Summary = summarize(result, extraction, len(names))
	return nil
}

func (s *Service) validate(report *models.FinancialReport, result *models.ProcessingResult) error {
	info, err := os.Stat(report.FilePath)
	if err != nil {
		return common.FileProcessingError("processor.validate", err, "report file not accessible: %s", report.FilePath)
	}
	if info.IsDir() {
		return common.FileProcessingError("processor.validate", nil, "report file is a directory: %s", report.FilePath)
	}
	report.FileSize = info.Size()

	if s.config.MaxFileSize > 0 && info.Size() > s.config.MaxFileSize {
		result.AddWarning(fmt.Sprintf("file size %d exceeds the %d byte limit", info.Size(), s.config.MaxFileSize))
	}
	if report.FiscalPeriod != "" && !fiscalPeriodPattern.MatchString(strings.TrimSpace(report.FiscalPeriod)) {
		result.AddWarning(fmt.Sprintf("invalid fiscal period format %q", report.FiscalPeriod))
	}

	if report.FileFormat == models.FileFormatPDF && s.inspector != nil {
		if _, err := s.inspector.PageCount(report.FilePath); err != nil {
			return common.FileProcessingError("processor.validate", err, "invalid PDF structure")
		}
	}
	return nil
}

// analysisSections picks the named sections long enough to analyze. The whole
// document is used only when no named section qualifies, so text is never
// analyzed twice.
func analysisSections(sections map[string]string, minLength int) []string {
	var names []string
	for name, text := range sections {
		if name == models.SectionFullDocument {
			continue
		}
		if len(strings.TrimSpace(text)) > minLength {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		sort.Strings(names)
		return names
	}
	if len(strings.TrimSpace(sections[models.SectionFullDocument])) > minLength {
		return []string{models.SectionFullDocument}
	}
	return nil
}

func joinSections(sections map[string]string, names []string) string {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, strings.TrimSpace(sections[name]))
	}
	return strings.Join(parts, "\n\n")
}

// previews keeps the model's narrative summary fields and a short preview of
// every section worth analyzing
func (s *Service) previews(sections, narrative map[string]string) map[string]string {
	out := make(map[string]string, len(sections)+len(narrative))
	for k, v := range narrative {
		out[k] = v
	}
	for name, text := range sections {
		text = strings.TrimSpace(text)
		if len(text) <= s.config.MinAnalysisSection {
			continue
		}
		out[name] = preview(text, s.config.SectionPreviewLength)
	}
	return out
}

func preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func (s *Service) embed(ctx context.Context, analysis *models.NarrativeAnalysis, sections map[string]string) ([]*models.NarrativeEmbedding, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("embedding generator unavailable")
	}

	names := analysisSections(sections, s.config.MinEmbeddingSection)
	var embeddings []*models.NarrativeEmbedding
	var texts []string
	for _, name := range names {
		for i, chunk := range chunk(strings.TrimSpace(sections[name]), embeddingChunkSize) {
			embeddings = append(embeddings, &models.NarrativeEmbedding{
				ID:          common.NewEmbeddingID(),
				AnalysisID:  analysis.ID,
				SectionType: models.SectionTypeForName(name),
				TextChunk:   chunk,
				ChunkIndex:  i,
				CreatedAt:   time.Now(),
			})
			texts = append(texts, chunk)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(embeddings) {
		return nil, fmt.Errorf("expected %d vectors, got %d", len(embeddings), len(vectors))
	}
	for i := range embeddings {
		embeddings[i].Vector = vectors[i]
	}
	return embeddings, nil
}

func chunk(text string, size int) []string {
	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// enrich runs the cross-reference analyzer, converting a panic into an error
func enrich(analysis *models.NarrativeAnalysis, facts models.StructuredFacts) (insights *models.CrossReferenceInsights, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return crossref.Analyze(analysis, facts), nil
}

func summarize(result *models.ProcessingResult, extraction *models.Extraction, analyzed int) models.ProcessingSummary {
	summary := models.ProcessingSummary{
		SectionsAnalyzed:    analyzed,
		FactsExtracted:      result.Facts.Count(),
		EmbeddingsGenerated: len(result.Embeddings),
	}
	if extraction != nil {
		summary.SectionsExtracted = len(extraction.Sections)
	}

	a := result.Analysis
	if a == nil {
		return summary
	}
	optimism, risk, uncertainty := a.OptimismScore, a.RiskScore, a.UncertaintyScore
	summary.OptimismScore = &optimism
	summary.RiskScore = &risk
	summary.UncertaintyScore = &uncertainty
	summary.KeyThemes = a.KeyThemes
	summary.OverallSentiment = crossref.OverallLabel(a.SentimentScores)
	return summary
}
