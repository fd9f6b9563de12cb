// Package processor runs the document pipeline for one financial report:
// validation, extraction, sentiment analysis, embeddings, cross-reference
// enrichment and the final atomic commit.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// Service implements interfaces.DocumentProcessor
type Service struct {
	storage   interfaces.StorageManager
	extractor interfaces.Extractor
	inspector interfaces.PDFInspector
	analyzer  interfaces.SentimentAnalyzer
	embedder  interfaces.EmbeddingGenerator
	events    interfaces.EventService
	config    common.ProcessingConfig
	logger    arbor.ILogger
}

// Compile-time assertion
var _ interfaces.DocumentProcessor = (*Service)(nil)

// NewService creates the document processor. inspector, embedder and events may be nil.
func NewService(
	storage interfaces.StorageManager,
	extractor interfaces.Extractor,
	inspector interfaces.PDFInspector,
	analyzer interfaces.SentimentAnalyzer,
	embedder interfaces.EmbeddingGenerator,
	events interfaces.EventService,
	config common.ProcessingConfig,
	logger arbor.ILogger,
) *Service {
	if config.MinAnalysisSection <= 0 {
		config.MinAnalysisSection = 100
	}
	if config.MinEmbeddingSection <= 0 {
		config.MinEmbeddingSection = 50
	}
	if config.SectionPreviewLength <= 0 {
		config.SectionPreviewLength = 500
	}
	return &Service{
		storage:   storage,
		extractor: extractor,
		inspector: inspector,
		analyzer:  analyzer,
		embedder:  embedder,
		events:    events,
		config:    config,
		logger:    logger,
	}
}

// Process runs the pipeline for one report. Every failure is reported in the
// returned result; a report that entered PROCESSING and then failed is saved
// as FAILED with the cause.
func (s *Service) Process(ctx context.Context, reportID string, opts interfaces.ProcessOptions) *models.ProcessingResult {
	start := time.Now()
	result := models.NewProcessingResult(reportID)
	defer func() {
		result.Duration = time.Since(start)
	}()

	report, err := s.storage.ReportStorage().GetReport(ctx, reportID)
	if err != nil {
		result.AddError(err.Error())
		return result
	}
	result.FinalStatus = report.Status

	if report.Status == models.StatusCompleted && !opts.ForceReprocess {
		existing, err := s.storage.AnalysisStorage().GetAnalysisByReport(ctx, reportID)
		if err == nil {
			result.Analysis = existing
			result.Reused = true
			result.AddWarning("report already processed: returning existing analysis (use force to reprocess)")
			result.AddStep(models.StepCompleted)
			result.Summary = summarize(result, nil, 0)
			return result
		}
		if !errors.Is(err, common.ErrNotFound) {
			result.AddError(err.Error())
			return result
		}
		s.logger.Warn().Str("report_id", reportID).Msg("Completed report has no analysis, reprocessing")
	}

	// The guard runs against the stored row, not this read
	started, err := s.storage.TransactionStorage().StartProcessing(ctx, reportID, opts.ClaimedBy,
		report.Status == models.StatusCompleted)
	if err != nil {
		result.AddError(err.Error())
		return result
	}
	report = started
	result.FinalStatus = models.StatusProcessing

	s.logger.Info().
		Str("report_id", report.ID).
		Str("company_id", report.CompanyID).
		Str("format", string(report.FileFormat)).
		Str("claimed_by", opts.ClaimedBy).
		Msg("Processing report")

	if err := s.runRecovered(ctx, report, opts, result, start); err != nil {
		s.fail(ctx, report, opts.ClaimedBy, result, err)
		return result
	}

	result.FinalStatus = models.StatusCompleted
	s.publish(ctx, interfaces.EventReportCompleted, map[string]interface{}{
		"report_id":   report.ID,
		"analysis_id": result.Analysis.ID,
		"status":      string(report.Status),
		"claimed_by":  opts.ClaimedBy,
	})

	s.logger.Info().
		Str("report_id", report.ID).
		Str("analysis_id", result.Analysis.ID).
		Int("embeddings", len(result.Embeddings)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", time.Since(start)).
		Msg("Report processed")
	return result
}

// runRecovered converts a panic anywhere in the pipeline into a fatal error
// so the report is still marked FAILED
func (s *Service) runRecovered(ctx context.Context, report *models.FinancialReport, opts interfaces.ProcessOptions,
	result *models.ProcessingResult, start time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("report_id", report.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Pipeline panicked")
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return s.run(ctx, report, opts, result, start)
}

// fail records the error on the result and persists the report as FAILED,
// provided the stored report is still PROCESSING for this run's claimant.
// The save uses a context detached from cancellation so a timed-out task
// still records its failure.
func (s *Service) fail(ctx context.Context, report *models.FinancialReport, claimedBy string, result *models.ProcessingResult, cause error) {
	msg := cause.Error()
	result.AddError(msg)

	failed, err := s.storage.TransactionStorage().FailReport(context.WithoutCancel(ctx), report.ID, claimedBy, msg)
	if err != nil {
		s.logger.Error().Err(err).Str("report_id", report.ID).Msg("Failed to mark report failed")
		result.AddError(fmt.Sprintf("failed to save report status: %v", err))
		return
	}
	*report = *failed
	result.FinalStatus = models.StatusFailed

	s.logger.Error().
		Err(cause).
		Str("report_id", report.ID).
		Str("kind", string(common.KindOf(cause))).
		Msg("Report processing failed")

	s.publish(ctx, interfaces.EventReportFailed, map[string]interface{}{
		"report_id": report.ID,
		"status":    string(report.Status),
		"error":     msg,
	})
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish event")
	}
}
