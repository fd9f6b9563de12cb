package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// HandleMessage is the queue handler for batch.process messages
func (s *Service) HandleMessage(ctx context.Context, msg *models.QueueMessage) error {
	var payload models.BatchProcessPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid batch payload: %w", err)
	}
	if payload.BatchID == "" {
		payload.BatchID = msg.JobID
	}
	return s.Execute(ctx, payload.BatchID)
}

// Execute processes every member of a batch in order. One member's failure
// never stops the others; the batch status is derived once all members have
// a result. Members already recorded by an earlier delivery are skipped.
func (s *Service) Execute(ctx context.Context, batchID string) error {
	batches := s.storage.BatchStorage()
	batch, err := batches.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status.IsTerminal() {
		s.logger.Warn().
			Str("batch_id", batch.ID).
			Str("status", string(batch.Status)).
			Msg("Batch already finished, ignoring redelivery")
		return nil
	}

	// Progress writes must survive a cancelled task context
	persist := context.WithoutCancel(ctx)

	if batch.Status == models.BatchPending {
		now := time.Now()
		batch.Status = models.BatchProcessing
		batch.StartedAt = &now
		if err := batches.SaveBatch(persist, batch); err != nil {
			return err
		}
	}

	done := make(map[string]bool, len(batch.Results))
	for _, r := range batch.Results {
		done[r.ReportID] = true
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Int("reports", batch.TotalReports).
		Int("already_done", len(done)).
		Msg("Batch execution started")

	opts := interfaces.ProcessOptions{
		IncludeEmbeddings: batch.IncludeEmbeddings,
		ClaimedBy:         batch.ID,
	}

	for i, reportID := range batch.ReportIDs {
		if done[reportID] {
			continue
		}

		var result models.BatchReportResult
		if err := ctx.Err(); err != nil {
			result = s.abandon(persist, batch.ID, reportID, err)
		} else {
			s.logger.Debug().
				Str("batch_id", batch.ID).
				Str("report_id", reportID).
				Int("index", i+1).
				Int("total", batch.TotalReports).
				Msg("Processing batch member")
			batch.StartMember(reportID)
			s.saveProgress(persist, batch)
			result = s.processMember(ctx, reportID, opts)
		}

		batch.RecordResult(result)
		s.saveProgress(persist, batch)
	}

	now := time.Now()
	batch.Status = batch.DeriveStatus()
	batch.CompletedAt = &now
	batch.Progress.CurrentReport = ""
	if err := batches.SaveBatch(persist, batch); err != nil {
		return err
	}
	s.publish(persist, interfaces.EventBatchCompleted, batch)

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("status", string(batch.Status)).
		Int("successful", batch.SuccessfulReports).
		Int("failed", batch.FailedReports).
		Msg("Batch execution finished")
	return nil
}

func (s *Service) saveProgress(ctx context.Context, batch *models.BatchJob) {
	if err := s.storage.BatchStorage().SaveBatch(ctx, batch); err != nil {
		s.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("Failed to save batch progress")
	}
	s.publish(ctx, interfaces.EventBatchProgress, batch)
}

// processMember runs one report and converts any outcome, including a panic,
// into that member's result
func (s *Service) processMember(ctx context.Context, reportID string, opts interfaces.ProcessOptions) (result models.BatchReportResult) {
	result = models.BatchReportResult{ReportID: reportID}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("report_id", reportID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Batch member panicked")
			result.Status = "failed"
			result.Errors = []string{fmt.Sprintf("unexpected failure: %v", r)}
			result.AnalysisID = ""
		}
	}()

	processed := s.processor.Process(ctx, reportID, opts)
	if processed.Success() {
		result.Status = "success"
		if processed.Analysis != nil {
			result.AnalysisID = processed.Analysis.ID
		}
		return result
	}
	result.Status = "failed"
	result.Errors = processed.Errors
	return result
}

// abandon fails a member the batch no longer has time to process so it is not
// left claimed
func (s *Service) abandon(ctx context.Context, batchID, reportID string, cause error) models.BatchReportResult {
	msg := fmt.Sprintf("batch %s stopped before processing: %v", batchID, cause)
	if _, err := s.storage.TransactionStorage().FailReport(ctx, reportID, batchID, msg); err != nil && !errors.Is(err, common.ErrConflict) {
		s.logger.Error().Err(err).Str("report_id", reportID).Msg("Failed to release abandoned member")
	}
	return models.BatchReportResult{ReportID: reportID, Status: "failed", Errors: []string{msg}}
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, batch *models.BatchJob) {
	if s.events == nil {
		return
	}
	payload := map[string]interface{}{
		"batch_id": batch.ID,
		"status":   string(batch.Status),
		"progress": batch.Progress,
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("Failed to publish batch event")
	}
}
