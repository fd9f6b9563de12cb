// Package batch coordinates multi-report processing. A submission claims every
// member report in one transaction and enqueues a single batch.process message;
// the queue handler then runs the members sequentially, isolating failures.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// Request is a batch submission
type Request struct {
	UserID            string                  `json:"user_id" validate:"required"`
	Tier              models.SubscriptionTier `json:"tier" validate:"required,oneof=basic pro enterprise"`
	ReportIDs         []string                `json:"report_ids" validate:"required,min=1,unique,dive,required"`
	IncludeEmbeddings bool                    `json:"include_embeddings"`
	Force             bool                    `json:"force"`
}

// Service implements the batch coordinator
type Service struct {
	storage   interfaces.StorageManager
	queue     interfaces.QueueManager
	processor interfaces.DocumentProcessor
	events    interfaces.EventService
	config    common.BatchConfig
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewService creates the batch coordinator. events may be nil.
func NewService(
	storage interfaces.StorageManager,
	queue interfaces.QueueManager,
	processor interfaces.DocumentProcessor,
	events interfaces.EventService,
	config common.BatchConfig,
	logger arbor.ILogger,
) *Service {
	if config.HardCap <= 0 {
		config.HardCap = 10
	}
	return &Service{
		storage:   storage,
		queue:     queue,
		processor: processor,
		events:    events,
		config:    config,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Submit validates the request, claims every member report and enqueues the
// batch. Size limits are checked before any report changes state.
func (s *Service) Submit(ctx context.Context, req Request) (*models.BatchJob, error) {
	const op = "batch.Submit"

	if err := s.validate.Struct(req); err != nil {
		return nil, common.ValidationError(op, "invalid batch request: %v", err)
	}
	n := len(req.ReportIDs)
	if n > s.config.HardCap {
		return nil, common.ValidationError(op, "batch size (%d) exceeds maximum limit (%d)", n, s.config.HardCap)
	}
	if limit := s.config.TierCap(string(req.Tier)); n > limit {
		return nil, common.ValidationError(op, "batch size (%d) exceeds %s subscription limit (%d)", n, req.Tier, limit)
	}

	now := time.Now()
	batch := &models.BatchJob{
		ID:                common.NewBatchID(),
		UserID:            req.UserID,
		Status:            models.BatchPending,
		TotalReports:      n,
		ReportIDs:         append([]string(nil), req.ReportIDs...),
		Results:           []models.BatchReportResult{},
		Progress:          models.BatchProgress{Total: n},
		IncludeEmbeddings: req.IncludeEmbeddings,
		CreatedAt:         now,
	}

	claimed, err := s.storage.TransactionStorage().ClaimBatch(ctx, batch, req.Force)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(models.BatchProcessPayload{BatchID: batch.ID, IncludeEmbeddings: req.IncludeEmbeddings})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch payload: %w", err)
	}
	msg := models.QueueMessage{JobID: batch.ID, Type: models.MessageTypeBatchProcess, Payload: payload}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		s.release(batch, claimed, fmt.Sprintf("failed to enqueue batch: %v", err))
		return nil, common.ExternalServiceError(op, err, "failed to enqueue batch %s", batch.ID)
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("user_id", batch.UserID).
		Str("tier", string(req.Tier)).
		Int("reports", n).
		Bool("force", req.Force).
		Msg("Batch submitted")
	return batch, nil
}

// release fails a batch that could not be enqueued and frees its members
func (s *Service) release(batch *models.BatchJob, claimed []*models.FinancialReport, cause string) {
	ctx := context.Background()
	for _, report := range claimed {
		if _, err := s.storage.TransactionStorage().FailReport(ctx, report.ID, batch.ID, cause); err != nil {
			s.logger.Error().Err(err).Str("report_id", report.ID).Msg("Failed to release batch member")
		}
	}
	now := time.Now()
	batch.Status = models.BatchFailed
	batch.ErrorMessage = cause
	batch.CompletedAt = &now
	if err := s.storage.BatchStorage().SaveBatch(ctx, batch); err != nil {
		s.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("Failed to save released batch")
	}
}

// Get returns a batch by id
func (s *Service) Get(ctx context.Context, batchID string) (*models.BatchJob, error) {
	return s.storage.BatchStorage().GetBatch(ctx, batchID)
}

// ListByUser returns a user's batches
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*models.BatchJob, error) {
	return s.storage.BatchStorage().ListBatchesByUser(ctx, userID)
}
