package badger

import (
	"context"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// BatchStorage implements the BatchStorage interface for Badger
type BatchStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBatchStorage creates a new BatchStorage instance
func NewBatchStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BatchStorage {
	return &BatchStorage{
		db:     db,
		logger: logger,
	}
}

func (s *BatchStorage) SaveBatch(ctx context.Context, batch *models.BatchJob) error {
	if batch.ID == "" {
		return common.ValidationError("save_batch", "batch ID is required")
	}
	if err := s.db.Store().Upsert(batch.ID, batch); err != nil {
		return mapError("save_batch", err, "failed to save batch %s", batch.ID)
	}
	return nil
}

func (s *BatchStorage) GetBatch(ctx context.Context, id string) (*models.BatchJob, error) {
	var batch models.BatchJob
	if err := s.db.Store().Get(id, &batch); err != nil {
		return nil, mapError("get_batch", err, "batch %s not found", id)
	}
	return &batch, nil
}

// ListBatchesByUser returns a user's batches, newest first
func (s *BatchStorage) ListBatchesByUser(ctx context.Context, userID string) ([]*models.BatchJob, error) {
	var batches []models.BatchJob
	if err := s.db.Store().Find(&batches, badgerhold.Where("UserID").Eq(userID).Index("UserID")); err != nil {
		return nil, mapError("list_batches", err, "failed to list batches of %s", userID)
	}
	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].CreatedAt.After(batches[j].CreatedAt)
	})

	result := make([]*models.BatchJob, len(batches))
	for i := range batches {
		result[i] = &batches[i]
	}
	return result, nil
}
