package badger

import (
	"context"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// DeltaStorage implements the DeltaStorage interface for Badger
type DeltaStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex // serializes find-or-create so the pair stays unique
}

// NewDeltaStorage creates a new DeltaStorage instance
func NewDeltaStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DeltaStorage {
	return &DeltaStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DeltaStorage) FindOrCreateDelta(ctx context.Context, delta *models.NarrativeDelta) (*models.NarrativeDelta, bool, error) {
	if delta.BaseAnalysisID == "" || delta.ComparisonAnalysisID == "" {
		return nil, false, common.ValidationError("find_or_create_delta", "both analysis IDs are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result *models.NarrativeDelta
	created := false

	err := s.db.update(func(tx *badgerdb.Txn) error {
		var existing []models.NarrativeDelta
		query := badgerhold.Where("BaseAnalysisID").Eq(delta.BaseAnalysisID).Index("BaseAnalysisID").
			And("ComparisonAnalysisID").Eq(delta.ComparisonAnalysisID)
		if err := s.db.Store().TxFind(tx, &existing, query); err != nil {
			return err
		}

		now := time.Now()
		if len(existing) > 0 {
			current := existing[0]
			refreshed := *delta
			refreshed.ID = current.ID
			refreshed.CreatedAt = current.CreatedAt
			refreshed.UpdatedAt = now
			if err := s.db.Store().TxUpdate(tx, refreshed.ID, &refreshed); err != nil {
				return err
			}
			result = &refreshed
			return nil
		}

		if delta.ID == "" {
			delta.ID = common.NewDeltaID()
		}
		if delta.CreatedAt.IsZero() {
			delta.CreatedAt = now
		}
		delta.UpdatedAt = now
		if err := s.db.Store().TxInsert(tx, delta.ID, delta); err != nil {
			return err
		}
		result = delta
		created = true
		return nil
	})
	if err != nil {
		return nil, false, mapError("find_or_create_delta", err, "failed to store delta %s", delta.PairKey())
	}

	s.logger.Debug().
		Str("delta_id", result.ID).
		Str("pair", result.PairKey()).
		Bool("created", created).
		Msg("Delta stored")
	return result, created, nil
}

func (s *DeltaStorage) GetDelta(ctx context.Context, id string) (*models.NarrativeDelta, error) {
	var delta models.NarrativeDelta
	if err := s.db.Store().Get(id, &delta); err != nil {
		return nil, mapError("get_delta", err, "delta %s not found", id)
	}
	return &delta, nil
}

// ListDeltasByCompany returns a company's deltas, oldest first
func (s *DeltaStorage) ListDeltasByCompany(ctx context.Context, companyID string) ([]*models.NarrativeDelta, error) {
	var deltas []models.NarrativeDelta
	if err := s.db.Store().Find(&deltas, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID")); err != nil {
		return nil, mapError("list_deltas", err, "failed to list deltas of %s", companyID)
	}
	sort.SliceStable(deltas, func(i, j int) bool {
		return deltas[i].CreatedAt.Before(deltas[j].CreatedAt)
	})

	result := make([]*models.NarrativeDelta, len(deltas))
	for i := range deltas {
		result[i] = &deltas[i]
	}
	return result, nil
}
