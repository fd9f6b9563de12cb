package badger

import (
	"context"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// EmbeddingStorage implements the EmbeddingStorage interface for Badger
type EmbeddingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEmbeddingStorage creates a new EmbeddingStorage instance
func NewEmbeddingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EmbeddingStorage {
	return &EmbeddingStorage{
		db:     db,
		logger: logger,
	}
}

// GetEmbeddings returns the embeddings of an analysis ordered by chunk index
func (s *EmbeddingStorage) GetEmbeddings(ctx context.Context, analysisID string) ([]*models.NarrativeEmbedding, error) {
	var embeddings []models.NarrativeEmbedding
	err := s.db.Store().Find(&embeddings,
		badgerhold.Where("AnalysisID").Eq(analysisID).Index("AnalysisID").SortBy("ChunkIndex"))
	if err != nil {
		return nil, mapError("get_embeddings", err, "failed to load embeddings of %s", analysisID)
	}

	result := make([]*models.NarrativeEmbedding, len(embeddings))
	for i := range embeddings {
		result[i] = &embeddings[i]
	}
	return result, nil
}

func (s *EmbeddingStorage) CountEmbeddings(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.NarrativeEmbedding{}, nil)
	if err != nil {
		return 0, mapError("count_embeddings", err, "failed to count embeddings")
	}
	return int(count), nil
}

// SearchSimilar scans every stored vector. Badger has no vector index; the
// postgres backend uses pgvector for the same query.
func (s *EmbeddingStorage) SearchSimilar(ctx context.Context, query []float32, limit int) ([]*models.NarrativeEmbedding, error) {
	type scored struct {
		embedding *models.NarrativeEmbedding
		score     float64
	}

	var candidates []scored
	err := s.db.Store().ForEach(nil, func(e *models.NarrativeEmbedding) error {
		candidates = append(candidates, scored{embedding: e, score: models.CosineSimilarity(query, e.Vector)})
		return nil
	})
	if err != nil {
		return nil, mapError("search_similar", err, "failed to scan embeddings")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*models.NarrativeEmbedding, len(candidates))
	for i, c := range candidates {
		result[i] = c.embedding
	}
	return result, nil
}
