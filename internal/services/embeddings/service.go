package embeddings

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/services/cache"
)

// Service implements interfaces.EmbeddingGenerator over an EmbeddingProvider
type Service struct {
	provider  interfaces.EmbeddingProvider
	cache     *cache.Cache[[]float32]
	dimension int
	normalize bool
	batchSize int
	logger    arbor.ILogger

	mu     sync.Mutex
	loaded bool
}

// Compile-time assertion
var _ interfaces.EmbeddingGenerator = (*Service)(nil)

// NewService creates the embedding generator. vectorCache may be nil.
func NewService(provider interfaces.EmbeddingProvider, vectorCache *cache.Cache[[]float32], config *common.EmbeddingsConfig, logger arbor.ILogger) *Service {
	dimension := config.Dimension
	if dimension <= 0 {
		dimension = 384
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Service{
		provider:  provider,
		cache:     vectorCache,
		dimension: dimension,
		normalize: config.Normalize,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Load verifies the provider once. Later calls are no-ops after a success.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return nil
	}
	if s.provider == nil {
		return common.ExternalServiceError("embeddings.Load", nil, "no embedding provider configured")
	}
	if err := s.provider.HealthCheck(ctx); err != nil {
		return common.ExternalServiceError("embeddings.Load", err, "embedding model %s unavailable", s.provider.ModelName())
	}

	s.loaded = true
	s.logger.Info().
		Str("model", s.provider.ModelName()).
		Int("dimension", s.dimension).
		Msg("Embedding model loaded")
	return nil
}

// IsLoaded reports whether Load has succeeded
func (s *Service) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Dimension returns the vector length
func (s *Service) Dimension() int {
	return s.dimension
}

// Embed returns one vector per text, in input order. The model is loaded on first use.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, common.ValidationError("embeddings.Embed", "text %d is empty", i)
		}
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	vectors := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if v, ok := s.cache.Get(s.cacheKey(text)); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, i)
	}

	for offset := 0; offset < len(missing); offset += s.batchSize {
		end := offset + s.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		chunk := missing[offset:end]

		batch := make([]string, len(chunk))
		for j, idx := range chunk {
			batch[j] = texts[idx]
		}

		result, err := s.provider.EmbedBatch(ctx, batch, s.dimension)
		if err != nil {
			return nil, common.ExternalServiceError("embeddings.Embed", err, "embedding generation failed")
		}
		if len(result) != len(batch) {
			return nil, common.ExternalServiceError("embeddings.Embed", nil,
				"provider returned %d vectors for %d texts", len(result), len(batch))
		}

		for j, idx := range chunk {
			v := result[j]
			if len(v) != s.dimension {
				return nil, common.ExternalServiceError("embeddings.Embed", nil,
					"embedding dimension mismatch: expected %d, got %d", s.dimension, len(v))
			}
			if s.normalize {
				v = models.NormalizeL2(v)
			}
			vectors[idx] = v
			s.cache.Add(s.cacheKey(texts[idx]), v)
		}
	}

	s.logger.Debug().
		Int("texts", len(texts)).
		Int("cache_hits", len(texts)-len(missing)).
		Dur("duration", time.Since(start)).
		Msg("Embeddings generated")

	return vectors, nil
}

func (s *Service) cacheKey(text string) string {
	return cache.Key(s.provider.ModelName(), strconv.Itoa(s.dimension), strconv.FormatBool(s.normalize), text)
}

// Match is one ranked similarity result
type Match struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// FindMostSimilar ranks candidates by cosine similarity to query and returns
// at most topK matches, best first. Ties keep candidate order.
func FindMostSimilar(query []float32, candidates [][]float32, topK int) []Match {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}

	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		matches[i] = Match{Index: i, Score: models.CosineSimilarity(query, c)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches
}

// HealthCheck probes the provider without changing the loaded state
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.provider == nil {
		return fmt.Errorf("no embedding provider configured")
	}
	return s.provider.HealthCheck(ctx)
}
