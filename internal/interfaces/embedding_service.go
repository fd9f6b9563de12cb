package interfaces

import (
	"context"
)

// EmbeddingProvider generates raw vector embeddings
type EmbeddingProvider interface {
	// EmbedBatch returns one vector per input text, in input order, with the
	// requested dimension
	EmbedBatch(ctx context.Context, texts []string, dimension int) ([][]float32, error)

	ModelName() string

	HealthCheck(ctx context.Context) error
}
