package embeddings

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
)

// GeminiProvider generates embeddings with the Gemini embedding models
type GeminiProvider struct {
	client *genai.Client
	model  string
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.EmbeddingProvider = (*GeminiProvider)(nil)

// NewGeminiProvider creates the embedding provider. The key is shared with the
// Gemini generation provider: config gemini.api_key or GEMINI_API_KEY.
func NewGeminiProvider(ctx context.Context, config *common.Config, logger arbor.ILogger) (*GeminiProvider, error) {
	apiKey, err := common.ResolveAPIKey(ctx, "Gemini API key", config.Gemini.APIKey, "GEMINI_API_KEY")
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	model := config.Embeddings.Model
	if model == "" {
		model = "gemini-embedding-001"
	}

	return &GeminiProvider{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// EmbedBatch embeds all texts in one request
func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string, dimension int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	outputDim := int32(dimension)
	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
		TaskType:             "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), got)
	}

	vectors := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

// ModelName returns the embedding model
func (p *GeminiProvider) ModelName() string {
	return p.model
}

// HealthCheck embeds a short probe
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("genai client is not initialized")
	}
	if _, err := p.EmbedBatch(ctx, []string{"health check probe"}, 128); err != nil {
		return fmt.Errorf("embedding probe failed: %w", err)
	}
	return nil
}
