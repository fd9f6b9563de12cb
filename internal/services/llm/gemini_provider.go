package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
)

// GeminiProvider calls the Gemini API
type GeminiProvider struct {
	client *genai.Client
	model  string
	logger arbor.ILogger
}

// NewGeminiProvider creates a Gemini provider. The key comes from config or GEMINI_API_KEY.
func NewGeminiProvider(ctx context.Context, config *common.GeminiConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	apiKey, err := common.ResolveAPIKey(ctx, "Gemini API key", config.APIKey, "GEMINI_API_KEY")
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  config.Model,
		logger: logger,
	}, nil
}

// GenerateContent generates text using Gemini
func (p *GeminiProvider) GenerateContent(ctx context.Context, model string, req *interfaces.GenerationRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
		TopP:        genai.Ptr(req.TopP),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch {
		case isSystemRole(m.Role):
			config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case isAssistantRole(m.Role):
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// GetProviderType returns ProviderGemini
func (p *GeminiProvider) GetProviderType() ProviderType {
	return ProviderGemini
}

// HealthCheck fetches the configured model's metadata
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.Models.Get(ctx, p.model, nil); err != nil {
		return fmt.Errorf("gemini model %s unavailable: %w", p.model, err)
	}
	return nil
}

// Close is a no-op; the genai client holds no resources
func (p *GeminiProvider) Close() error {
	return nil
}
