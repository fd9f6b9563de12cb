package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
)

// OpenAIProvider calls an OpenAI-compatible chat endpoint through eino.
// The default base URL targets a local LM Studio server.
type OpenAIProvider struct {
	chatModel model.ChatModel
	baseURL   string
	apiKey    string
	logger    arbor.ILogger
}

// NewOpenAIProvider creates an OpenAI-compatible provider
func NewOpenAIProvider(ctx context.Context, config *common.OpenAIConfig, logger arbor.ILogger) (*OpenAIProvider, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("openai base_url is required")
	}

	apiKey := config.APIKey
	if apiKey == "" {
		// Local servers accept any key; hosted endpoints need OPENAI_API_KEY
		apiKey, _ = common.ResolveAPIKey(ctx, "OpenAI API key", "", "OPENAI_API_KEY")
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: config.BaseURL,
		APIKey:  apiKey,
		Model:   config.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create openai chat model: %w", err)
	}

	logger.Debug().
		Str("base_url", config.BaseURL).
		Str("model", config.Model).
		Msg("OpenAI-compatible provider created")

	return &OpenAIProvider{
		chatModel: chatModel,
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		apiKey:    apiKey,
		logger:    logger,
	}, nil
}

// GenerateContent sends the messages and returns the assistant text
func (p *OpenAIProvider) GenerateContent(ctx context.Context, modelName string, req *interfaces.GenerationRequest) (string, error) {
	messages := make([]*schema.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := schema.User
		switch {
		case isSystemRole(m.Role):
			role = schema.System
		case isAssistantRole(m.Role):
			role = schema.Assistant
		}
		messages = append(messages, &schema.Message{Role: role, Content: m.Content})
	}

	opts := []model.Option{
		model.WithModel(modelName),
		model.WithTemperature(req.Temperature),
		model.WithTopP(req.TopP),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	resp, err := p.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("empty response from openai-compatible endpoint")
	}
	return resp.Content, nil
}

// GetProviderType returns ProviderOpenAI
func (p *OpenAIProvider) GetProviderType() ProviderType {
	return ProviderOpenAI
}

// HealthCheck lists models on the endpoint
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op
func (p *OpenAIProvider) Close() error {
	return nil
}
