package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
)

const claudeDefaultMaxTokens = 1024

// ClaudeProvider calls the Anthropic Messages API
type ClaudeProvider struct {
	client anthropic.Client
	logger arbor.ILogger
}

// NewClaudeProvider creates a Claude provider. The key comes from config or ANTHROPIC_API_KEY.
func NewClaudeProvider(ctx context.Context, config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeProvider, error) {
	apiKey, err := common.ResolveAPIKey(ctx, "Claude API key", config.APIKey, "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}

	return &ClaudeProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		logger: logger,
	}, nil
}

// GenerateContent generates text using Claude. Only temperature is sent:
// current Claude models reject requests that set both temperature and top_p.
func (p *ClaudeProvider) GenerateContent(ctx context.Context, model string, req *interfaces.GenerationRequest) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = claudeDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(float64(req.Temperature)),
	}

	for _, m := range req.Messages {
		switch {
		case isSystemRole(m.Role):
			params.System = []anthropic.TextBlockParam{{Text: m.Content}}
		case isAssistantRole(m.Role):
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("claude response contained no text (stop reason %s)", resp.StopReason)
	}
	return text.String(), nil
}

// GetProviderType returns ProviderClaude
func (p *ClaudeProvider) GetProviderType() ProviderType {
	return ProviderClaude
}

// HealthCheck only confirms the client is configured; the Messages API has no free probe
func (p *ClaudeProvider) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (p *ClaudeProvider) Close() error {
	return nil
}
