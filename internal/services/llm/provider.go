package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
)

// ProviderType represents the generation provider type
type ProviderType string

const (
	// ProviderOpenAI uses an OpenAI-compatible endpoint (LM Studio by default)
	ProviderOpenAI ProviderType = "openai"
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// Provider defines a single generation backend
type Provider interface {
	// GenerateContent runs one completion against model and returns the raw text
	GenerateContent(ctx context.Context, model string, req *interfaces.GenerationRequest) (string, error)
	GetProviderType() ProviderType
	HealthCheck(ctx context.Context) error
	Close() error
}

// ProviderFactory creates and manages generation providers
type ProviderFactory struct {
	config *common.Config
	logger arbor.ILogger
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(config *common.Config, logger arbor.ILogger) *ProviderFactory {
	return &ProviderFactory{
		config: config,
		logger: logger,
	}
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-haiku-4-5" or "claude/claude-haiku-4-5" -> Claude
// - "gemini-2.5-flash" or "gemini/gemini-2.5-flash" -> Gemini
// - "openai/qwen/qwen3-4b-2507" -> OpenAI-compatible
// - anything else, including "" -> the configured default provider
func (f *ProviderFactory) DetectProvider(model string) ProviderType {
	if model == "" {
		return f.defaultProvider()
	}

	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") || strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") || strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}
	if strings.HasPrefix(model, "openai/") || strings.HasPrefix(model, "lmstudio/") {
		return ProviderOpenAI
	}

	return f.defaultProvider()
}

// NormalizeModel removes the provider prefix from a model name if present
func (f *ProviderFactory) NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/", "openai/", "lmstudio/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// GetDefaultModel returns the configured model for a provider
func (f *ProviderFactory) GetDefaultModel(provider ProviderType) string {
	switch provider {
	case ProviderClaude:
		return f.config.Claude.Model
	case ProviderGemini:
		return f.config.Gemini.Model
	default:
		return f.config.OpenAI.Model
	}
}

// CreateProvider builds the backend for a provider type
func (f *ProviderFactory) CreateProvider(ctx context.Context, provider ProviderType) (Provider, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(ctx, &f.config.OpenAI, f.logger)
	case ProviderGemini:
		return NewGeminiProvider(ctx, &f.config.Gemini, f.logger)
	case ProviderClaude:
		return NewClaudeProvider(ctx, &f.config.Claude, f.logger)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func (f *ProviderFactory) defaultProvider() ProviderType {
	if f.config.LLM.DefaultProvider == "" {
		return ProviderOpenAI
	}
	return ProviderType(f.config.LLM.DefaultProvider)
}

func (f *ProviderFactory) rateLimit(provider ProviderType) string {
	switch provider {
	case ProviderClaude:
		return f.config.Claude.RateLimit
	case ProviderGemini:
		return f.config.Gemini.RateLimit
	default:
		return f.config.OpenAI.RateLimit
	}
}

// newLimiter converts a minimum call interval into a limiter. Zero or
// empty disables limiting.
func newLimiter(interval string) *rate.Limiter {
	d := common.ParseDuration(interval, 0)
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// Service implements interfaces.GenerationService over the configured
// providers. Providers other than the default are created on first use.
type Service struct {
	factory   *ProviderFactory
	logger    arbor.ILogger
	timeout   time.Duration
	retry     *RetryConfig
	mu        sync.Mutex
	providers map[ProviderType]Provider
	limiters  map[ProviderType]*rate.Limiter
}

// Compile-time assertion
var _ interfaces.GenerationService = (*Service)(nil)

// NewService creates the generation service and its default provider
func NewService(ctx context.Context, config *common.Config, logger arbor.ILogger) (*Service, error) {
	s := newService(NewProviderFactory(config, logger), logger)

	def := s.factory.defaultProvider()
	if _, err := s.provider(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", def, err)
	}

	logger.Info().
		Str("provider", string(def)).
		Str("model", s.DefaultModel()).
		Msg("Generation service initialized")
	return s, nil
}

func newService(factory *ProviderFactory, logger arbor.ILogger) *Service {
	return &Service{
		factory:   factory,
		logger:    logger,
		timeout:   common.ParseDuration(factory.config.LLM.Timeout, 5*time.Minute),
		retry:     NewDefaultRetryConfig(),
		providers: make(map[ProviderType]Provider),
		limiters:  make(map[ProviderType]*rate.Limiter),
	}
}

func (s *Service) provider(ctx context.Context, pt ProviderType) (Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.providers[pt]; ok {
		return p, nil
	}
	p, err := s.factory.CreateProvider(ctx, pt)
	if err != nil {
		return nil, err
	}
	s.providers[pt] = p
	s.limiters[pt] = newLimiter(s.factory.rateLimit(pt))
	return p, nil
}

// Generate sends a non-streaming request to the provider the model resolves to
func (s *Service) Generate(ctx context.Context, req *interfaces.GenerationRequest) (*interfaces.GenerationResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, common.ValidationError("llm.Generate", "request must contain at least one message")
	}
	if req.Stream {
		return nil, common.ValidationError("llm.Generate", "streaming generation is not supported")
	}

	pt := s.factory.DetectProvider(req.Model)
	model := s.factory.NormalizeModel(req.Model)
	if model == "" {
		model = s.factory.GetDefaultModel(pt)
	}

	p, err := s.provider(ctx, pt)
	if err != nil {
		return nil, common.ExternalServiceError("llm.Generate", err, "%s provider unavailable", pt)
	}

	s.mu.Lock()
	limiter := s.limiters[pt]
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := withRetry(ctx, s.retry, s.logger, string(pt), func() (string, error) {
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}
		return p.GenerateContent(ctx, model, req)
	})
	duration := time.Since(start)
	if err != nil {
		return nil, common.ModelInferenceError("llm.Generate", err, "%s generation failed (model %s)", pt, model)
	}

	s.logger.Debug().
		Str("provider", string(pt)).
		Str("model", model).
		Dur("duration", duration).
		Int("response_length", len(text)).
		Msg("Generation completed")

	return &interfaces.GenerationResponse{
		Text:     text,
		Model:    model,
		Duration: duration,
	}, nil
}

// HealthCheck checks the default provider
func (s *Service) HealthCheck(ctx context.Context) error {
	p, err := s.provider(ctx, s.factory.defaultProvider())
	if err != nil {
		return err
	}
	return p.HealthCheck(ctx)
}

// Provider returns the default provider name
func (s *Service) Provider() string {
	return string(s.factory.defaultProvider())
}

// DefaultModel returns the default provider's model
func (s *Service) DefaultModel() string {
	return s.factory.GetDefaultModel(s.factory.defaultProvider())
}

// Close releases every created provider
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for pt, p := range s.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s provider: %w", pt, err)
		}
	}
	s.providers = make(map[ProviderType]Provider)
	return firstErr
}

func isSystemRole(role string) bool {
	return strings.EqualFold(role, "system")
}

func isAssistantRole(role string) bool {
	return strings.EqualFold(role, "assistant") || strings.EqualFold(role, "model")
}
