package sentiment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/services/cache"
)

// Service scores narrative text through the generation service under a
// strict JSON contract
type Service struct {
	generator     interfaces.GenerationService
	cache         *cache.Cache[*models.SentimentResult]
	maxTextLength int
	slowThreshold time.Duration
	temperature   float32
	topP          float32
	maxTokens     int
	logger        arbor.ILogger
}

// Compile-time assertion
var _ interfaces.SentimentAnalyzer = (*Service)(nil)

// NewService creates the sentiment engine. resultCache may be nil.
func NewService(
	generator interfaces.GenerationService,
	resultCache *cache.Cache[*models.SentimentResult],
	config *common.Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		generator:     generator,
		cache:         resultCache,
		maxTextLength: config.Sentiment.MaxTextLength,
		slowThreshold: common.ParseDuration(config.Sentiment.SlowThreshold, 60*time.Second),
		temperature:   config.LLM.Temperature,
		topP:          config.LLM.TopP,
		maxTokens:     config.LLM.MaxTokens,
		logger:        logger,
	}
}

// Analyze returns validated sentiment scores for text. Any generation failure
// or contract violation is returned as a ModelInferenceError.
func (s *Service) Analyze(ctx context.Context, text, sectionHint string) (*models.SentimentResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, common.ValidationError("sentiment.Analyze", "text is empty")
	}

	originalLength := len(text)
	text, truncated := truncate(text, s.maxTextLength)
	if truncated {
		s.logger.Warn().
			Int("original_length", originalLength).
			Int("max_length", s.maxTextLength).
			Msg("Text truncated for sentiment analysis")
	}

	prompt := buildPrompt(text, sectionHint)
	key := cache.Key(s.generator.DefaultModel(), prompt)
	if cached, ok := s.cache.Get(key); ok {
		s.logger.Debug().Str("section", sectionHint).Msg("Sentiment cache hit")
		return cached.Clone(), nil
	}

	start := time.Now()
	resp, err := s.generator.Generate(ctx, &interfaces.GenerationRequest{
		Messages:    []interfaces.Message{{Role: "user", Content: prompt}},
		Temperature: s.temperature,
		TopP:        s.topP,
		MaxTokens:   s.maxTokens,
		Stream:      false,
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Sentiment generation failed")
		if errors.Is(err, common.ErrModelInference) {
			return nil, err
		}
		return nil, common.ModelInferenceError("sentiment.Analyze", err, "generation failed")
	}

	result, err := parseResponse(resp.Text)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error().
			Err(err).
			Dur("duration", duration).
			Int("response_length", len(resp.Text)).
			Msg("Sentiment response rejected")
		return nil, common.ModelInferenceError("sentiment.Analyze", err, "invalid model response")
	}

	result.Model = resp.Model
	result.Duration = duration

	if duration > s.slowThreshold {
		s.logger.Warn().
			Dur("duration", duration).
			Dur("threshold", s.slowThreshold).
			Msg("Sentiment analysis exceeded performance target")
	}

	s.logger.Info().
		Str("model", result.Model).
		Dur("duration", duration).
		Float64("optimism", result.OptimismScore).
		Float64("risk", result.RiskScore).
		Float64("uncertainty", result.UncertaintyScore).
		Msg("Sentiment analysis completed")

	s.cache.Add(key, result.Clone())
	return result, nil
}

// HealthCheck checks the underlying generation service
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.generator.HealthCheck(ctx)
}
