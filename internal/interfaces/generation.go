package interfaces

import (
	"context"
	"time"
)

// Message represents a single message in a generation request
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// GenerationRequest is a single non-streaming completion request
type GenerationRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	TopP        float32
	MaxTokens   int
	Stream      bool
}

// GenerationResponse carries the raw model text
type GenerationResponse struct {
	Text     string
	Model    string
	Duration time.Duration
}

// GenerationService defines the contract for text-generation backends.
// Implementations may call a local OpenAI-compatible server (LM Studio),
// Gemini or Claude; the sentiment engine never depends on which.
type GenerationService interface {
	// Generate sends the request and returns the model output text.
	// Streaming requests are rejected.
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)

	// HealthCheck verifies the backend is reachable and configured
	HealthCheck(ctx context.Context) error

	// Provider returns the backend name (openai, gemini, claude)
	Provider() string

	// DefaultModel returns the model used when a request leaves Model empty
	DefaultModel() string

	Close() error
}
