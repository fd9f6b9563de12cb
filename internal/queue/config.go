package queue

import (
	"time"

	"github.com/ternarybob/tenor/internal/common"
)

// Config holds configuration for the queue manager and worker pool
type Config struct {
	// PollInterval is how often workers poll for messages
	PollInterval time.Duration

	// Concurrency is the number of concurrent workers
	Concurrency int

	// VisibilityTimeout is the message visibility timeout for redelivery.
	// Must exceed TaskTimeout so a running task is never redelivered.
	VisibilityTimeout time.Duration

	// MaxReceive is the maximum times a message can be received before it is dropped
	MaxReceive int

	// QueueName is the key prefix of the queue in Badger
	QueueName string

	// TaskTimeout is the hard wall-clock limit of one handler invocation
	TaskTimeout time.Duration
}

// NewDefaultConfig creates a queue configuration with sensible defaults
func NewDefaultConfig() Config {
	return Config{
		PollInterval:      1 * time.Second,
		Concurrency:       2,
		VisibilityTimeout: 35 * time.Minute,
		MaxReceive:        3,
		QueueName:         "tenor_jobs",
		TaskTimeout:       30 * time.Minute,
	}
}

// ConfigFrom converts the application queue settings, falling back to defaults
func ConfigFrom(cfg common.QueueConfig) Config {
	def := NewDefaultConfig()
	out := Config{
		PollInterval:      common.ParseDuration(cfg.PollInterval, def.PollInterval),
		Concurrency:       cfg.Concurrency,
		VisibilityTimeout: common.ParseDuration(cfg.VisibilityTimeout, def.VisibilityTimeout),
		MaxReceive:        cfg.MaxReceive,
		QueueName:         cfg.QueueName,
		TaskTimeout:       common.ParseDuration(cfg.TaskTimeout, def.TaskTimeout),
	}
	if out.Concurrency <= 0 {
		out.Concurrency = def.Concurrency
	}
	if out.MaxReceive <= 0 {
		out.MaxReceive = def.MaxReceive
	}
	if out.QueueName == "" {
		out.QueueName = def.QueueName
	}
	if out.VisibilityTimeout <= out.TaskTimeout {
		out.VisibilityTimeout = out.TaskTimeout + 5*time.Minute
	}
	return out
}
