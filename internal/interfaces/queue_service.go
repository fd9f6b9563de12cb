package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/tenor/internal/models"
)

// QueueManager manages the persistent message queue
type QueueManager interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)
	Extend(ctx context.Context, messageID string, duration time.Duration) error
	Length(ctx context.Context) (int, error)
	Close() error
}

// TaskHandler processes one queue message
type TaskHandler func(ctx context.Context, msg *models.QueueMessage) error

// WorkerPool manages concurrent queue processing
type WorkerPool interface {
	RegisterHandler(messageType string, handler TaskHandler)
	Start()
	Stop()
}
