package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// WorkerPool manages a pool of workers that process queue messages
type WorkerPool struct {
	queue    interfaces.QueueManager
	config   Config
	handlers map[string]interfaces.TaskHandler
	logger   arbor.ILogger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue interfaces.QueueManager, config Config, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = NewDefaultConfig().PollInterval
	}

	return &WorkerPool{
		queue:    queue,
		config:   config,
		handlers: make(map[string]interfaces.TaskHandler),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler registers a message type handler. Call before Start.
func (wp *WorkerPool) RegisterHandler(messageType string, handler interfaces.TaskHandler) {
	wp.handlers[messageType] = handler
	wp.logger.Debug().
		Str("type", messageType).
		Msg("Task handler registered")
}

// Start starts the worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info().
		Int("concurrency", wp.config.Concurrency).
		Dur("task_timeout", wp.config.TaskTimeout).
		Msg("Starting worker pool")

	for i := 0; i < wp.config.Concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels running workers and waits for them to exit
func (wp *WorkerPool) Stop() {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()
	defer common.RecoverPanic(wp.logger, fmt.Sprintf("queue-worker-%d", workerID))

	// Spread workers across the poll interval
	staggerDelay := (wp.config.PollInterval / time.Duration(wp.config.Concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-time.After(staggerDelay):
		case <-wp.ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			return
		case <-ticker.C:
			if err := wp.ProcessNext(wp.ctx); err != nil && !errors.Is(err, models.ErrNoMessage) {
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Msg("Error processing message")
			}
		}
	}
}

// ProcessNext receives and handles a single message. It returns
// models.ErrNoMessage when the queue is empty.
func (wp *WorkerPool) ProcessNext(ctx context.Context) error {
	msg, deleteFn, err := wp.queue.Receive(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNoMessage) {
			return err
		}
		return fmt.Errorf("failed to receive message: %w", err)
	}

	handler, exists := wp.handlers[msg.Type]
	if !exists {
		wp.logger.Error().
			Str("type", msg.Type).
			Str("message_id", msg.ID).
			Msg("No handler registered for message type")
		if delErr := deleteFn(); delErr != nil {
			wp.logger.Warn().Err(delErr).Msg("Failed to delete unknown message type")
		}
		return fmt.Errorf("no handler for message type: %s", msg.Type)
	}

	taskCtx := ctx
	if wp.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, wp.config.TaskTimeout)
		defer cancel()
	}

	startTime := time.Now()
	handlerErr := wp.runHandler(taskCtx, handler, msg)
	duration := time.Since(startTime)

	// Messages are removed after one attempt: handlers record their own
	// failure state, and a redelivered batch would find its members claimed.
	if err := deleteFn(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Msg("Failed to delete message after processing")
	}

	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("message_id", msg.ID).
			Str("job_id", msg.JobID).
			Str("type", msg.Type).
			Dur("duration", duration).
			Msg("Task handler failed")
		return handlerErr
	}

	wp.logger.Info().
		Str("message_id", msg.ID).
		Str("job_id", msg.JobID).
		Str("type", msg.Type).
		Dur("duration", duration).
		Msg("Task completed")
	return nil
}

func (wp *WorkerPool) runHandler(ctx context.Context, handler interfaces.TaskHandler, msg *models.QueueMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}
