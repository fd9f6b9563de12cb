package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestManager(t *testing.T, config Config) *BadgerManager {
	t.Helper()
	m, err := NewBadgerManager(openTestDB(t), config, arbor.NewNoOpLogger())
	require.NoError(t, err)
	return m
}

func TestBadgerManager_EnqueueReceiveDelete(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, NewDefaultConfig())

	require.NoError(t, m.Enqueue(ctx, models.QueueMessage{JobID: "bat_1", Type: models.MessageTypeBatchProcess}))
	n, err := m.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msg, deleteFn, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bat_1", msg.JobID)
	assert.NotEmpty(t, msg.ID)

	// Hidden while in flight
	_, _, err = m.Receive(ctx)
	assert.True(t, errors.Is(err, models.ErrNoMessage))

	require.NoError(t, deleteFn())
	n, err = m.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBadgerManager_RedeliversAfterVisibilityTimeout(t *testing.T) {
	ctx := context.Background()
	config := NewDefaultConfig()
	config.VisibilityTimeout = 20 * time.Millisecond
	config.MaxReceive = 2
	m := newTestManager(t, config)

	require.NoError(t, m.Enqueue(ctx, models.QueueMessage{JobID: "bat_1", Type: "t"}))

	first, _, err := m.Receive(ctx)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	second, _, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Max receives reached: the message is dropped
	time.Sleep(40 * time.Millisecond)
	_, _, err = m.Receive(ctx)
	assert.True(t, errors.Is(err, models.ErrNoMessage))
}

func TestBadgerManager_Extend(t *testing.T) {
	ctx := context.Background()
	config := NewDefaultConfig()
	config.VisibilityTimeout = 20 * time.Millisecond
	m := newTestManager(t, config)

	require.NoError(t, m.Enqueue(ctx, models.QueueMessage{JobID: "bat_1", Type: "t"}))
	msg, _, err := m.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Extend(ctx, msg.ID, time.Hour))
	time.Sleep(40 * time.Millisecond)
	_, _, err = m.Receive(ctx)
	assert.True(t, errors.Is(err, models.ErrNoMessage))
}

func TestWorkerPool_ProcessNext(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, NewDefaultConfig())
	pool := NewWorkerPool(m, NewDefaultConfig(), arbor.NewNoOpLogger())

	var handled []string
	pool.RegisterHandler(models.MessageTypeBatchProcess, func(ctx context.Context, msg *models.QueueMessage) error {
		handled = append(handled, msg.JobID)
		return nil
	})

	require.NoError(t, m.Enqueue(ctx, models.QueueMessage{JobID: "bat_1", Type: models.MessageTypeBatchProcess}))
	require.NoError(t, pool.ProcessNext(ctx))
	assert.Equal(t, []string{"bat_1"}, handled)

	assert.True(t, errors.Is(pool.ProcessNext(ctx), models.ErrNoMessage))
}

func TestWorkerPool_HandlerFailureRemovesMessage(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, NewDefaultConfig())
	pool := NewWorkerPool(m, NewDefaultConfig(), arbor.NewNoOpLogger())
	pool.RegisterHandler("t", func(ctx context.Context, msg *models.QueueMessage) error {
		panic("boom")
	})

	require.NoError(t, m.Enqueue(ctx, models.QueueMessage{JobID: "bat_1", Type: "t"}))
	err := pool.ProcessNext(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")

	n, err := m.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWorkerPool_TaskTimeout(t *testing.T) {
	ctx := context.Background()
	config := NewDefaultConfig()
	config.TaskTimeout = 10 * time.Millisecond
	m := newTestManager(t, config)
	pool := NewWorkerPool(m, config, arbor.NewNoOpLogger())

	var handler interfaces.TaskHandler = func(ctx context.Context, msg *models.QueueMessage) error {
		<-ctx.Done()
		return ctx.Err()
	}
	pool.RegisterHandler("slow", handler)

	require.NoError(t, m.Enqueue(ctx, models.QueueMessage{JobID: "bat_1", Type: "slow"}))
	err := pool.ProcessNext(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConfigFrom_VisibilityExceedsTaskTimeout(t *testing.T) {
	cfg := ConfigFrom(common.QueueConfig{VisibilityTimeout: "10m", TaskTimeout: "30m"})
	assert.Greater(t, cfg.VisibilityTimeout, cfg.TaskTimeout)
}
