package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/interfaces"
)

func TestService_PublishSyncDeliversToSubscribers(t *testing.T) {
	svc := NewService(arbor.NewNoOpLogger())
	var count int32

	for i := 0; i < 3; i++ {
		_, err := svc.Subscribe(interfaces.EventBatchProgress, func(ctx context.Context, e interfaces.Event) error {
			atomic.AddInt32(&count, 1)
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventBatchProgress}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&count))

	// Other event types do not reach these handlers
	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventDeltaAlert}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}

func TestService_Unsubscribe(t *testing.T) {
	svc := NewService(arbor.NewNoOpLogger())
	var first, second int32

	unsubFirst, err := svc.Subscribe(interfaces.EventReportCompleted, func(ctx context.Context, e interfaces.Event) error {
		atomic.AddInt32(&first, 1)
		return nil
	})
	require.NoError(t, err)
	_, err = svc.Subscribe(interfaces.EventReportCompleted, func(ctx context.Context, e interfaces.Event) error {
		atomic.AddInt32(&second, 1)
		return nil
	})
	require.NoError(t, err)

	unsubFirst()
	unsubFirst()

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventReportCompleted}))
	assert.Equal(t, int32(0), atomic.LoadInt32(&first))
	assert.Equal(t, int32(1), atomic.LoadInt32(&second))
}

func TestService_PublishSyncReportsHandlerFailures(t *testing.T) {
	svc := NewService(arbor.NewNoOpLogger())

	_, err := svc.Subscribe(interfaces.EventReportFailed, func(ctx context.Context, e interfaces.Event) error {
		return errors.New("boom")
	})
	require.NoError(t, err)
	_, err = svc.Subscribe(interfaces.EventReportFailed, func(ctx context.Context, e interfaces.Event) error {
		panic("handler bug")
	})
	require.NoError(t, err)

	err = svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventReportFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors")
}

func TestService_SubscribeRejectsNilHandler(t *testing.T) {
	svc := NewService(arbor.NewNoOpLogger())
	_, err := svc.Subscribe(interfaces.EventBatchCompleted, nil)
	assert.Error(t, err)
}
