package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "registrar/pkg/domain"
	audit "registrar/pkg/platform/audit"
	"registrar/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	requestID := id.NewRequestID()
	err := pub.Emit(context.Background(), audit.Event{
		RequestID: requestID,
		Action:    string(audit.EventRequestCreated),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), requestID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventRequestCreated), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	requestID := id.NewRequestID()
	err := pub.Emit(context.Background(), audit.Event{
		RequestID: requestID,
		Action:    string(audit.EventRequestSubmitted),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, err := pub.List(context.Background(), requestID)
		return err == nil && len(events) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	requestID := id.NewRequestID()
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			RequestID: requestID,
			Action:    string(audit.EventRegistryCommand),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByRequest(context.Background(), requestID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	// Hammer a tiny buffer; some emissions drop, none block or panic.
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), audit.Event{
				RequestID: id.NewRequestID(),
				Action:    string(audit.EventRegistryCommand),
			})
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestampAndCategory(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	requestID := id.NewRequestID()
	before := time.Now()
	err := pub.Emit(context.Background(), audit.Event{
		RequestID: requestID,
		Action:    string(audit.EventRegistryAuthFailed),
	})
	require.NoError(t, err)
	after := time.Now()

	events, err := pub.List(context.Background(), requestID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	requestID := id.NewRequestID()
	customTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), audit.Event{
		RequestID: requestID,
		Action:    string(audit.EventRequestApproved),
		Timestamp: customTime,
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), requestID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_MultipleEvents(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	requestID := id.NewRequestID()
	actions := []audit.AuditEvent{
		audit.EventRequestCreated,
		audit.EventRequestSubmitted,
		audit.EventRequestApproved,
	}
	for _, action := range actions {
		err := pub.Emit(context.Background(), audit.Event{
			RequestID: requestID,
			Action:    string(action),
		})
		require.NoError(t, err)
	}

	result, err := pub.List(context.Background(), requestID)
	require.NoError(t, err)
	require.Len(t, result, 3)
	for i, action := range actions {
		assert.Equal(t, string(action), result[i].Action)
	}
}

func TestPublisher_DifferentRequests(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	first := id.NewRequestID()
	second := id.NewRequestID()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		RequestID: first, Action: string(audit.EventRequestCreated),
	}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		RequestID: second, Action: string(audit.EventRequestWithdrawn),
	}))

	events, err := pub.List(context.Background(), first)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventRequestCreated), events[0].Action)
}
