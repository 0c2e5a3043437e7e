package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_FIFO(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Push(&Task{URL: "https://example.com/1"}))
	require.NoError(t, q.Push(&Task{URL: "https://example.com/2"}))
	assert.Equal(t, 2, q.Size())

	first, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/1", first.URL)
	assert.False(t, first.CreatedAt.IsZero())

	second, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/2", second.URL)
}

func TestInMemoryQueue_EmptyWhenNothingInFlight(t *testing.T) {
	q := NewInMemoryQueue()

	_, err := q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestInMemoryQueue_WaitsForInFlightTasks(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Push(&Task{URL: "https://example.com/1"}))
	_, err := q.Pop(ctx)
	require.NoError(t, err)

	result := make(chan *Task, 1)
	go func() {
		task, err := q.Pop(ctx)
		if err == nil {
			result <- task
		}
		close(result)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(&Task{URL: "https://example.com/2", Depth: 1}))
	q.Done()

	select {
	case task := <-result:
		require.NotNil(t, task)
		assert.Equal(t, 1, task.Depth)
	case <-time.After(time.Second):
		t.Fatal("blocked Pop was not woken by Push")
	}

	q.Done()
	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestInMemoryQueue_ContextCancel(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(&Task{URL: "https://example.com/1"}))
	_, err := q.Pop(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(&Task{URL: "https://example.com"}), ErrQueueClosed)

	_, err := q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}
