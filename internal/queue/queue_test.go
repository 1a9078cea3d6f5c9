package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Task{DocumentID: "doc1"}))
	require.NoError(t, q.Enqueue(ctx, Task{DocumentID: "doc2"}))
	require.NoError(t, q.Enqueue(ctx, Task{DocumentID: "doc3"}))

	assert.Equal(t, 3, q.Depth())

	for _, want := range []string{"doc1", "doc2", "doc3"} {
		task, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, task)
		assert.Equal(t, want, task.DocumentID)
	}
}

func TestMemoryQueue_CoalescesDuplicates(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Task{DocumentID: "doc1"}))
	// 同文档重复入队被合并
	require.NoError(t, q.Enqueue(ctx, Task{DocumentID: "doc1"}))
	assert.Equal(t, 1, q.Depth())

	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)

	// 出队后可以再次入队
	require.NoError(t, q.Enqueue(ctx, Task{DocumentID: "doc1", Attempt: 1}))
	task, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, 1, task.Attempt)
}

func TestMemoryQueue_DequeueTimeout(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	start := time.Now()
	task, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryQueue_DequeueCancellation(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := q.Dequeue(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueue_EnqueueAfterClose(t *testing.T) {
	q := NewMemoryQueue(10)
	require.NoError(t, q.Close())

	err := q.Enqueue(context.Background(), Task{DocumentID: "doc1"})
	assert.Error(t, err)
}

func TestMemoryQueue_NackRedelivers(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Task{DocumentID: "doc1", Attempt: 2}))
	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)

	// 放弃本次处理，任务原样回到队列，尝试次数不变
	require.NoError(t, q.Nack(ctx, *task, nil))
	redelivered, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, "doc1", redelivered.DocumentID)
	assert.Equal(t, 2, redelivered.Attempt)
}

func TestMemoryQueue_AckIsTerminal(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Task{DocumentID: "doc1"}))
	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, q.Ack(ctx, *task))
	assert.Equal(t, 0, q.Depth())

	// 确认后队列为空，不再投递
	again, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestMemoryQueue_EnqueueSetsTimestamp(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Task{DocumentID: "doc1"}))
	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.False(t, task.EnqueuedAt.IsZero())
}
