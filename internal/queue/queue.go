package queue

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/docchat/backend-go/internal/errors"
)

// Task 一次文档嵌入任务
// 队列中的任务是轻量指针，分块与向量数据不进队列
type Task struct {
	DocumentID string    `json:"document_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	// Receipt 由队列实现填充的在途凭据，Ack/Nack时用于定位消息，
	// 不参与序列化
	Receipt string `json:"-"`
}

// TaskQueue 嵌入任务队列
// FIFO跨文档排序即可，文档内部没有顺序要求。
// Dequeue 在超时内没有任务时返回 (nil, nil)，供调用方轮询。
// 出队的任务必须以 Ack 或 Nack 结束：Ack 表示任务已处理完毕
// （成功、作废或永久失败），Nack 表示放弃本次处理并要求原样重投。
// Kafka实现只在 Ack/Nack 时提交位点，崩溃时未确认的任务会被重新投递。
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context, wait time.Duration) (*Task, error)
	Ack(ctx context.Context, task Task) error
	// Nack 重投不增加尝试次数，适用于锁竞争等与文档本身无关的场景
	Nack(ctx context.Context, task Task, cause error) error
	// Depth 当前待处理任务数，无法统计时返回 -1
	Depth() int
	Close() error
}

// MemoryQueue 进程内任务队列
// 同一文档的重复入队会被合并，避免同一版本重复嵌入
type MemoryQueue struct {
	tasks   chan Task
	mu      sync.Mutex
	pending map[string]bool
	closed  bool
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{
		tasks:   make(chan Task, capacity),
		pending: make(map[string]bool),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "queue is closed")
	}
	if q.pending[task.DocumentID] {
		// 已有同文档任务在队列中，合并
		q.mu.Unlock()
		return nil
	}
	q.pending[task.DocumentID] = true
	q.mu.Unlock()

	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.pending, task.DocumentID)
		q.mu.Unlock()
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (*Task, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case task, ok := <-q.tasks:
		if !ok {
			return nil, apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "queue is closed")
		}
		q.mu.Lock()
		delete(q.pending, task.DocumentID)
		q.mu.Unlock()
		return &task, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack 内存队列出队即消费，确认是空操作
func (q *MemoryQueue) Ack(ctx context.Context, task Task) error {
	return nil
}

// Nack 原样重新入队，重复的待处理任务仍会被合并
func (q *MemoryQueue) Nack(ctx context.Context, task Task, cause error) error {
	task.Receipt = ""
	return q.Enqueue(ctx, task)
}

func (q *MemoryQueue) Depth() int {
	return len(q.tasks)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.tasks)
	return nil
}
