package worker

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DocLocker 文档级互斥锁
// 同一 document_id 同时只允许一个执行持有 processing，
// 防止重试与用户触发的重嵌入竞争时产生重复分块。
type DocLocker interface {
	TryLock(ctx context.Context, documentID string) (bool, error)
	Unlock(ctx context.Context, documentID string) error
}

// LocalLocker 进程内锁，单实例部署时使用
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) TryLock(ctx context.Context, documentID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[documentID] {
		return false, nil
	}
	l.held[documentID] = true
	return true, nil
}

func (l *LocalLocker) Unlock(ctx context.Context, documentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, documentID)
	return nil
}

// RedisLocker 基于 SETNX 的跨实例文档锁
// TTL 防止崩溃的持有者永久占锁
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) lockKey(documentID string) string {
	return "docchat:embed_lock:" + documentID
}

func (l *RedisLocker) TryLock(ctx context.Context, documentID string) (bool, error) {
	return l.client.SetNX(ctx, l.lockKey(documentID), "1", l.ttl).Result()
}

func (l *RedisLocker) Unlock(ctx context.Context, documentID string) error {
	return l.client.Del(ctx, l.lockKey(documentID)).Err()
}
