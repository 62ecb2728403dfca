package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "kanflow:batch"

// Deduper remembers batch IDs so a repeated reconciliation is skipped.
type Deduper interface {
	// Add records the key and reports whether it was new.
	Add(ctx context.Context, boardID, batchID string) (bool, error)
	// Remove forgets a key so a failed batch can be retried.
	Remove(ctx context.Context, boardID, batchID string) error
}

// RedisDeduper stores batch IDs in Redis so every instance sharing a
// backend skips batches another instance already applied.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(boardID, batchID string) string {
	return fmt.Sprintf("%s:%s:%s", dedupeKeyPrefix, boardID, batchID)
}

func (r *RedisDeduper) Add(ctx context.Context, boardID, batchID string) (bool, error) {
	return r.client.SetNX(ctx, r.key(boardID, batchID), 1, r.ttl).Result()
}

func (r *RedisDeduper) Remove(ctx context.Context, boardID, batchID string) error {
	return r.client.Del(ctx, r.key(boardID, batchID)).Err()
}

// MemoryDeduper keeps batch IDs in process for the TTL.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper creates an in-process deduper.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryDeduper) Add(_ context.Context, boardID, batchID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.seen {
		if now.After(exp) {
			delete(m.seen, k)
		}
	}
	key := boardID + ":" + batchID
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = now.Add(m.ttl)
	return true, nil
}

func (m *MemoryDeduper) Remove(_ context.Context, boardID, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, boardID+":"+batchID)
	return nil
}
