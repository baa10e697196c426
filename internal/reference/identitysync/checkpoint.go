package identitysync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	id "refroute/pkg/domain"
)

const checkpointKeyPrefix = "refroute:idsync:"

// Checkpoints remembers the identity fingerprint each user was last synced at.
// Implementations must be safe for concurrent use.
type Checkpoints interface {
	Get(ctx context.Context, user id.UserID) (fingerprint string, ok bool, err error)
	Put(ctx context.Context, user id.UserID, fingerprint string) error
}

// MemoryCheckpoints keeps checkpoints in process.
type MemoryCheckpoints struct {
	mu   sync.RWMutex
	seen map[id.UserID]string
}

func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{seen: make(map[id.UserID]string)}
}

func (m *MemoryCheckpoints) Get(_ context.Context, user id.UserID) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fp, ok := m.seen[user]
	return fp, ok, nil
}

func (m *MemoryCheckpoints) Put(_ context.Context, user id.UserID, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[user] = fingerprint
	return nil
}

// RedisCheckpoints shares checkpoints between replicas.
type RedisCheckpoints struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCheckpoints stores checkpoints with ttl; zero keeps them forever.
func NewRedisCheckpoints(client *redis.Client, ttl time.Duration) *RedisCheckpoints {
	return &RedisCheckpoints{client: client, ttl: ttl}
}

func (r *RedisCheckpoints) Get(ctx context.Context, user id.UserID) (string, bool, error) {
	fp, err := r.client.Get(ctx, checkpointKeyPrefix+user.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return fp, true, nil
}

func (r *RedisCheckpoints) Put(ctx context.Context, user id.UserID, fingerprint string) error {
	return r.client.Set(ctx, checkpointKeyPrefix+user.String(), fingerprint, r.ttl).Err()
}
