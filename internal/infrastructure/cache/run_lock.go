package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock guards a named batch run so overlapping invocations (from
// this process or another instance) do not execute concurrently.
type RunLock interface {
	// TryAcquire attempts to take the lock. An empty token means
	// another run currently holds it. The lock expires after ttl as a
	// safety net against crashed holders.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (token string, err error)

	// Release frees the lock if token still owns it. A release with a
	// stale token, after the TTL expired and someone else acquired the
	// lock, leaves the current holder untouched.
	Release(ctx context.Context, name, token string) error
}

// releaseScript deletes the lock key only when the stored owner token
// matches, so a holder that outlived its TTL cannot free a lock that
// has since been re-acquired.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisRunLock implements RunLock on Redis SET NX. Suitable for
// distributed deployments where multiple instances run the scheduler.
type RedisRunLock struct {
	client    *redis.Client
	keyPrefix string
}

// RedisLockConfig holds Redis connection configuration
type RedisLockConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisRunLock creates a Redis-backed run lock
func NewRedisRunLock(cfg RedisLockConfig) (*RedisRunLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRunLock{
		client:    client,
		keyPrefix: "billing:runlock:",
	}, nil
}

// NewRedisRunLockWithClient creates a run lock with an existing Redis client.
// Useful for testing or when sharing a client across components.
func NewRedisRunLockWithClient(client *redis.Client, keyPrefix string) *RedisRunLock {
	if keyPrefix == "" {
		keyPrefix = "billing:runlock:"
	}
	return &RedisRunLock{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// TryAcquire implements RunLock
func (l *RedisRunLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.keyPrefix+name, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire run lock %q: %w", name, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// Release implements RunLock
func (l *RedisRunLock) Release(ctx context.Context, name, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.keyPrefix + name}, token).Err(); err != nil {
		return fmt.Errorf("failed to release run lock %q: %w", name, err)
	}
	return nil
}

// Close closes the underlying Redis client
func (l *RedisRunLock) Close() error {
	return l.client.Close()
}

type memoryLockEntry struct {
	token  string
	expiry time.Time
}

// MemoryRunLock implements RunLock in process memory. Sufficient for
// single-instance deployments where only the local scheduler can
// overlap with a manual trigger.
type MemoryRunLock struct {
	mu   sync.Mutex
	held map[string]memoryLockEntry
}

// NewMemoryRunLock creates an in-memory run lock
func NewMemoryRunLock() *MemoryRunLock {
	return &MemoryRunLock{
		held: make(map[string]memoryLockEntry),
	}
}

// TryAcquire implements RunLock
func (l *MemoryRunLock) TryAcquire(_ context.Context, name string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, ok := l.held[name]; ok && now.Before(entry.expiry) {
		return "", nil
	}
	token := uuid.NewString()
	l.held[name] = memoryLockEntry{token: token, expiry: now.Add(ttl)}
	return token, nil
}

// Release implements RunLock
func (l *MemoryRunLock) Release(_ context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.held[name]; ok && entry.token == token {
		delete(l.held, name)
	}
	return nil
}
