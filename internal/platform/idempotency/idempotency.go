// Package idempotency claims request keys so a checkout session produces at
// most one order bundle.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "checkout:session:"
	keyTTL    = 24 * time.Hour
	pending   = "pending"
)

// Claimer is implemented by Redis and Memory.
type Claimer interface {
	// Claim reports true when key was unclaimed and is now held by the caller.
	Claim(ctx context.Context, key string) (bool, error)
	// Complete stores the outcome of a claimed key for later lookups.
	Complete(ctx context.Context, key, result string) error
	// Lookup returns the stored outcome, or "" while the claim is pending or
	// missing.
	Lookup(ctx context.Context, key string) (string, error)
	// Release drops a claim so the key can be retried.
	Release(ctx context.Context, key string) error
}

type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, keyPrefix+key, pending, keyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Redis) Complete(ctx context.Context, key, result string) error {
	return r.client.Set(ctx, keyPrefix+key, result, keyTTL).Err()
}

func (r *Redis) Lookup(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil || v == pending {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *Redis) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, keyPrefix+key).Err()
}

// Memory is a process-local Claimer used when no Redis is configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), ttl: keyTTL, now: time.Now}
}

func (m *Memory) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if ok && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, ok
}

func (m *Memory) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: pending, expires: m.now().Add(m.ttl)}
	return true, nil
}

func (m *Memory) Complete(_ context.Context, key, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: result, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Lookup(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || e.value == pending {
		return "", nil
	}
	return e.value, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
