// Package idempotency rejects replayed event keys before any work is done.
//
// A guard is a fast front for the store's unique event key, not a
// replacement for it: a claim that cannot be checked is allowed through and
// the store still refuses the duplicate commit.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard claims event keys.
type Guard interface {
	// Claim returns false when key was claimed before.
	Claim(ctx context.Context, key string) (bool, error)
	// Release gives back a key whose event did not commit.
	Release(ctx context.Context, key string) error
}

// DefaultTTL is how long a claimed key is remembered.
const DefaultTTL = 72 * time.Hour

// RedisGuard claims keys with SET NX so several processes share them.
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisGuard connects to the redis server at addr.
func NewRedisGuard(addr string, ttl time.Duration) *RedisGuard {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return NewRedisGuardWithClient(rdb, ttl)
}

func NewRedisGuardWithClient(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{client: client, prefix: "loanledger:event:", ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	return g.client.SetNX(ctx, g.prefix+key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.prefix+key).Err()
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}

// MemoryGuard keeps claims in process.
type MemoryGuard struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{keys: make(map[string]struct{})}
}

func (g *MemoryGuard) Claim(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.keys[key]; ok {
		return false, nil
	}
	g.keys[key] = struct{}{}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

// Nop accepts every claim.
type Nop struct{}

func (Nop) Claim(context.Context, string) (bool, error) { return true, nil }
func (Nop) Release(context.Context, string) error       { return nil }
