// Package redis backs store.ReplayGuard with Redis so that several server
// instances share one view of which token windows were already used.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const DefaultPrefix = "attendo:claim"

type ReplayGuard struct {
	client goredis.UniversalClient
	prefix string
}

// NewReplayGuard wraps client. An empty prefix uses DefaultPrefix.
func NewReplayGuard(client goredis.UniversalClient, prefix string) *ReplayGuard {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &ReplayGuard{client: client, prefix: prefix}
}

// NewClient opens a single-node client for addr.
func NewClient(addr, password string) goredis.UniversalClient {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

// Claim sets the key only if it is absent. Redis expires it after ttl, so a
// zero or negative ttl is clamped to one millisecond.
func (g *ReplayGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	ok, err := g.client.SetNX(ctx, g.key(key), time.Now().UTC().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay claim %s: %w", key, err)
	}
	return ok, nil
}

func (g *ReplayGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.key(key)).Err(); err != nil {
		return fmt.Errorf("replay release %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity; used at startup.
func (g *ReplayGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func (g *ReplayGuard) key(k string) string {
	return g.prefix + ":" + k
}
