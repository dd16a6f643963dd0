package memory

import (
	"context"
	"sync"
	"time"
)

// ReplayGuard is a single-process store.ReplayGuard.
type ReplayGuard struct {
	mu     sync.Mutex
	now    func() time.Time
	claims map[string]time.Time // key -> expiry
}

func NewReplayGuard(now func() time.Time) *ReplayGuard {
	if now == nil {
		now = time.Now
	}
	return &ReplayGuard{now: now, claims: make(map[string]time.Time)}
}

func (g *ReplayGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.claims[key] = now.Add(ttl)

	// Opportunistic sweep so long-running dev servers don't grow forever.
	for k, exp := range g.claims {
		if !now.Before(exp) {
			delete(g.claims, k)
		}
	}
	return true, nil
}

func (g *ReplayGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, key)
	return nil
}
