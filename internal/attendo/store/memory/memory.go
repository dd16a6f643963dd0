package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store"
)

// Store keeps the latest heartbeat per station.
type Store struct {
	mu   sync.RWMutex
	data map[string]store.HeartbeatRecord
}

func New() *Store {
	return &Store{
		data: make(map[string]store.HeartbeatRecord),
	}
}

func (s *Store) UpsertHeartbeat(_ context.Context, stationID string, rec store.HeartbeatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	s.data[stationID] = rec
	return nil
}

func (s *Store) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, rec := range s.data {
		if rec.ReceivedAt.Before(cutoff) {
			delete(s.data, id)
			deleted++
		}
	}
	return deleted, nil
}

// Latest returns the last heartbeat from stationID. Test-only helper.
func (s *Store) Latest(stationID string) (store.HeartbeatRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[stationID]
	return rec, ok
}
