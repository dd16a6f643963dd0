package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

type StationStore struct {
	mu    sync.RWMutex
	known map[string]struct{}
	seen  map[string]time.Time
}

func NewStationStore(knownStations []string) *StationStore {
	k := make(map[string]struct{}, len(knownStations))
	for _, id := range knownStations {
		id = strings.TrimSpace(id)
		if id != "" {
			k[id] = struct{}{}
		}
	}
	return &StationStore{
		known: k,
		seen:  make(map[string]time.Time),
	}
}

func (s *StationStore) IsKnown(_ context.Context, stationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[stationID]
	return ok, nil
}

func (s *StationStore) MarkSeen(_ context.Context, stationID string, _ bool, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[stationID] = t
	return nil
}

// LastSeen is a test-only helper.
func (s *StationStore) LastSeen(stationID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.seen[stationID]
	return t, ok
}
