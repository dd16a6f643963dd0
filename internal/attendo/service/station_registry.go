package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store"
)

// StationRegistry answers whether a scanning station may submit, and keeps
// its last-seen time current.
type StationRegistry struct {
	store store.StationStore
}

func NewStationRegistry(st store.StationStore) *StationRegistry {
	return &StationRegistry{store: st}
}

func (r *StationRegistry) IsKnown(ctx context.Context, stationID string) (bool, error) {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return false, nil
	}
	return r.store.IsKnown(ctx, stationID)
}

func (r *StationRegistry) NoteSeen(ctx context.Context, stationID string, known bool) error {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return nil
	}
	return r.store.MarkSeen(ctx, stationID, known, time.Now().UTC())
}
