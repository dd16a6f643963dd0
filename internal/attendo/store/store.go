package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

type HeartbeatRecord struct {
	ReceivedAt time.Time
	Request    types.HeartbeatRequest
}

type HeartbeatStore interface {
	UpsertHeartbeat(ctx context.Context, stationID string, rec HeartbeatRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
