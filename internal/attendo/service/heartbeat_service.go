package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

var (
	ErrInvalidStationID = errors.New("station_id is required")
)

type HeartbeatService struct {
	heartbeatStore store.HeartbeatStore
	registry       *StationRegistry
	logger         *zap.Logger
}

func NewHeartbeatService(hs store.HeartbeatStore, reg *StationRegistry, logger *zap.Logger) *HeartbeatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeartbeatService{heartbeatStore: hs, registry: reg, logger: logger}
}

// Record stores a station heartbeat. Unknown stations are stored too so an
// operator can see them before commissioning; the response reports Known.
func (s *HeartbeatService) Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	stationID := strings.TrimSpace(req.StationID)
	if stationID == "" {
		return types.HeartbeatResponse{}, ErrInvalidStationID
	}
	req.StationID = stationID

	known, err := s.registry.IsKnown(ctx, stationID)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	if err := s.registry.NoteSeen(ctx, stationID, known); err != nil {
		s.logger.Warn("note seen failed", zap.String("station_id", stationID), zap.Error(err))
	}

	now := time.Now().UTC()
	rec := store.HeartbeatRecord{
		ReceivedAt: now,
		Request:    req,
	}

	if err := s.heartbeatStore.UpsertHeartbeat(ctx, stationID, rec); err != nil {
		return types.HeartbeatResponse{}, err
	}

	s.logger.Debug("heartbeat",
		zap.String("station_id", stationID),
		zap.Bool("known", known),
		zap.String("status", req.Status),
		zap.Uint64("success_count", req.SuccessCount))

	return types.HeartbeatResponse{
		OK:         true,
		Known:      known,
		StationID:  stationID,
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}
