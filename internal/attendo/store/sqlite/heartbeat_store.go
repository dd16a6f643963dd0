package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store"
	dbpkg "github.com/BrandonDHaskell/Attendo/server/internal/db"
)

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

// UpsertHeartbeat appends a heartbeat row and refreshes the station's
// last-known snapshot columns.
func (s *HeartbeatStore) UpsertHeartbeat(ctx context.Context, stationID string, rec store.HeartbeatRecord) error {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return nil
	}

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := rec.ReceivedAt.UTC().UnixMilli()

	req := rec.Request
	ip := strings.TrimSpace(req.IP)
	status := nullString(req.Status)
	camera := nullString(req.ActiveCamera)

	var uptimeMs any
	if req.UptimeSeconds != 0 {
		uptimeMs = int64(req.UptimeSeconds) * 1000
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureStation(ctx, tx, stationID, recvMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO station_heartbeats(
  station_id, received_at_ms, status, active_camera, success_count, uptime_ms, ip
) VALUES (?, ?, ?, ?, ?, ?, ?);
`, stationID, recvMs, status, camera, req.SuccessCount, uptimeMs, ip); err != nil {
			return fmt.Errorf("UpsertHeartbeat insert heartbeat: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE stations
SET last_seen_at_ms = ?,
    last_ip = ?,
    last_status = ?,
    last_success_count = ?,
    updated_at_ms = ?
WHERE station_id = ?;
`, recvMs, ip, status, req.SuccessCount, recvMs, stationID); err != nil {
			return fmt.Errorf("UpsertHeartbeat update station snapshot: %w", err)
		}

		return nil
	})
}

// PruneOlderThan deletes heartbeat rows received before cutoff and returns
// how many were removed. The station snapshot columns are left alone.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM station_heartbeats
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

func nullString(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
