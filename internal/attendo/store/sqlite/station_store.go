package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Attendo/server/internal/db"
)

type StationStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewStationStore(db *sql.DB, writer *dbpkg.Worker) *StationStore {
	return &StationStore{db: db, writer: writer}
}

// IsKnown treats a station as known when it is commissioned, enabled and
// not revoked.
func (s *StationStore) IsKnown(ctx context.Context, stationID string) (bool, error) {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return false, nil
	}

	var enabled int
	var commissioned, revoked sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
SELECT enabled, commissioned_at_ms, revoked_at_ms
FROM stations
WHERE station_id = ?;
`, stationID).Scan(&enabled, &commissioned, &revoked)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsKnown query: %w", err)
	}

	return enabled == 1 && commissioned.Valid && !revoked.Valid, nil
}

// MarkSeen creates the station row if needed and bumps last_seen.
func (s *StationStore) MarkSeen(ctx context.Context, stationID string, _ bool, t time.Time) error {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := t.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureStation(ctx, tx, stationID, ms); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE stations
SET last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE station_id = ?;
`, ms, ms, stationID); err != nil {
			return fmt.Errorf("MarkSeen update station: %w", err)
		}
		return nil
	})
}
