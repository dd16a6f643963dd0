package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	// KnownStations are commissioned and enabled on every dev start.
	KnownStations []string
}

// SeedDev commissions a starter station plus any configured ones so a dev
// scanner can submit without an admin step.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	return Commission(ctx, db, append([]string{"station-dev"}, opt.KnownStations...))
}

// Commission enables the given stations, creating rows as needed and
// clearing any revocation.
func Commission(ctx context.Context, db *sql.DB, stations []string) error {
	now := time.Now().UTC().UnixMilli()

	for _, id := range stations {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, `
INSERT INTO stations(
  station_id, display_name, location,
  enabled, commissioned_at_ms,
  created_at_ms, updated_at_ms
) VALUES (?, ?, NULL, 1, ?, ?, ?)
ON CONFLICT(station_id) DO UPDATE SET
  enabled = 1,
  commissioned_at_ms = COALESCE(stations.commissioned_at_ms, excluded.commissioned_at_ms),
  revoked_at_ms = NULL,
  updated_at_ms = excluded.updated_at_ms;
`, id, id, now, now, now); err != nil {
			return fmt.Errorf("commission station %s: %w", id, err)
		}
	}

	return nil
}
