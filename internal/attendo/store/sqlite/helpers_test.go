package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the production
// PRAGMAs and schema. The connection is closed when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Shared cache keeps the named in-memory database alive for as long as
	// the pool holds its single connection.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := db.DSN(fmt.Sprintf("file:test_%s?mode=memory&cache=shared", name))

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}
	db.SingleConn(conn)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}
	if err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed at cleanup.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return w
}

// seedStation inserts a commissioned, enabled station.
func seedStation(t *testing.T, conn *sql.DB, stationID string) {
	t.Helper()

	nowMs := time.Now().UTC().UnixMilli()
	_, err := conn.ExecContext(context.Background(), `
INSERT INTO stations(station_id, enabled, commissioned_at_ms, created_at_ms, updated_at_ms)
VALUES (?, 1, ?, ?, ?);`, stationID, nowMs, nowMs, nowMs)
	if err != nil {
		t.Fatalf("seedStation %s: %v", stationID, err)
	}
}

func countRows(t *testing.T, conn *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := conn.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
