package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store"
	dbpkg "github.com/BrandonDHaskell/Attendo/server/internal/db"
)

type AttendanceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAttendanceStore(db *sql.DB, writer *dbpkg.Worker) *AttendanceStore {
	return &AttendanceStore{db: db, writer: writer}
}

// RecordAttendance inserts rec, returning store.ErrDuplicateAttendance if
// the student already has a row for this token window.
func (s *AttendanceStore) RecordAttendance(ctx context.Context, rec store.AttendanceRecord) error {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	receivedMs := rec.ReceivedAt.UTC().UnixMilli()

	var submittedMs any
	if rec.SubmittedAt != nil {
		submittedMs = rec.SubmittedAt.UTC().UnixMilli()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureStation(ctx, tx, rec.StationID, receivedMs); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
INSERT INTO attendance_records(
  record_id, class_id, token_issued_at_ms, valid_minutes,
  student_id, station_id, camera_id, submitted_at_ms, received_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(class_id, token_issued_at_ms, student_id) DO NOTHING;
`,
			rec.ID, rec.ClassID, rec.IssuedAt, rec.ValidMinutes,
			rec.StudentID, rec.StationID, nullString(rec.CameraID), submittedMs, receivedMs,
		)
		if err != nil {
			return fmt.Errorf("RecordAttendance insert: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("RecordAttendance rows affected: %w", err)
		}
		if n == 0 {
			return store.ErrDuplicateAttendance
		}
		return nil
	})
}
