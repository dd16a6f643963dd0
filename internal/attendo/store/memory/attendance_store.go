package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store"
)

// AttendanceStore is an in-memory attendance log for tests and dev.
type AttendanceStore struct {
	mu      sync.Mutex
	records []store.AttendanceRecord
	index   map[attendanceKey]struct{}
}

type attendanceKey struct {
	classID   string
	issuedAt  int64
	studentID string
}

func NewAttendanceStore() *AttendanceStore {
	return &AttendanceStore{index: make(map[attendanceKey]struct{})}
}

func (s *AttendanceStore) RecordAttendance(_ context.Context, rec store.AttendanceRecord) error {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	k := attendanceKey{rec.ClassID, rec.IssuedAt, rec.StudentID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.index[k]; dup {
		return store.ErrDuplicateAttendance
	}
	s.index[k] = struct{}{}
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of all recorded attendance. Test-only helper.
func (s *AttendanceStore) Records() []store.AttendanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AttendanceRecord, len(s.records))
	copy(out, s.records)
	return out
}
