package store

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateAttendance is returned when a student already has a record
// for the same token window.
var ErrDuplicateAttendance = errors.New("attendance already recorded for this token")

// AttendanceRecord is one accepted attendance mark. The triple
// (ClassID, IssuedAt, StudentID) is unique: a token window marks a student
// at most once.
type AttendanceRecord struct {
	ID           string
	ClassID      string
	IssuedAt     int64 // token issued_at, epoch ms
	ValidMinutes int64
	StudentID    string
	StationID    string
	CameraID     string
	SubmittedAt  *time.Time // station-reported timestamp
	ReceivedAt   time.Time
}

type AttendanceStore interface {
	RecordAttendance(ctx context.Context, rec AttendanceRecord) error
}

// ReplayGuard claims a key for ttl. Claim reports false if the key is
// already held, which lets several server instances agree that a token
// window was used once.
type ReplayGuard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
