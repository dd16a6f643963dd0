package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/token"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

var (
	ErrInvalidStudentID = errors.New("student_id is required")
	ErrInvalidToken     = errors.New("token fields are invalid")
	ErrUnknownStation   = errors.New("station is not registered")
)

// DefaultSubmitGrace bounds how far a station's submitted_at may differ from
// server receipt before the server ignores it and validates against its own
// clock.
const DefaultSubmitGrace = 30 * time.Second

type AttendancePolicy struct {
	AllowUnknownStations bool

	// AllowedClassIDs restricts which classes can be marked. Empty allows
	// any class.
	AllowedClassIDs map[string]struct{}

	SubmitGrace time.Duration
}

// Publisher receives accepted attendance for live subscribers.
type Publisher interface {
	Publish(ev types.AttendanceEvent)
}

type AttendanceOption func(*AttendanceService)

func WithClock(now func() time.Time) AttendanceOption {
	return func(s *AttendanceService) { s.now = now }
}

func WithPublisher(p Publisher) AttendanceOption {
	return func(s *AttendanceService) { s.publisher = p }
}

// WithReplayGuard adds a shared claim check in front of the store.
func WithReplayGuard(g store.ReplayGuard) AttendanceOption {
	return func(s *AttendanceService) { s.guard = g }
}

type AttendanceService struct {
	registry  *StationRegistry
	policy    AttendancePolicy
	records   store.AttendanceStore
	guard     store.ReplayGuard
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewAttendanceService(
	reg *StationRegistry,
	policy AttendancePolicy,
	rs store.AttendanceStore,
	logger *zap.Logger,
	opts ...AttendanceOption,
) *AttendanceService {
	if policy.SubmitGrace <= 0 {
		policy.SubmitGrace = DefaultSubmitGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AttendanceService{
		registry: reg,
		policy:   policy,
		records:  rs,
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit records one attendance mark. Validation failures return an error;
// a well-formed submission the server declines returns Accepted=false with
// a reason. Unknown stations return ErrUnknownStation alongside a response
// carrying ReasonUnknownStation.
func (s *AttendanceService) Submit(ctx context.Context, req types.AttendanceRequest) (types.AttendanceResponse, error) {
	now := s.now().UTC()

	stationID := strings.TrimSpace(req.StationID)
	studentID := strings.TrimSpace(req.StudentID)

	if stationID == "" {
		return types.AttendanceResponse{}, ErrInvalidStationID
	}
	if studentID == "" {
		return types.AttendanceResponse{}, ErrInvalidStudentID
	}

	resp := types.AttendanceResponse{
		OK:         true,
		ClassID:    strings.TrimSpace(req.ClassID),
		StudentID:  studentID,
		ServerTime: now.Format(time.RFC3339Nano),
	}

	tok, malformed, err := tokenFromRequest(req)
	if err != nil {
		return types.AttendanceResponse{}, err
	}

	known, err := s.registry.IsKnown(ctx, stationID)
	if err != nil {
		return types.AttendanceResponse{}, err
	}
	if err := s.registry.NoteSeen(ctx, stationID, known); err != nil {
		s.logger.Warn("note seen failed", zap.String("station_id", stationID), zap.Error(err))
	}
	if !known && !s.policy.AllowUnknownStations {
		resp.OK = false
		resp.Reason = types.ReasonUnknownStation
		return resp, ErrUnknownStation
	}

	if malformed != nil {
		return s.reject(resp, types.ReasonTokenMalformed, stationID, malformed), nil
	}
	resp.ClassID = tok.ClassID

	if len(s.policy.AllowedClassIDs) > 0 {
		if _, ok := s.policy.AllowedClassIDs[tok.ClassID]; !ok {
			return s.reject(resp, types.ReasonUnknownClass, stationID, nil), nil
		}
	}

	checkAt := s.validationTime(now, req.SubmittedAt)
	if err := token.Check(tok, checkAt.UnixMilli()); err != nil {
		reason := types.ReasonTokenExpired
		var expErr *token.ExpiryError
		if errors.As(err, &expErr) && expErr.Early {
			reason = types.ReasonTokenNotYetValid
		}
		return s.reject(resp, reason, stationID, err), nil
	}

	key := claimKey(tok, studentID)
	if s.guard != nil {
		ttl := tok.Remaining(checkAt.UnixMilli())
		if ttl < time.Second {
			ttl = time.Second
		}
		claimed, err := s.guard.Claim(ctx, key, ttl)
		switch {
		case err != nil:
			// The store's unique index still enforces once-per-window.
			s.logger.Warn("replay guard unavailable", zap.Error(err))
		case !claimed:
			return s.reject(resp, types.ReasonAlreadyMarked, stationID, nil), nil
		}
	}

	rec := store.AttendanceRecord{
		ID:           uuid.NewString(),
		ClassID:      tok.ClassID,
		IssuedAt:     tok.IssuedAt,
		ValidMinutes: tok.ValidMinutes,
		StudentID:    studentID,
		StationID:    stationID,
		CameraID:     strings.TrimSpace(req.CameraID),
		SubmittedAt:  parseOptionalTimestamp(req.SubmittedAt),
		ReceivedAt:   now,
	}
	if err := s.records.RecordAttendance(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateAttendance) {
			return s.reject(resp, types.ReasonAlreadyMarked, stationID, nil), nil
		}
		if s.guard != nil {
			if rerr := s.guard.Release(ctx, key); rerr != nil {
				s.logger.Warn("replay release failed", zap.Error(rerr))
			}
		}
		return types.AttendanceResponse{}, fmt.Errorf("record attendance: %w", err)
	}

	s.logger.Info("attendance marked",
		zap.String("record_id", rec.ID),
		zap.String("class_id", rec.ClassID),
		zap.String("student_id", studentID),
		zap.String("station_id", stationID))

	if s.publisher != nil {
		s.publisher.Publish(types.AttendanceEvent{
			RecordID:  rec.ID,
			ClassID:   rec.ClassID,
			StudentID: studentID,
			StationID: stationID,
			MarkedAt:  now.Format(time.RFC3339Nano),
		})
	}

	resp.Accepted = true
	resp.Reason = types.ReasonMarked
	resp.RecordID = rec.ID
	return resp, nil
}

func (s *AttendanceService) reject(resp types.AttendanceResponse, reason, stationID string, cause error) types.AttendanceResponse {
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("class_id", resp.ClassID),
		zap.String("student_id", resp.StudentID),
		zap.String("station_id", stationID),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	s.logger.Info("attendance rejected", fields...)

	resp.Accepted = false
	resp.Reason = reason
	return resp
}

// validationTime trusts the station's timestamp only when it is within
// SubmitGrace of receipt, so a scan made just before expiry still counts.
func (s *AttendanceService) validationTime(now time.Time, submittedAt string) time.Time {
	t := parseOptionalTimestamp(submittedAt)
	if t == nil {
		return now
	}
	d := now.Sub(*t)
	if d < 0 {
		d = -d
	}
	if d > s.policy.SubmitGrace {
		return now
	}
	return *t
}

// tokenFromRequest returns the token to validate. A raw token that fails to
// decode is reported through malformed rather than err so the caller can
// answer with a reason; invalid structured fields are a request error.
func tokenFromRequest(req types.AttendanceRequest) (tok token.AttendanceToken, malformed, err error) {
	if raw := strings.TrimSpace(req.Token); raw != "" {
		tok, derr := token.Decode(raw)
		if derr != nil {
			return token.AttendanceToken{}, derr, nil
		}
		return tok, nil, nil
	}

	tok = token.AttendanceToken{
		ClassID:      strings.TrimSpace(req.ClassID),
		IssuedAt:     req.IssuedAtMs,
		ValidMinutes: req.ValidMinutes,
	}
	if verr := tok.Validate(); verr != nil {
		return token.AttendanceToken{}, nil, fmt.Errorf("%w: %v", ErrInvalidToken, verr)
	}
	return tok, nil, nil
}

func claimKey(tok token.AttendanceToken, studentID string) string {
	return fmt.Sprintf("%s:%d:%s", tok.ClassID, tok.IssuedAt, studentID)
}

// parseOptionalTimestamp returns nil for an empty or unparseable value.
func parseOptionalTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		u := t.UTC()
		return &u
	}
	return nil
}
