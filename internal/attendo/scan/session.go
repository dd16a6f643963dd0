package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/token"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusScanning   Status = "scanning"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// User-facing messages sent to the Notifier.
const (
	MsgScanning        = "Scanning started"
	MsgCameraSwitched  = "Switched camera"
	MsgMarked          = "Attendance marked successfully"
	MsgExpired         = "This QR code has expired"
	MsgNotYetValid     = "This QR code is not valid yet"
	MsgMalformed       = "Failed to process QR code"
	MsgCameraFailed    = "Failed to access camera"
	MsgSubmitFailedFmt = "Failed to mark attendance: "
)

// SessionState is a point-in-time copy of a Session. ActiveCameraID is set
// only while Scanning; SelectedCameraID is the camera the next Start uses
// and survives Reset and Stop.
type SessionState struct {
	Status           Status             `json:"status"`
	ActiveCameraID   string             `json:"active_camera_id,omitempty"`
	SelectedCameraID string             `json:"selected_camera_id,omitempty"`
	StreamOpen       bool               `json:"stream_open"`
	AvailableCameras []CameraDescriptor `json:"available_cameras"`
	FlashEnabled     bool               `json:"flash_enabled"`
	SuccessCount     uint64             `json:"success_count"`
	LastError        string             `json:"last_error,omitempty"`
}

type SessionConfig struct {
	Registry  *CameraRegistry
	Camera    Camera
	Submitter Submitter
	Notifier  Notifier // optional
	Logger    *zap.Logger

	StudentID string
	StationID string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Session drives one scanning view: it owns the single camera stream,
// turns decoded frames into validated tokens and submits each accepted
// token exactly once.
//
// Transitions: Idle -> Scanning (Start), Scanning -> Processing (frame),
// Processing -> Success|Error, Success|Error -> Idle (Reset), any -> Idle
// (Stop). Frames that arrive outside Scanning are dropped.
type Session struct {
	registry  *CameraRegistry
	camera    Camera
	submitter Submitter
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
	studentID string
	stationID string

	mu           sync.Mutex
	status       Status
	selected     string
	stream       Stream
	starting     bool
	gen          uint64 // bumped by Stop; a Start that sees it change discards its stream
	flash        bool
	successCount uint64
	lastErr      string

	pumps sync.WaitGroup
}

func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		registry:  cfg.Registry,
		camera:    cfg.Camera,
		submitter: cfg.Submitter,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		now:       cfg.Now,
		studentID: cfg.StudentID,
		stationID: cfg.StationID,
		status:    StatusIdle,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifier == nil {
		s.notifier = NotifierFunc(func(types.StatusEvent) {})
	}
	return s
}

// Start acquires a stream for the selected camera, falling back to the
// registry default (enumerating once if the registry is empty). On failure
// the session stays Idle, the selection is cleared so the next Start tries
// the default, and the error is reported.
//
// Enumeration and acquisition run without the session lock. A Stop that
// lands meanwhile wins: the new stream is closed and ErrStartAborted is
// returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.status == StatusScanning:
		s.mu.Unlock()
		return nil
	case s.status != StatusIdle || s.starting:
		st, starting := s.status, s.starting
		s.mu.Unlock()
		s.logger.Debug("start ignored", zap.String("status", string(st)), zap.Bool("starting", starting))
		return ErrInvalidTransition
	}
	s.starting = true
	gen, selected := s.gen, s.selected
	s.mu.Unlock()

	camID, err := s.selectCamera(ctx, selected)
	var st Stream
	if err == nil {
		st, err = s.open(ctx, camID)
	}

	s.mu.Lock()
	s.starting = false
	if s.gen != gen {
		s.mu.Unlock()
		if st != nil {
			_ = st.Close()
		}
		return ErrStartAborted
	}
	if err != nil {
		s.selected = ""
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.logger.Warn("scan start failed", zap.Error(err))
		s.emit(types.LevelError, MsgCameraFailed)
		return err
	}
	s.selected = camID
	s.attachLocked(st)
	s.status = StatusScanning
	s.lastErr = ""
	s.mu.Unlock()

	s.logger.Info("scanning started", zap.String("camera_id", camID))
	s.emit(types.LevelInfo, MsgScanning)
	return nil
}

// Stop releases the stream. It always succeeds and is idempotent. A
// submission already in flight still resolves to Success or Error.
func (s *Session) Stop() {
	s.mu.Lock()
	s.gen++
	s.releaseLocked()
	if s.status != StatusProcessing {
		s.status = StatusIdle
	}
	s.mu.Unlock()
}

// Close stops the session and waits for its frame pump to exit, including
// any submission it is waiting on.
func (s *Session) Close() {
	s.Stop()
	s.pumps.Wait()
}

// Reset re-arms a finished attempt. Camera selection, the camera list and
// the success counter are kept.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusIdle:
		return nil
	case StatusSuccess, StatusError:
		s.releaseLocked()
		s.status = StatusIdle
		s.lastErr = ""
		return nil
	default:
		return ErrInvalidTransition
	}
}

// SwitchCamera moves the stream to the next camera in enumeration order.
// The old stream is released before the new one is acquired; if that
// fails the session ends in Error holding no stream, with the previous
// camera still selected.
func (s *Session) SwitchCamera(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusScanning {
		s.mu.Unlock()
		return ErrInvalidTransition
	}

	s.releaseLocked()

	next, err := s.registry.Next(s.selected)
	if err == nil {
		err = s.openLocked(ctx, next.ID)
	}
	if err != nil {
		s.status = StatusError
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.logger.Warn("camera switch failed", zap.Error(err))
		s.emit(types.LevelError, MsgCameraFailed)
		return err
	}
	s.selected = next.ID
	s.mu.Unlock()

	s.logger.Info("camera switched", zap.String("camera_id", next.ID))
	s.emit(types.LevelInfo, MsgCameraSwitched)
	return nil
}

// ToggleFlash flips the flash flag while Scanning on a flash-capable
// camera and reports whether it did anything.
func (s *Session) ToggleFlash() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusScanning {
		return false
	}
	desc, ok := s.registry.Lookup(s.selected)
	if !ok || !desc.HasFlash {
		return false
	}

	s.flash = !s.flash
	if t, ok := s.stream.(Torch); ok {
		if err := t.SetTorch(s.flash); err != nil {
			s.logger.Warn("torch control failed", zap.String("camera_id", desc.ID), zap.Error(err))
		}
	}
	return true
}

// FrameDecoded handles a payload read by the active camera. Only one
// payload is processed at a time; payloads arriving while the session is
// not Scanning return ErrFrameDropped without touching the Submitter.
func (s *Session) FrameDecoded(ctx context.Context, payload string) error {
	return s.handleFrame(ctx, nil, payload)
}

func (s *Session) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active string
	if s.status == StatusScanning && s.stream != nil {
		active = s.selected
	}
	return SessionState{
		Status:           s.status,
		ActiveCameraID:   active,
		SelectedCameraID: s.selected,
		StreamOpen:       s.stream != nil,
		AvailableCameras: s.registry.Cameras(),
		FlashEnabled:     s.flash,
		SuccessCount:     s.successCount,
		LastError:        s.lastErr,
	}
}

func (s *Session) handleFrame(ctx context.Context, from Stream, payload string) error {
	s.mu.Lock()
	if s.status != StatusScanning || (from != nil && from != s.stream) {
		s.mu.Unlock()
		return ErrFrameDropped
	}
	s.status = StatusProcessing
	camID := s.selected
	s.mu.Unlock()

	tok, err := token.Decode(payload)
	if err != nil {
		s.fail(err, MsgMalformed)
		return err
	}

	now := s.now()
	if err := token.Check(tok, now.UnixMilli()); err != nil {
		msg := MsgExpired
		var expErr *token.ExpiryError
		if errors.As(err, &expErr) && expErr.Early {
			msg = MsgNotYetValid
		}
		s.fail(err, msg)
		return err
	}

	err = s.submitter.Submit(ctx, tok, ScanContext{
		StudentID:   s.studentID,
		StationID:   s.stationID,
		CameraID:    camID,
		SubmittedAt: now,
	})
	if err != nil {
		var subErr *SubmissionError
		if !errors.As(err, &subErr) {
			subErr = &SubmissionError{Err: err}
			err = subErr
		}
		reason := subErr.Reason
		if reason == "" {
			reason = "server unreachable"
		}
		s.fail(err, MsgSubmitFailedFmt+reason)
		return err
	}

	s.mu.Lock()
	s.status = StatusSuccess
	s.successCount++
	count := s.successCount
	s.mu.Unlock()

	s.logger.Info("attendance marked",
		zap.String("class_id", tok.ClassID),
		zap.Int64("issued_at_ms", tok.IssuedAt),
		zap.Uint64("success_count", count))
	s.emit(types.LevelSuccess, MsgMarked)
	return nil
}

func (s *Session) fail(err error, msg string) {
	s.mu.Lock()
	s.status = StatusError
	s.lastErr = err.Error()
	s.mu.Unlock()

	s.logger.Info("scan rejected", zap.Error(err))
	s.emit(types.LevelError, msg)
}

// selectCamera keeps selected if the registry still knows it, otherwise
// takes the registry default.
func (s *Session) selectCamera(ctx context.Context, selected string) (string, error) {
	if _, ok := s.registry.Lookup(selected); ok {
		return selected, nil
	}
	if len(s.registry.Cameras()) == 0 {
		if _, err := s.registry.Refresh(ctx); err != nil {
			return "", err
		}
	}
	desc, err := s.registry.Default()
	if err != nil {
		return "", err
	}
	return desc.ID, nil
}

func (s *Session) open(ctx context.Context, camID string) (Stream, error) {
	st, err := s.camera.Open(ctx, camID)
	if err != nil {
		return nil, &DeviceError{Op: "open", CameraID: camID, Kind: ErrAcquireFailed, Err: err}
	}
	return st, nil
}

func (s *Session) openLocked(ctx context.Context, camID string) error {
	st, err := s.open(ctx, camID)
	if err != nil {
		return err
	}
	s.attachLocked(st)
	return nil
}

func (s *Session) attachLocked(st Stream) {
	s.stream = st
	s.flash = false

	s.pumps.Add(1)
	go s.pump(st)
}

func (s *Session) releaseLocked() {
	s.flash = false
	if s.stream == nil {
		return
	}
	st := s.stream
	s.stream = nil
	if err := st.Close(); err != nil {
		s.logger.Warn("camera release failed", zap.String("camera_id", s.selected), zap.Error(err))
	}
}

// pump feeds frames from st into the session one at a time until the
// stream ends.
func (s *Session) pump(st Stream) {
	defer s.pumps.Done()

	for f := range st.Frames() {
		if f.Err != nil {
			s.logger.Debug("frame decode error", zap.Error(f.Err))
			continue
		}
		if err := s.handleFrame(context.Background(), st, f.Payload); errors.Is(err, ErrFrameDropped) {
			s.logger.Debug("frame dropped")
		}
	}

	s.mu.Lock()
	if s.stream != st {
		s.mu.Unlock()
		return
	}
	// The device went away underneath us.
	s.stream = nil
	s.flash = false
	_ = st.Close()
	err := &DeviceError{Op: "read", CameraID: s.selected, Kind: ErrStreamEnded}
	scanning := s.status == StatusScanning
	if scanning {
		s.status = StatusError
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	s.logger.Warn("camera stream ended", zap.Error(err))
	if scanning {
		s.emit(types.LevelError, MsgCameraFailed)
	}
}

func (s *Session) emit(level types.StatusLevel, msg string) {
	s.notifier.Notify(types.StatusEvent{Level: level, Message: msg, At: s.now().UTC()})
}
