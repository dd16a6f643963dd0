package scan

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/token"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

// CameraDescriptor identifies a camera and whether it can drive a torch.
type CameraDescriptor struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	HasFlash bool   `json:"has_flash"`
}

// Enumerator lists the cameras the platform exposes, in platform order.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]CameraDescriptor, error)
}

// Frame is one decode result from a camera stream. Err is set when the
// decoder could not read the frame.
type Frame struct {
	Payload string
	Err     error
}

// Camera opens decode streams for a camera ID.
type Camera interface {
	Open(ctx context.Context, cameraID string) (Stream, error)
}

// Stream is an open camera handle. Frames is closed when the stream ends,
// either because Close was called or because the device went away.
type Stream interface {
	Frames() <-chan Frame
	Close() error
}

// Torch is implemented by streams that can switch the camera light.
type Torch interface {
	SetTorch(on bool) error
}

// ScanContext describes who scanned a token, where and when.
type ScanContext struct {
	StudentID   string
	StationID   string
	CameraID    string
	SubmittedAt time.Time
}

// Submitter hands a validated token to the attendance system of record.
type Submitter interface {
	Submit(ctx context.Context, tok token.AttendanceToken, sc ScanContext) error
}

// Notifier receives user-facing status events. It must not block.
type Notifier interface {
	Notify(ev types.StatusEvent)
}

type NotifierFunc func(ev types.StatusEvent)

func (f NotifierFunc) Notify(ev types.StatusEvent) { f(ev) }
