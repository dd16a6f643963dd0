package scan

import (
	"errors"
	"fmt"
)

var (
	ErrEnumerationFailed = errors.New("camera enumeration failed")
	ErrNoCameras         = errors.New("no cameras available")
	ErrAcquireFailed     = errors.New("camera stream acquisition failed")
	ErrStreamEnded       = errors.New("camera stream ended")

	ErrInvalidTransition = errors.New("invalid scan session transition")
	ErrFrameDropped      = errors.New("frame dropped: session is not scanning")
	ErrStartAborted      = errors.New("scan start aborted by stop")
)

// DeviceError describes a camera failure. Kind is one of the Err* camera
// sentinels; Err is the underlying platform error, if any.
type DeviceError struct {
	Op       string
	CameraID string
	Kind     error
	Err      error
}

func (e *DeviceError) Error() string {
	msg := "camera " + e.Op
	if e.CameraID != "" {
		msg += " " + e.CameraID
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SubmissionError is returned by Submitters when the system of record
// rejects an attendance mark or cannot be reached. Reason carries the
// server's decision reason for rejections.
type SubmissionError struct {
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("submission rejected (%s): %v", e.Reason, e.Err)
	case e.Reason != "":
		return "submission rejected: " + e.Reason
	case e.Err != nil:
		return "submission failed: " + e.Err.Error()
	default:
		return "submission failed"
	}
}

func (e *SubmissionError) Unwrap() error { return e.Err }
