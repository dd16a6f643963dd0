package types

import "time"

type StatusLevel string

const (
	LevelInfo    StatusLevel = "info"
	LevelSuccess StatusLevel = "success"
	LevelError   StatusLevel = "error"
)

// StatusEvent is a user-facing message emitted by a scan session.
type StatusEvent struct {
	Level   StatusLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}
