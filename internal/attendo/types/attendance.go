package types

// AttendanceRequest is what a scanning station submits for a validated
// token. Token carries the raw payload and, when set, takes precedence over
// the decoded fields.
type AttendanceRequest struct {
	Token        string `json:"token,omitempty"`
	ClassID      string `json:"class_id"`
	IssuedAtMs   int64  `json:"issued_at_ms"`
	ValidMinutes int64  `json:"valid_minutes"`
	StudentID    string `json:"student_id"`
	StationID    string `json:"station_id"`
	CameraID     string `json:"camera_id,omitempty"`
	SubmittedAt  string `json:"submitted_at,omitempty"` // RFC3339 station timestamp
}

type AttendanceResponse struct {
	OK         bool   `json:"ok"`
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
	RecordID   string `json:"record_id,omitempty"`
	ClassID    string `json:"class_id"`
	StudentID  string `json:"student_id"`
	ServerTime string `json:"server_time"`
}

// AttendanceEvent is pushed to live subscribers of a class.
type AttendanceEvent struct {
	RecordID  string `json:"record_id"`
	ClassID   string `json:"class_id"`
	StudentID string `json:"student_id"`
	StationID string `json:"station_id"`
	MarkedAt  string `json:"marked_at"`
}

// Decision reasons reported in AttendanceResponse.Reason.
const (
	ReasonMarked           = "marked"
	ReasonAlreadyMarked    = "already_marked"
	ReasonTokenExpired     = "token_expired"
	ReasonTokenNotYetValid = "token_not_yet_valid"
	ReasonTokenMalformed   = "token_malformed"
	ReasonUnknownStation   = "unknown_station"
	ReasonUnknownClass     = "unknown_class"
)
