// Package submit delivers validated attendance tokens from a scanning
// station to the attendance server.
package submit

import (
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/scan"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/token"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

const DefaultTimeout = 10 * time.Second

func buildRequest(tok token.AttendanceToken, sc scan.ScanContext) types.AttendanceRequest {
	req := types.AttendanceRequest{
		ClassID:      tok.ClassID,
		IssuedAtMs:   tok.IssuedAt,
		ValidMinutes: tok.ValidMinutes,
		StudentID:    sc.StudentID,
		StationID:    sc.StationID,
		CameraID:     sc.CameraID,
	}
	if !sc.SubmittedAt.IsZero() {
		req.SubmittedAt = sc.SubmittedAt.UTC().Format(time.RFC3339Nano)
	}
	return req
}

// fromResponse maps a decoded server answer onto the scan.Submitter contract.
func fromResponse(resp types.AttendanceResponse) error {
	if resp.Accepted {
		return nil
	}
	reason := resp.Reason
	if reason == "" {
		reason = "rejected"
	}
	return &scan.SubmissionError{Reason: reason}
}
