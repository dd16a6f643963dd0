package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates the three token fields on the wire.
const Delimiter = "-"

var (
	ErrMalformedShape  = errors.New("token must have exactly three fields")
	ErrMalformedNumber = errors.New("issued_at and valid_minutes must be non-negative integers")
	ErrEmptyClassID    = errors.New("class_id is required")

	ErrDelimiterInClassID = errors.New("class_id must not contain the delimiter")
	ErrInvalidIssuedAt    = errors.New("issued_at must not be negative")
	ErrInvalidDuration    = errors.New("valid_minutes must be positive")
)

// AttendanceToken binds a class to a validity window starting at IssuedAt
// (epoch milliseconds) and lasting ValidMinutes.
type AttendanceToken struct {
	ClassID      string `json:"class_id"`
	IssuedAt     int64  `json:"issued_at_ms"`
	ValidMinutes int64  `json:"valid_minutes"`
}

// DecodeError reports why a scanned payload is not a token.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode token %q: %v", e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports token fields that cannot be put on the wire.
type EncodeError struct {
	ClassID string
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode token for class %q: %v", e.ClassID, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Encode produces "<classID>-<issuedAt>-<validMinutes>".
func Encode(classID string, issuedAt, validMinutes int64) (string, error) {
	switch {
	case classID == "":
		return "", &EncodeError{ClassID: classID, Err: ErrEmptyClassID}
	case strings.Contains(classID, Delimiter):
		return "", &EncodeError{ClassID: classID, Err: ErrDelimiterInClassID}
	case issuedAt < 0:
		return "", &EncodeError{ClassID: classID, Err: ErrInvalidIssuedAt}
	case validMinutes <= 0:
		return "", &EncodeError{ClassID: classID, Err: ErrInvalidDuration}
	}

	return classID + Delimiter +
		strconv.FormatInt(issuedAt, 10) + Delimiter +
		strconv.FormatInt(validMinutes, 10), nil
}

// String encodes t. Tokens that fail Encode render as an empty string.
func (t AttendanceToken) String() string {
	s, _ := Encode(t.ClassID, t.IssuedAt, t.ValidMinutes)
	return s
}

// Decode parses a scanned payload. It has no side effects.
func Decode(raw string) (AttendanceToken, error) {
	parts := strings.Split(raw, Delimiter)
	if len(parts) != 3 {
		return AttendanceToken{}, &DecodeError{Raw: raw, Err: ErrMalformedShape}
	}

	issuedAt, ok := parseNonNegative(parts[1])
	if !ok {
		return AttendanceToken{}, &DecodeError{Raw: raw, Err: ErrMalformedNumber}
	}
	validMinutes, ok := parseNonNegative(parts[2])
	if !ok {
		return AttendanceToken{}, &DecodeError{Raw: raw, Err: ErrMalformedNumber}
	}

	if parts[0] == "" {
		return AttendanceToken{}, &DecodeError{Raw: raw, Err: ErrEmptyClassID}
	}

	return AttendanceToken{
		ClassID:      parts[0],
		IssuedAt:     issuedAt,
		ValidMinutes: validMinutes,
	}, nil
}

// Validate applies Decode's rules to already-split fields, so a token sent
// as structured fields is accepted exactly when its raw form would decode.
func (t AttendanceToken) Validate() error {
	switch {
	case t.IssuedAt < 0, t.ValidMinutes < 0:
		return ErrMalformedNumber
	case t.ClassID == "":
		return ErrEmptyClassID
	case strings.Contains(t.ClassID, Delimiter):
		return ErrMalformedShape
	}
	return nil
}

// parseNonNegative accepts only ASCII digits; strconv alone would let a
// leading '+' through.
func parseNonNegative(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
