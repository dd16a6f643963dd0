package token

import (
	"fmt"
	"math"
	"time"
)

const msPerMinute int64 = 60_000

// ExpiryError is returned by Check for a well-formed token outside its
// validity window.
type ExpiryError struct {
	Token AttendanceToken
	Now   int64

	// Early is set when Now precedes IssuedAt (clock skew or a
	// future-dated token).
	Early bool
}

func (e *ExpiryError) Error() string {
	if e.Early {
		return fmt.Sprintf("token for class %q is not valid until %s",
			e.Token.ClassID, time.UnixMilli(e.Token.IssuedAt).UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("token for class %q expired at %s",
		e.Token.ClassID, time.UnixMilli(e.Token.ExpiresAt()).UTC().Format(time.RFC3339))
}

// Window returns the token's validity length in milliseconds, saturating at
// math.MaxInt64.
func (t AttendanceToken) Window() int64 {
	if t.ValidMinutes <= 0 {
		return 0
	}
	if t.ValidMinutes > math.MaxInt64/msPerMinute {
		return math.MaxInt64
	}
	return t.ValidMinutes * msPerMinute
}

// ExpiresAt is the last epoch millisecond at which the token is still valid.
func (t AttendanceToken) ExpiresAt() int64 {
	w := t.Window()
	if t.IssuedAt > math.MaxInt64-w {
		return math.MaxInt64
	}
	return t.IssuedAt + w
}

// Remaining returns how long the token stays valid after nowMs; zero once
// expired.
func (t AttendanceToken) Remaining(nowMs int64) time.Duration {
	if !IsValid(t, nowMs) {
		return 0
	}
	return time.Duration(t.ExpiresAt()-nowMs) * time.Millisecond
}

// IsValid reports whether nowMs lies in [IssuedAt, IssuedAt+ValidMinutes*60000].
// Both bounds are inclusive.
func IsValid(t AttendanceToken, nowMs int64) bool {
	if nowMs < t.IssuedAt {
		return false
	}
	return nowMs-t.IssuedAt <= t.Window()
}

// Check is IsValid with a reason.
func Check(t AttendanceToken, nowMs int64) error {
	if IsValid(t, nowMs) {
		return nil
	}
	return &ExpiryError{Token: t, Now: nowMs, Early: nowMs < t.IssuedAt}
}
