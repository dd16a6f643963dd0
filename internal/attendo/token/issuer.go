package token

import (
	"sync"
	"time"
)

// Issuer creates tokens whose IssuedAt never goes backwards within the
// process, even if the wall clock does.
type Issuer struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func NewIssuer(now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{now: now}
}

// Issue stamps a new token for classID. The fields are validated the same
// way Encode validates them.
func (i *Issuer) Issue(classID string, validMinutes int64) (AttendanceToken, string, error) {
	i.mu.Lock()
	issuedAt := i.now().UnixMilli()
	if issuedAt < i.last {
		issuedAt = i.last
	}

	raw, err := Encode(classID, issuedAt, validMinutes)
	if err != nil {
		i.mu.Unlock()
		return AttendanceToken{}, "", err
	}
	i.last = issuedAt
	i.mu.Unlock()

	return AttendanceToken{
		ClassID:      classID,
		IssuedAt:     issuedAt,
		ValidMinutes: validMinutes,
	}, raw, nil
}
