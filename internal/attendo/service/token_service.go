package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/token"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

var (
	ErrInvalidClassID  = errors.New("class_id is invalid")
	ErrInvalidDuration = errors.New("valid_minutes is not an allowed duration")
	ErrUnknownClass    = errors.New("class is not registered")
)

// DefaultDurations are the validity choices offered to instructors.
var DefaultDurations = []int64{15, 30, 45, 60}

type TokenPolicy struct {
	// AllowedDurations defaults to DefaultDurations.
	AllowedDurations []int64

	// AllowedClassIDs restricts issuance. Empty allows any class.
	AllowedClassIDs map[string]struct{}
}

type TokenService struct {
	issuer *token.Issuer
	policy TokenPolicy
	logger *zap.Logger
}

func NewTokenService(iss *token.Issuer, policy TokenPolicy, logger *zap.Logger) *TokenService {
	if len(policy.AllowedDurations) == 0 {
		policy.AllowedDurations = DefaultDurations
	}
	if iss == nil {
		iss = token.NewIssuer(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{issuer: iss, policy: policy, logger: logger}
}

// Issue stamps a new token for the class. ValidMinutes of zero picks the
// first allowed duration.
func (s *TokenService) Issue(_ context.Context, req types.TokenRequest) (types.TokenResponse, error) {
	classID := strings.TrimSpace(req.ClassID)
	if classID == "" {
		return types.TokenResponse{}, ErrInvalidClassID
	}
	if len(s.policy.AllowedClassIDs) > 0 {
		if _, ok := s.policy.AllowedClassIDs[classID]; !ok {
			return types.TokenResponse{}, ErrUnknownClass
		}
	}

	minutes := req.ValidMinutes
	if minutes == 0 {
		minutes = s.policy.AllowedDurations[0]
	}
	if !slices.Contains(s.policy.AllowedDurations, minutes) {
		return types.TokenResponse{}, fmt.Errorf("%w: %d", ErrInvalidDuration, minutes)
	}

	tok, raw, err := s.issuer.Issue(classID, minutes)
	if err != nil {
		return types.TokenResponse{}, fmt.Errorf("%w: %v", ErrInvalidClassID, err)
	}

	s.logger.Info("token issued",
		zap.String("class_id", classID),
		zap.Int64("issued_at_ms", tok.IssuedAt),
		zap.Int64("valid_minutes", minutes))

	return types.TokenResponse{
		Token:        raw,
		ClassID:      tok.ClassID,
		IssuedAtMs:   tok.IssuedAt,
		ValidMinutes: tok.ValidMinutes,
		ExpiresAt:    time.UnixMilli(tok.ExpiresAt()).UTC().Format(time.RFC3339),
	}, nil
}

// QRCode renders raw as a PNG. Undecodable input returns ErrInvalidToken.
func (s *TokenService) QRCode(raw string, size int) ([]byte, error) {
	tok, err := token.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return token.RenderPNG(tok, size)
}
