// Package token implements the Token Service: minting and verification of
// access, refresh and room-member tokens, all signed with the server's HMAC
// secret (spec §4.6).
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is a User's or Member's role, embedded in access/room-member claims.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
	RoleRoomMember Role = "room_member"
)

// AccessClaims are the claims carried by an access token. Subject = userId.
type AccessClaims struct {
	Role               Role `json:"role"`
	MustChangePassword bool `json:"mustChangePassword"`
	jwt.RegisteredClaims
}

// RefreshClaims are the claims carried by a refresh token. Subject = userId.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// RoomMemberClaims are the claims carried by a room-member token. Subject =
// memberId. PermissionsEpoch pins the token to a specific permissions
// snapshot (spec §4.6): verification rejects tokens whose epoch predates the
// member's (or anonymous role's) current permissionsUpdatedAt.
type RoomMemberClaims struct {
	RoomID               string         `json:"roomId"`
	BaseRole             string         `json:"baseRole"`
	EffectivePermissions map[string]any `json:"effectivePermissions"`
	PermissionsEpoch     int64          `json:"permissionsEpoch"`
	jwt.RegisteredClaims
}

// Service mints and verifies the three token kinds against a shared HMAC
// secret. It has no persistence of its own; subject/epoch existence checks
// are performed by callers against the Storage Layer at verification time.
type Service struct {
	secret          []byte
	accessTTL       time.Duration
	refreshTTL      time.Duration
	issuer          string
}

// NewService constructs a token Service.
func NewService(secret string, accessTTL, refreshTTL time.Duration, issuer string) *Service {
	return &Service{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, issuer: issuer}
}

var (
	// ErrInvalidToken covers signature failures, expiry, and malformed tokens.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrEpochStale signals a room-member token minted before the most recent
	// permissions update for its member/role scope.
	ErrEpochStale = errors.New("token: permissions epoch is stale")
)

// MintAccess mints an access token for userId.
func (s *Service) MintAccess(userID string, role Role, mustChangePassword bool) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessTTL)
	claims := &AccessClaims{
		Role:               role,
		MustChangePassword: mustChangePassword,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: mint access: %w", err)
	}
	return tok, expiresAt, nil
}

// VerifyAccess parses and validates an access token.
func (s *Service) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// MintRefresh mints a refresh token for userId.
func (s *Service) MintRefresh(userID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.refreshTTL)
	claims := &RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: mint refresh: %w", err)
	}
	return tok, expiresAt, nil
}

// VerifyRefresh parses and validates a refresh token. The caller must still
// reject it if the subject user no longer exists (spec §4.6).
func (s *Service) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// MintRoomMember mints a room-member token. permissionsEpoch must be the
// member's (or anonymous role's) current permissionsUpdatedAt, in Unix
// nanoseconds, taken post-commit.
func (s *Service) MintRoomMember(memberID, roomID, baseRole string, effectivePermissions map[string]any, permissionsEpoch int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &RoomMemberClaims{
		RoomID:               roomID,
		BaseRole:             baseRole,
		EffectivePermissions: effectivePermissions,
		PermissionsEpoch:     permissionsEpoch,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: mint room-member: %w", err)
	}
	return tok, nil
}

// VerifyRoomMember parses a room-member token and checks its permissions
// epoch against currentEpoch (the member's or anonymous role's live
// permissionsUpdatedAt). Callers must independently confirm the referenced
// room and member still exist before calling this.
func (s *Service) VerifyRoomMember(tokenString string, currentEpoch int64) (*RoomMemberClaims, error) {
	claims := &RoomMemberClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.PermissionsEpoch < currentEpoch {
		return nil, ErrEpochStale
	}
	return claims, nil
}

func (s *Service) parse(tokenString string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
