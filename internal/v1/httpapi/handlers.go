package httpapi

import (
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apikey"
	internalAuth "github.com/OpenVidu/openvidu-meet-sub006/internal/v1/auth"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/health"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/member"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/ratelimit"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/recording"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/room"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/token"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/webhook"
)

// ssoValidator is satisfied by both *auth.Validator and *auth.MockValidator,
// letting the SSO bridge be swapped for local development without an
// httpapi-level type switch.
type ssoValidator interface {
	ValidateToken(tokenString string) (*internalAuth.CustomClaims, error)
}

// Handlers bundles the domain services and ambient-stack collaborators the
// HTTP layer dispatches into. One Handlers exists per process.
type Handlers struct {
	Store      *storage.Store
	Rooms      *room.Service
	Members    *member.Service
	Recordings *recording.Service
	ApiKeys    *apikey.Service
	Tokens     *token.Service
	Webhook    *webhook.Sink

	Health      *health.Handler
	RateLimiter *ratelimit.RateLimiter

	// SSO is the optional OIDC/JWKS bridge (spec SPEC_FULL.md §3.3); nil
	// when OIDC_ISSUER is unset.
	SSO ssoValidator

	BasePath string

	// RoomMemberTokenTTL bounds the lifetime of a minted room-member token
	// (spec §4.6).
	RoomMemberTokenTTL time.Duration
}
