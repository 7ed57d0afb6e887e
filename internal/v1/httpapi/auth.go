package httpapi

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apikey"
	internalAuth "github.com/OpenVidu/openvidu-meet-sub006/internal/v1/auth"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/token"
)

const (
	contextKeyUserID             = "userId"
	contextKeyRole                = "role"
	contextKeyMustChangePassword = "mustChangePassword"
)

// bearerToken extracts the token from a "Bearer <token>" header value.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}

// requireAccessToken authenticates the request via Authorization: Bearer
// <jwt> (spec §6) and stores the caller's identity in the gin context. It
// also sets "claims" to an *auth.CustomClaims projection of the verified
// subject purely so ratelimit.RateLimiter's existing per-user keying (which
// predates the Token Service and expects that exact type) can key by user
// without re-validating the token itself.
func (h *Handlers) requireAccessToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			if q := c.Query("accessToken"); q != "" {
				tok = q
				ok = true
			}
		}
		if !ok {
			renderError(c, apierr.Unauthenticatedf("MISSING_ACCESS_TOKEN", "an access token is required"))
			return
		}
		h.verifyAccessToken(c, tok)
	}
}

// requireAdmin rejects a request whose verified access token isn't the
// admin role. Must run after requireAccessToken.
func (h *Handlers) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(contextKeyRole)
		if role != token.RoleAdmin {
			renderError(c, apierr.New(apierr.Forbidden, "ADMIN_REQUIRED", "this endpoint requires the admin role"))
			return
		}
		c.Next()
	}
}

// requirePasswordNotExpired blocks access beyond login/refresh while a
// user's mustChangePassword flag is set (spec §7: 403 password-change-required).
func (h *Handlers) requirePasswordNotExpired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if must, _ := c.Get(contextKeyMustChangePassword); must == true {
			renderError(c, apierr.New(apierr.Forbidden, "PASSWORD_CHANGE_REQUIRED", "password must be changed before continuing"))
			return
		}
		c.Next()
	}
}

// requireAPIKey authenticates a management request via X-Api-Key (spec §6).
func (h *Handlers) requireAPIKey(keys *apikey.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Api-Key")
		if key == "" {
			renderError(c, apierr.Unauthenticatedf("MISSING_API_KEY", "an X-Api-Key header is required"))
			return
		}
		ok, err := keys.Verify(c.Request.Context(), key)
		if err != nil {
			renderError(c, err)
			return
		}
		if !ok {
			renderError(c, apierr.Unauthenticatedf("INVALID_API_KEY", "api key is invalid or revoked"))
			return
		}
		c.Next()
	}
}

// roomMemberToken extracts a room-member token from the
// X-OvMeet-Room-Member-Token header or the roomMemberToken query parameter
// (spec §6), for streaming endpoints that accept either access or
// room-member tokens.
func roomMemberToken(c *gin.Context) (string, bool) {
	if tok, ok := bearerToken(c.GetHeader("X-OvMeet-Room-Member-Token")); ok {
		return tok, true
	}
	if q := c.Query("roomMemberToken"); q != "" {
		return q, true
	}
	return "", false
}

// requireAccessOrRoomMemberToken gates a streaming endpoint (spec §6, §4.6):
// it accepts a regular access token exactly like requireAccessToken, or
// falls back to a room-member token scoped to the requested recording's
// room. A room-member token is rejected if it targets a different room, or
// if its permissionsEpoch predates the live permissionsUpdatedAt of the
// member (or, for anonymous-role tokens, of the room itself) — the same
// invalidation rule requireAccessToken's counterpart enforces for member
// mutations (spec §4.6, §4.10).
func (h *Handlers) requireAccessOrRoomMemberToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok, ok := bearerToken(c.GetHeader("Authorization")); ok {
			h.verifyAccessToken(c, tok)
			return
		}
		if q := c.Query("accessToken"); q != "" {
			h.verifyAccessToken(c, q)
			return
		}

		tok, ok := roomMemberToken(c)
		if !ok {
			renderError(c, apierr.Unauthenticatedf("MISSING_ACCESS_TOKEN", "an access token or room-member token is required"))
			return
		}

		rec, err := h.Recordings.Get(c.Request.Context(), c.Param("recordingId"))
		if err != nil {
			renderError(c, err)
			return
		}

		claims, err := h.Tokens.VerifyRoomMember(tok, 0)
		if err != nil {
			renderError(c, apierr.Unauthenticatedf("INVALID_ROOM_MEMBER_TOKEN", "room-member token is invalid or expired"))
			return
		}
		if claims.RoomID != rec.RoomID {
			renderError(c, apierr.Unauthenticatedf("INVALID_ROOM_MEMBER_TOKEN", "room-member token does not grant access to this recording"))
			return
		}

		currentEpoch, err := h.currentPermissionsEpoch(c.Request.Context(), claims.RoomID, claims.Subject)
		if err != nil {
			renderError(c, err)
			return
		}
		if claims.PermissionsEpoch < currentEpoch {
			renderError(c, apierr.Unauthenticatedf("STALE_ROOM_MEMBER_TOKEN", "room-member token was minted before the most recent permissions change"))
			return
		}

		c.Set(contextKeyUserID, claims.Subject)
		c.Set(contextKeyRole, token.RoleRoomMember)
		c.Next()
	}
}

// currentPermissionsEpoch resolves the live permissionsUpdatedAt a
// room-member token's epoch must not predate. A registered member has its
// own record; an anonymous-role token has none, so it falls back to the
// room's own epoch, which UpdateRoles/UpdateAnonymous bump on exactly the
// same changes that would invalidate an anonymous token's scope (spec §4.6).
func (h *Handlers) currentPermissionsEpoch(ctx context.Context, roomID, memberID string) (int64, error) {
	m, err := h.Members.GetByID(ctx, roomID, memberID)
	if err == nil {
		return m.PermissionsUpdatedAt, nil
	}
	if apiErr, ok := apierr.As(err); !ok || apiErr.Kind != apierr.NotFound {
		return 0, err
	}
	r, err := h.Rooms.GetByID(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return r.PermissionsUpdatedAt, nil
}

// verifyAccessToken is requireAccessToken's body, factored out so
// requireAccessOrRoomMemberToken can reuse the identical access-token path.
func (h *Handlers) verifyAccessToken(c *gin.Context, tok string) {
	claims, err := h.Tokens.VerifyAccess(tok)
	if err != nil {
		renderError(c, apierr.Unauthenticatedf("INVALID_ACCESS_TOKEN", "access token is invalid or expired"))
		return
	}
	c.Set(contextKeyUserID, claims.Subject)
	c.Set(contextKeyRole, claims.Role)
	c.Set(contextKeyMustChangePassword, claims.MustChangePassword)
	c.Set("claims", &internalAuth.CustomClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: claims.Subject}})
	c.Next()
}
