package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	internalAuth "github.com/OpenVidu/openvidu-meet-sub006/internal/v1/auth"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/token"
)

type loginRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken        string `json:"accessToken"`
	RefreshToken       string `json:"refreshToken"`
	MustChangePassword bool   `json:"mustChangePassword"`
}

// login verifies userId/password against the Storage Layer's User record
// and mints an access/refresh token pair (spec SPEC_FULL.md §3.2).
func (h *Handlers) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.Store.Users.Get(c.Request.Context(), h.Store.Keys().User(req.UserID))
	if err == storage.ErrNotFound {
		renderError(c, apierr.Unauthenticatedf("INVALID_CREDENTIALS", "invalid userId or password"))
		return
	}
	if err != nil {
		renderError(c, err)
		return
	}

	ok, err := internalAuth.CheckPassword(req.Password, user.PasswordHash)
	if err != nil {
		renderError(c, apierr.Wrap(apierr.Internal, "PASSWORD_CHECK_FAILED", "could not verify password", err))
		return
	}
	if !ok {
		renderError(c, apierr.Unauthenticatedf("INVALID_CREDENTIALS", "invalid userId or password"))
		return
	}

	role := token.Role(user.Role)
	access, _, err := h.Tokens.MintAccess(user.UserID, role, user.MustChangePassword)
	if err != nil {
		renderError(c, apierr.Wrap(apierr.Internal, "TOKEN_MINT_FAILED", "could not mint access token", err))
		return
	}
	refresh, _, err := h.Tokens.MintRefresh(user.UserID)
	if err != nil {
		renderError(c, apierr.Wrap(apierr.Internal, "TOKEN_MINT_FAILED", "could not mint refresh token", err))
		return
	}

	c.JSON(http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh, MustChangePassword: user.MustChangePassword})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// refresh mints a new access/refresh pair from a still-valid refresh token,
// rejecting it if the subject user no longer exists (spec §4.6).
func (h *Handlers) refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	claims, err := h.Tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		renderError(c, apierr.Unauthenticatedf("INVALID_REFRESH_TOKEN", "refresh token is invalid or expired"))
		return
	}

	user, err := h.Store.Users.Get(c.Request.Context(), h.Store.Keys().User(claims.Subject))
	if err == storage.ErrNotFound {
		renderError(c, apierr.Unauthenticatedf("USER_NOT_FOUND", "the token's subject user no longer exists"))
		return
	}
	if err != nil {
		renderError(c, err)
		return
	}

	access, _, err := h.Tokens.MintAccess(user.UserID, token.Role(user.Role), user.MustChangePassword)
	if err != nil {
		renderError(c, apierr.Wrap(apierr.Internal, "TOKEN_MINT_FAILED", "could not mint access token", err))
		return
	}
	newRefresh, _, err := h.Tokens.MintRefresh(user.UserID)
	if err != nil {
		renderError(c, apierr.Wrap(apierr.Internal, "TOKEN_MINT_FAILED", "could not mint refresh token", err))
		return
	}

	c.JSON(http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: newRefresh, MustChangePassword: user.MustChangePassword})
}
