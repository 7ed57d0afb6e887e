// Package httpapi wires the control plane's HTTP surface (spec §6): a gin
// router exposing the public /api/v1 and management /internal-api/v1 route
// groups, translating between JSON request/response bodies and the
// room/recording/member/apikey/token services.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
)

// errorResponse is the {error, message, details} shape spec §7 mandates for
// client-facing errors.
type errorResponse struct {
	Error   string               `json:"error"`
	Message string               `json:"message"`
	Details []apierr.FieldError  `json:"details,omitempty"`
}

// renderError maps a service-layer error to its HTTP status and body. Errors
// that aren't an *apierr.Error (a storage/driver failure that escaped
// unwrapped) are rendered as 500 without leaking their detail to the client.
func renderError(c *gin.Context, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
			Error:   "internal",
			Message: "an internal error occurred",
		})
		return
	}
	c.AbortWithStatusJSON(apierr.HTTPStatus(apiErr.Kind), errorResponse{
		Error:   apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Fields,
	})
}

// bindJSON decodes the request body into out, rendering a 422 validation
// error (spec §7) on failure. Returns false if the caller should stop.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		renderError(c, apierr.Validationf("INVALID_BODY", "request body failed validation").
			WithFields(apierr.FieldError{Field: "body", Message: err.Error()}))
		return false
	}
	return true
}
