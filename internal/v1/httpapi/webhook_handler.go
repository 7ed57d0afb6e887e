package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/logging"
)

// receiveWebhook accepts an inbound media-server delivery (spec §4.4, §6):
// 200 on success or idempotent duplicate, 401 on signature mismatch.
func (h *Handlers) receiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		renderError(c, apierr.Validationf("INVALID_BODY", "could not read request body"))
		return
	}

	if err := h.Webhook.Handle(c.Request.Context(), c.GetHeader("Authorization"), body); err != nil {
		logging.Warn(c.Request.Context(), "webhook delivery rejected")
		renderError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
