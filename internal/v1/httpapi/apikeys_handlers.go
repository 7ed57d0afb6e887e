package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// createAPIKey mints a new API key, returning the full key string exactly
// once (spec §6: POST /internal-api/v1/api-keys).
func (h *Handlers) createAPIKey(c *gin.Context) {
	full, rec, err := h.ApiKeys.Create(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": full, "keyId": rec.KeyID, "prefix": rec.Prefix, "createdAt": rec.CreatedAt})
}

func (h *Handlers) listAPIKeys(c *gin.Context) {
	keys, err := h.ApiKeys.List(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apiKeys": keys})
}

func (h *Handlers) revokeAPIKey(c *gin.Context) {
	if err := h.ApiKeys.Revoke(c.Request.Context(), c.Param("keyId")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
