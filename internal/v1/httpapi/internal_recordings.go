package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// startRecordingRequest is the body for POST /internal-api/v1/recordings
// (spec §4.9's startRecording, fronted here for management clients).
type startRecordingRequest struct {
	RoomID string `json:"roomId" binding:"required"`
}

func (h *Handlers) startRecording(c *gin.Context) {
	var req startRecordingRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.Recordings.Start(c.Request.Context(), req.RoomID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handlers) stopRecording(c *gin.Context) {
	rec, err := h.Recordings.Stop(c.Request.Context(), c.Param("recordingId"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
