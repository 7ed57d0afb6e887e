package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/recording"
)

func (h *Handlers) listRecordings(c *gin.Context) {
	maxItems, _ := strconv.Atoi(c.Query("maxItems"))
	filters := recording.ListFilters{RoomID: c.Query("roomId")}

	recs, next, err := h.Recordings.List(c.Request.Context(), filters, maxItems, c.Query("nextPageToken"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recs, "nextPageToken": next})
}

func (h *Handlers) getRecording(c *gin.Context) {
	rec, err := h.Recordings.Get(c.Request.Context(), c.Param("recordingId"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) deleteRecording(c *gin.Context) {
	if err := h.Recordings.Delete(c.Request.Context(), c.Param("recordingId")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) bulkDeleteRecordings(c *gin.Context) {
	raw := c.Query("recordingIds")
	if raw == "" {
		renderError(c, apierr.Validationf("MISSING_RECORDING_IDS", "recordingIds query parameter is required"))
		return
	}
	result := h.Recordings.BulkDelete(c.Request.Context(), strings.Split(raw, ","))
	c.JSON(http.StatusOK, result)
}

// getRecordingMedia streams a recording's media file, honouring the Range
// header with a 206 partial response (spec §6, §8 scenario 5).
func (h *Handlers) getRecordingMedia(c *gin.Context) {
	recordingID := c.Param("recordingId")
	rangeHeader := c.GetHeader("Range")

	var rng *recording.ByteRange
	if rangeHeader != "" {
		parsed, ok := recording.ParseByteRange(rangeHeader)
		if !ok {
			renderError(c, apierr.New(apierr.RangeNotSatisfiable, "INVALID_RANGE", "malformed Range header"))
			return
		}
		rng = &parsed
	}

	media, err := h.Recordings.GetAsStream(c.Request.Context(), recordingID, rng)
	if err != nil {
		renderError(c, err)
		return
	}
	defer media.Stream.Close()

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", "video/mp4")
	length := media.End - media.Start + 1
	if rng != nil {
		c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", media.Start, media.End, media.FileSize))
		c.Status(http.StatusPartialContent)
	} else {
		c.Status(http.StatusOK)
	}
	c.Header("Content-Length", strconv.FormatInt(length, 10))
	io.Copy(c.Writer, media.Stream)
}

// getRecordingURL returns a direct media URL for a recording (spec §6). The
// control plane serves media itself rather than a pre-signed object-store
// URL, so this simply echoes back the media endpoint's own path.
func (h *Handlers) getRecordingURL(c *gin.Context) {
	recordingID := c.Param("recordingId")
	if _, err := h.Recordings.Get(c.Request.Context(), recordingID); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url": fmt.Sprintf("%s/api/v1/recordings/%s/media", h.BasePath, recordingID),
	})
}

// downloadRecordings concatenates each requested recording's media stream
// under one response, one-per-call on the underlying media files (spec §6:
// GET /api/v1/recordings/download?recordingIds=...). Partial failures abort
// the whole response rather than silently truncating the download.
func (h *Handlers) downloadRecordings(c *gin.Context) {
	raw := c.Query("recordingIds")
	if raw == "" {
		renderError(c, apierr.Validationf("MISSING_RECORDING_IDS", "recordingIds query parameter is required"))
		return
	}
	ids := strings.Split(raw, ",")

	streams := make([]io.ReadCloser, 0, len(ids))
	defer func() {
		for _, stream := range streams {
			stream.Close()
		}
	}()
	for _, id := range ids {
		media, err := h.Recordings.GetAsStream(c.Request.Context(), id, nil)
		if err != nil {
			renderError(c, err)
			return
		}
		streams = append(streams, media.Stream)
	}

	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	for _, stream := range streams {
		if _, err := io.Copy(c.Writer, stream); err != nil {
			return
		}
	}
}
