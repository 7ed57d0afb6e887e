package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/permission"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/room"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// fullEffective grants every permission bit: management-API callers
// (access-token authenticated staff accounts) manage rooms rather than
// participate in them, so field gating never strips anything for them —
// only the fields/expand projection applies. Room-member-scoped viewers see
// gated fields stripped via their own EffectivePermissions snapshot instead,
// carried directly in their room-member token claims.
var fullEffective = permission.Effective{
	CanRecord:                  true,
	CanRetrieveRecordings:      true,
	CanDeleteRecordings:        true,
	CanChat:                    true,
	CanChangeVirtualBackground: true,
	CanMakeModerator:           true,
}

// parseFieldsExpand reads the ?fields= and ?expand= query parameters shared
// by every room-serialising endpoint (spec §4.8).
func parseFieldsExpand(c *gin.Context) ([]string, map[string]bool) {
	var fields []string
	if raw := c.Query("fields"); raw != "" {
		fields = strings.Split(raw, ",")
	}
	expand := map[string]bool{}
	if raw := c.Query("expand"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			expand[f] = true
		}
	}
	return fields, expand
}

// createRoomRequest is the request body for POST /api/v1/rooms (spec §6).
type createRoomRequest struct {
	RoomNamePrefix     string                            `json:"roomNamePrefix"`
	Config             storage.RoomConfig                `json:"config"`
	Roles              map[string]storage.RoleTemplate   `json:"roles"`
	Anonymous          map[string]bool                   `json:"anonymous"`
	AutoDeletionDate   *time.Time                         `json:"autoDeletionDate"`
	AutoDeletionPolicy string                             `json:"autoDeletionPolicy"`
}

func (h *Handlers) createRoom(c *gin.Context) {
	var req createRoomRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.Rooms.Create(c.Request.Context(), room.CreateOptions{
		RoomNamePrefix:     req.RoomNamePrefix,
		Config:             req.Config,
		Roles:              req.Roles,
		Anonymous:          req.Anonymous,
		AutoDeletionDate:   req.AutoDeletionDate,
		AutoDeletionPolicy: req.AutoDeletionPolicy,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	fields, expand := parseFieldsExpand(c)
	c.JSON(http.StatusCreated, room.Present(r, fullEffective, fields, expand))
}

func (h *Handlers) listRooms(c *gin.Context) {
	maxItems, _ := strconv.Atoi(c.Query("maxItems"))
	filters := room.ListFilters{Status: c.Query("status")}

	rooms, next, err := h.Rooms.List(c.Request.Context(), filters, maxItems, c.Query("nextPageToken"))
	if err != nil {
		renderError(c, err)
		return
	}
	fields, expand := parseFieldsExpand(c)
	presented := make([]map[string]any, len(rooms))
	for i, r := range rooms {
		presented[i] = room.Present(r, fullEffective, fields, expand)
	}
	c.JSON(http.StatusOK, gin.H{"rooms": presented, "nextPageToken": next})
}

func (h *Handlers) getRoom(c *gin.Context) {
	r, err := h.Rooms.GetByID(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		renderError(c, err)
		return
	}
	fields, expand := parseFieldsExpand(c)
	c.JSON(http.StatusOK, room.Present(r, fullEffective, fields, expand))
}

func (h *Handlers) deleteRoom(c *gin.Context) {
	result, err := h.Rooms.Delete(c.Request.Context(), c.Param("roomId"), c.Query("withMeeting"), c.Query("withRecordings"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(result.HTTPStatus, result)
}

func (h *Handlers) bulkDeleteRooms(c *gin.Context) {
	raw := c.Query("roomIds")
	if raw == "" {
		renderError(c, apierr.Validationf("MISSING_ROOM_IDS", "roomIds query parameter is required"))
		return
	}
	result := h.Rooms.BulkDelete(c.Request.Context(), strings.Split(raw, ","), c.Query("withMeeting"), c.Query("withRecordings"))
	status := http.StatusOK
	if len(result.Failed) > 0 {
		status = http.StatusBadRequest
	}
	c.JSON(status, result)
}

func (h *Handlers) updateRoomConfig(c *gin.Context) {
	var cfg storage.RoomConfig
	if !bindJSON(c, &cfg) {
		return
	}
	r, err := h.Rooms.UpdateConfig(c.Request.Context(), c.Param("roomId"), cfg)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handlers) updateRoomStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}
	r, err := h.Rooms.UpdateStatus(c.Request.Context(), c.Param("roomId"), body.Status)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handlers) updateRoomRoles(c *gin.Context) {
	var body struct {
		Roles map[string]storage.RoleTemplate `json:"roles" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}
	r, err := h.Rooms.UpdateRoles(c.Request.Context(), c.Param("roomId"), body.Roles)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handlers) updateRoomAnonymous(c *gin.Context) {
	var body struct {
		Anonymous map[string]bool `json:"anonymous" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}
	r, err := h.Rooms.UpdateAnonymous(c.Request.Context(), c.Param("roomId"), body.Anonymous)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
