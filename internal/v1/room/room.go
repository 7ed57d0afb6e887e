// Package room implements the Room Service (spec §4.8): CRUD, the status
// machine, the deletion policy engine and the Expiration/Status-consistency
// garbage collectors.
package room

import (
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/bus"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/media"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// Room lifecycle states (spec §3).
const (
	StatusOpen          = "open"
	StatusActiveMeeting = "active_meeting"
	StatusClosed        = "closed"
)

// meetingEndAction values, consumed exactly once when a meeting ends.
const (
	MeetingEndActionNone   = "none"
	MeetingEndActionClose  = "close"
	MeetingEndActionDelete = "delete"
)

// autoDeletionPolicy branches (spec §3, §4.8).
const (
	WithMeetingForce            = "force"
	WithMeetingWhenMeetingEnds  = "when_meeting_ends"
	WithMeetingFail             = "fail"
	WithRecordingsForce         = "force"
	WithRecordingsClose         = "close"
	WithRecordingsFail          = "fail"
)

// Service implements room CRUD, the deletion decision table and the two
// scheduled GCs. It depends only on the narrow Storage/Media/Lock/Bus
// abstractions, never on a concrete transport (spec §9: break cyclic
// ownership between RoomService/RecordingService/MediaAdapter with a narrow
// interface).
type Service struct {
	store  *storage.Store
	media  media.Adapter
	locks  *lock.Manager
	events *bus.Bus

	baseURL             string
	roomIDRandomLength  int
	minAutoDeletionLead time.Duration
}

// Config bundles the knobs Service needs beyond its collaborators.
type Config struct {
	BaseURL             string
	RoomIDRandomLength  int
	MinAutoDeletionLead time.Duration
}

// NewService constructs a room Service.
func NewService(store *storage.Store, mediaAdapter media.Adapter, locks *lock.Manager, events *bus.Bus, cfg Config) *Service {
	return &Service{
		store:               store,
		media:               mediaAdapter,
		locks:               locks,
		events:              events,
		baseURL:             cfg.BaseURL,
		roomIDRandomLength:  cfg.RoomIDRandomLength,
		minAutoDeletionLead: cfg.MinAutoDeletionLead,
	}
}

// CreateOptions is the caller-supplied shape for Create (spec §4.8).
type CreateOptions struct {
	RoomNamePrefix     string
	Config             storage.RoomConfig
	Roles              map[string]storage.RoleTemplate
	Anonymous          map[string]bool // role -> enabled
	AutoDeletionDate   *time.Time
	AutoDeletionPolicy string
}

// BulkDeleteResult is the aggregated outcome of a bulk delete (spec §4.8).
type BulkDeleteResult struct {
	Successful []string              `json:"successful"`
	Failed     []BulkDeleteFailure   `json:"failed"`
}

// BulkDeleteFailure names one room that a bulk delete could not process.
type BulkDeleteFailure struct {
	RoomID  string `json:"roomId"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// isRoomKey reports whether a key returned under Keys{}.RoomPrefix() names a
// room record itself rather than one of its nested member records — both
// share the "rooms/" prefix ("rooms/{roomId}" vs
// "rooms/{roomId}/members/{memberId}"), so listing must filter.
func isRoomKey(key string) bool {
	count := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			count++
		}
	}
	return count == 1
}
