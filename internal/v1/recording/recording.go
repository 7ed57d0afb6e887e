// Package recording implements the Recording Service (spec §4.9): start/stop
// coordination via the Lock Manager and Event Bus, delete/bulk delete,
// streaming range reads and the orphan-lock garbage collector.
package recording

import (
	"fmt"
	"strings"
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/bus"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/media"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// Recording states (spec §4.9). Any state may transition to failed/aborted
// on adapter errors or timeouts.
const (
	StatusStarting = "starting"
	StatusActive   = "active"
	StatusEnding   = "ending"
	StatusComplete = "complete"
	StatusFailed   = "failed"
	StatusAborted  = "aborted"
)

// RecordingActiveEvent is published on the bus once startRoomComposite's
// egress reports EGRESS_ACTIVE, keyed by recordingId (spec §4.9 step 5).
const RecordingActiveEvent = "RECORDING_ACTIVE"

// EgressEndedEvent is published by the webhook sink on egress_ended
// (spec §4.9: the recording_active lock is released there, not inline).
const EgressEndedEvent = "EGRESS_ENDED"

// Service implements recording start/stop/delete/stream and the orphan-lock
// GC, depending only on the narrow Storage/Media/Lock/Bus abstractions
// (spec §9: break RecordingService/RoomService/MediaAdapter cyclic
// ownership with a narrow interface).
type Service struct {
	store  *storage.Store
	media  media.Adapter
	locks  *lock.Manager
	events *bus.Bus

	lockTTL       time.Duration
	startTimeout  time.Duration
	gcGracePeriod time.Duration
}

// Config bundles the knobs Service needs beyond its collaborators.
type Config struct {
	LockTTL       time.Duration
	StartTimeout  time.Duration
	GCGracePeriod time.Duration
}

// NewService constructs a recording Service.
func NewService(store *storage.Store, mediaAdapter media.Adapter, locks *lock.Manager, events *bus.Bus, cfg Config) *Service {
	return &Service{
		store:         store,
		media:         mediaAdapter,
		locks:         locks,
		events:        events,
		lockTTL:       cfg.LockTTL,
		startTimeout:  cfg.StartTimeout,
		gcGracePeriod: cfg.GCGracePeriod,
	}
}

// BulkDeleteResult is the aggregated outcome of a bulk delete (spec §4.9).
type BulkDeleteResult struct {
	Deleted    []string             `json:"deleted"`
	NotDeleted []BulkDeleteFailure  `json:"notDeleted"`
}

// BulkDeleteFailure names one recording a bulk delete could not process.
type BulkDeleteFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// recordingIDFor composes the persisted-layout recordingId from its parts
// (spec §6, §8 scenario 1: "demo-xxxx--<egressId>"). The media-server
// egressId doubles as the "uid" in the persisted recording/media key scheme,
// so a recordingId alone is enough to locate both the metadata record and
// the media file.
func recordingIDFor(roomID, egressID string) string {
	return fmt.Sprintf("%s--%s", roomID, egressID)
}

// splitRecordingID parses a recordingId into (roomID, egressID), per §4.9's
// stop path. roomIds never contain "--" (ids.go's generator joins prefix and
// random suffix with a single "-").
func splitRecordingID(recordingID string) (roomID, egressID string, ok bool) {
	idx := strings.LastIndex(recordingID, "--")
	if idx < 0 {
		return "", "", false
	}
	return recordingID[:idx], recordingID[idx+2:], true
}
