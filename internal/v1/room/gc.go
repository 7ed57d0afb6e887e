package room

import (
	"context"
	"strings"
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/logging"
	"go.uber.org/zap"
)

// parseAutoDeletionPolicy splits the persisted "withMeeting=X,withRecordings=Y"
// encoding into its two branches, defaulting to the fail-safe per DESIGN.md's
// Open Question decision when a branch is missing or the whole field is empty.
func parseAutoDeletionPolicy(policy string) (withMeeting, withRecordings string) {
	withMeeting, withRecordings = WithMeetingFail, WithRecordingsFail
	for _, part := range strings.Split(policy, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "withMeeting":
			withMeeting = kv[1]
		case "withRecordings":
			withRecordings = kv[1]
		}
	}
	return withMeeting, withRecordings
}

// ExpirationGC runs once per scheduler tick (default every minute, spec
// §4.8): rooms whose autoDeletionDate has passed are deleted as if a
// matching delete request arrived, using the room's own autoDeletionPolicy.
func (s *Service) ExpirationGC(ctx context.Context) {
	now := time.Now()
	cursor := ""
	for {
		rooms, next, err := s.List(ctx, ListFilters{}, 100, cursor)
		if err != nil {
			logging.Error(ctx, "room: expiration GC listing failed", zap.Error(err))
			return
		}
		for _, r := range rooms {
			if r.AutoDeletionDate == nil || r.AutoDeletionDate.After(now) {
				continue
			}
			withMeeting, withRecordings := parseAutoDeletionPolicy(r.AutoDeletionPolicy)
			if _, err := s.Delete(ctx, r.RoomID, withMeeting, withRecordings); err != nil {
				logging.Warn(ctx, "room: expiration GC could not delete room", zap.String("room_id", r.RoomID), zap.Error(err))
			}
		}
		if next == "" {
			return
		}
		cursor = next
	}
}

// StatusConsistencyGC runs once per scheduler tick (default every minute,
// spec §4.8): rooms this replica believes are in active_meeting but which no
// longer exist on the media server are driven through the room_finished
// transition locally, honouring meetingEndAction.
func (s *Service) StatusConsistencyGC(ctx context.Context) {
	cursor := ""
	for {
		rooms, next, err := s.List(ctx, ListFilters{Status: StatusActiveMeeting}, 100, cursor)
		if err != nil {
			logging.Error(ctx, "room: status-consistency GC listing failed", zap.Error(err))
			return
		}
		for _, r := range rooms {
			exists, err := s.media.RoomExists(ctx, r.RoomID)
			if err != nil {
				logging.Warn(ctx, "room: status-consistency GC media check failed", zap.String("room_id", r.RoomID), zap.Error(err))
				continue
			}
			if exists {
				continue
			}
			if err := s.HandleMeetingEnded(ctx, r.RoomID); err != nil {
				logging.Warn(ctx, "room: status-consistency GC transition failed", zap.String("room_id", r.RoomID), zap.Error(err))
			}
		}
		if next == "" {
			return
		}
		cursor = next
	}
}

// HandleMeetingEnded consumes a room's pending meetingEndAction when its
// meeting ends, whether observed via the room_finished webhook or the
// Status-consistency GC (spec §4.4, §4.8). It is idempotent: rooms not in
// active_meeting are left untouched.
func (s *Service) HandleMeetingEnded(ctx context.Context, roomID string) error {
	r, err := s.GetByID(ctx, roomID)
	if err != nil {
		if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.NotFound {
			return nil
		}
		return err
	}
	if r.Status != StatusActiveMeeting {
		return nil
	}

	switch r.MeetingEndAction {
	case MeetingEndActionDelete:
		// The meeting is over, so the deletion runs against a room without an
		// active meeting. A delete is only deferred when the room had no
		// recordings or its recordings were to be deleted with it.
		r.Status = StatusOpen
		if err := s.store.Rooms.Put(ctx, s.store.Keys().Room(roomID), r); err != nil {
			return err
		}
		_, err := s.Delete(ctx, roomID, WithMeetingFail, WithRecordingsForce)
		return err
	case MeetingEndActionClose:
		r.Status = StatusClosed
		r.MeetingEndAction = ""
	default:
		r.Status = StatusOpen
		r.MeetingEndAction = ""
	}
	return s.store.Rooms.Put(ctx, s.store.Keys().Room(roomID), r)
}

// HandleMeetingStarted transitions a room to active_meeting when the media
// server reports its first participant (spec §3, §4.4 room_started).
func (s *Service) HandleMeetingStarted(ctx context.Context, roomID string) error {
	r, err := s.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Status == StatusActiveMeeting {
		return nil
	}
	r.Status = StatusActiveMeeting
	return s.store.Rooms.Put(ctx, s.store.Keys().Room(roomID), r)
}
