package webhook

import (
	"context"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/logging"
	"go.uber.org/zap"
)

func (s *Sink) handleRoomStarted(ctx context.Context, evt event) error {
	if evt.Room == nil || evt.Room.Name == "" {
		return apierr.Validationf("WEBHOOK_MISSING_ROOM", "room_started delivery is missing room.name")
	}
	if err := s.rooms.HandleMeetingStarted(ctx, evt.Room.Name); err != nil {
		return ignoreUnknownRoom(ctx, evt.Room.Name, err)
	}
	return nil
}

// handleRoomFinished consumes meetingEndAction via the Room Service's own
// idempotent transition, then unconditionally releases the room's
// recording_active lock (spec §4.4: "release any remaining") — a meeting
// ending is a stronger signal than any one egress_ended delivery, and may
// race ahead of it.
func (s *Sink) handleRoomFinished(ctx context.Context, evt event) error {
	if evt.Room == nil || evt.Room.Name == "" {
		return apierr.Validationf("WEBHOOK_MISSING_ROOM", "room_finished delivery is missing room.name")
	}
	if err := s.rooms.HandleMeetingEnded(ctx, evt.Room.Name); err != nil {
		if err := ignoreUnknownRoom(ctx, evt.Room.Name, err); err != nil {
			return err
		}
	}

	var names lock.Names
	return s.locks.ForceRelease(ctx, names.RecordingActive(evt.Room.Name))
}

func (s *Sink) handleEgressStarted(ctx context.Context, evt event) error {
	if evt.EgressInfo == nil || evt.EgressInfo.RoomName == "" || evt.EgressInfo.EgressID == "" {
		return apierr.Validationf("WEBHOOK_MISSING_EGRESS", "egress_started delivery is missing egressInfo")
	}
	return s.recordings.HandleEgressStarted(ctx, evt.EgressInfo.RoomName, evt.EgressInfo.EgressID)
}

func (s *Sink) handleEgressUpdated(ctx context.Context, evt event) error {
	if evt.EgressInfo == nil || evt.EgressInfo.RoomName == "" || evt.EgressInfo.EgressID == "" {
		return apierr.Validationf("WEBHOOK_MISSING_EGRESS", "egress_updated delivery is missing egressInfo")
	}
	var sizeBytes, durationMs int64
	if evt.EgressInfo.File != nil {
		sizeBytes = evt.EgressInfo.File.Size
		durationMs = evt.EgressInfo.File.Duration / 1_000_000
	}
	return s.recordings.HandleEgressUpdated(ctx, evt.EgressInfo.RoomName, evt.EgressInfo.EgressID, sizeBytes, durationMs)
}

func (s *Sink) handleEgressEnded(ctx context.Context, evt event) error {
	if evt.EgressInfo == nil || evt.EgressInfo.RoomName == "" || evt.EgressInfo.EgressID == "" {
		return apierr.Validationf("WEBHOOK_MISSING_EGRESS", "egress_ended delivery is missing egressInfo")
	}
	var sizeBytes, durationMs int64
	if evt.EgressInfo.File != nil {
		sizeBytes = evt.EgressInfo.File.Size
		durationMs = evt.EgressInfo.File.Duration / 1_000_000
	}
	failed := evt.EgressInfo.Status != egressStatusComplete
	return s.recordings.HandleEgressEnded(ctx, evt.EgressInfo.RoomName, evt.EgressInfo.EgressID, sizeBytes, durationMs, failed)
}

// ignoreUnknownRoom logs and swallows a NotFound room error (spec §4.4:
// "webhooks for unknown rooms/recordings are logged and acknowledged"),
// propagating anything else.
func ignoreUnknownRoom(ctx context.Context, roomID string, err error) error {
	if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.NotFound {
		logging.Info(ctx, "webhook: delivery for unknown room acknowledged", zap.String("room_id", roomID))
		return nil
	}
	return err
}
