package recording

import (
	"context"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// HandleEgressStarted applies the webhook sink's egress_started delivery
// (spec §4.4): it verifies the recording_active lock is still held for the
// room, persists the recording's metadata as active, and broadcasts
// RecordingActiveEvent so a Start call blocked in its select picks it up —
// on this replica directly, and on any other replica via the bus's Redis
// fan-out (spec §4.9 step 5). Idempotent: a recording already marked active
// is left untouched.
func (s *Service) HandleEgressStarted(ctx context.Context, roomID, egressID string) error {
	var names lock.Names
	held, err := s.locks.Exists(ctx, names.RecordingActive(roomID))
	if err != nil {
		return err
	}
	if !held {
		return nil
	}

	metaKey := s.store.Keys().RecordingMeta(roomID, egressID, egressID)
	rec, err := s.store.Recordings.Get(ctx, metaKey)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status == StatusActive {
		return nil
	}

	rec.Status = StatusActive
	if err := s.store.Recordings.Put(ctx, metaKey, rec); err != nil {
		return err
	}

	return s.events.Broadcast(ctx, RecordingActiveEvent, recordingActivePayload{RecordingID: rec.RecordingID})
}

// HandleEgressUpdated applies the webhook sink's egress_updated delivery
// (spec §4.4): it refreshes byte/duration counters with no state transition.
// Terminal status changes arrive on egress_ended instead, so a recording
// already terminal is left untouched.
func (s *Service) HandleEgressUpdated(ctx context.Context, roomID, egressID string, sizeBytes, durationMs int64) error {
	metaKey := s.store.Keys().RecordingMeta(roomID, egressID, egressID)
	rec, err := s.store.Recordings.Get(ctx, metaKey)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if isTerminal(rec.Status) {
		return nil
	}

	rec.SizeBytes = sizeBytes
	rec.DurationMs = durationMs
	return s.store.Recordings.Put(ctx, metaKey, rec)
}
