package recording

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/media"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// recordingActivePayload is what the webhook sink publishes on
// RecordingActiveEvent; Start filters on RecordingID to avoid the
// cross-recording misdirection a bare topic subscription would invite (spec
// §9: prefer an explicit predicate over deep "once" listener chains).
type recordingActivePayload struct {
	RecordingID string `json:"recordingId"`
}

// Start begins a recording for roomID inside the per-room critical section
// guarded by recording_active_{roomId} (spec §4.9).
func (s *Service) Start(ctx context.Context, roomID string) (*storage.Recording, error) {
	_, err := s.store.Rooms.Get(ctx, s.store.Keys().Room(roomID))
	if err == storage.ErrNotFound {
		return nil, apierr.NotFoundf("ROOM_NOT_FOUND", "room %q not found", roomID)
	}
	if err != nil {
		return nil, err
	}

	info, err := s.media.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if info == nil || info.NumParticipants < 1 {
		return nil, apierr.Conflictf("ROOM_HAS_NO_PARTICIPANTS", "room %q has no participants", roomID)
	}

	var names lock.Names
	lockName := names.RecordingActive(roomID)
	l, err := s.locks.Acquire(ctx, lockName, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, apierr.Conflictf("RECORDING_ALREADY_STARTED", "room %q already has a recording in progress", roomID)
	}

	rec, err := s.startEgress(ctx, roomID)
	if err != nil {
		// ctx may already be canceled here (startEgress's ctx.Done() path);
		// releasing with it would fail fast against Redis and leak the lock
		// until its TTL expires, so cleanup always uses a detached context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.locks.Release(releaseCtx, l)
		cancel()
		return nil, err
	}
	return rec, nil
}

func (s *Service) startEgress(ctx context.Context, roomID string) (*storage.Recording, error) {
	egress, err := s.media.StartRoomComposite(ctx, roomID, media.FileOutput{}, media.CompositeOptions{})
	if err != nil {
		return nil, err
	}

	recordingID := recordingIDFor(roomID, egress.EgressID)
	ext := "mp4"
	path := s.store.ObjectStore().MediaPath(roomID, egress.EgressID, ext)

	rec := &storage.Recording{
		RecordingID: recordingID,
		RoomID:      roomID,
		EgressID:    egress.EgressID,
		Status:      StatusStarting,
		StartedAt:   time.Now(),
		StoragePath: path,
		Encoding:    ext,
	}
	metaKey := s.store.Keys().RecordingMeta(roomID, egress.EgressID, egress.EgressID)
	if err := s.store.Recordings.Put(ctx, metaKey, rec); err != nil {
		return nil, err
	}

	active := make(chan struct{})
	var activeOnce sync.Once
	cancelListener := s.events.On(RecordingActiveEvent, func(raw json.RawMessage) {
		var payload recordingActivePayload
		if err := json.Unmarshal(raw, &payload); err != nil || payload.RecordingID != recordingID {
			return
		}
		activeOnce.Do(func() { close(active) })
	})
	defer cancelListener()

	timeout := time.NewTimer(s.startTimeout)
	defer timeout.Stop()

	select {
	case <-active:
		rec.Status = StatusActive
		if err := s.store.Recordings.Put(ctx, metaKey, rec); err != nil {
			return nil, err
		}
		return rec, nil

	case <-timeout.C:
		cancelListener()
		_ = s.media.StopEgress(ctx, egress.EgressID)
		rec.Status = StatusFailed
		_ = s.store.Recordings.Put(ctx, metaKey, rec)
		return nil, apierr.Conflictf("RECORDING_START_TIMEOUT", "recording %q did not become active within %s", recordingID, s.startTimeout)

	case <-ctx.Done():
		cancelListener()
		// ctx is already canceled; stopping the egress and persisting the
		// aborted status must not inherit that cancellation.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.media.StopEgress(cleanupCtx, egress.EgressID)
		rec.Status = StatusAborted
		_ = s.store.Recordings.Put(cleanupCtx, metaKey, rec)
		cancel()
		return nil, ctx.Err()
	}
}
