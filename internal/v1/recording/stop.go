package recording

import (
	"context"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// Stop ends an in-progress recording (spec §4.9). The recording_active lock
// is released by the webhook sink on egress_ended, not here, to keep
// start/stop correctness across replicas. A recording still in "starting"
// means Start's own wait (timeout + RECORDING_ACTIVE listener) has not yet
// resolved in this or another replica; Stop rejects rather than racing it.
func (s *Service) Stop(ctx context.Context, recordingID string) (*storage.Recording, error) {
	roomID, egressID, ok := splitRecordingID(recordingID)
	if !ok {
		return nil, apierr.Validationf("INVALID_RECORDING_ID", "recordingId %q is malformed", recordingID)
	}

	metaKey := s.store.Keys().RecordingMeta(roomID, egressID, egressID)
	rec, err := s.store.Recordings.Get(ctx, metaKey)
	if err != nil {
		return nil, err
	}

	egress, err := s.media.GetEgress(ctx, roomID, egressID)
	if err != nil {
		return nil, err
	}

	switch egress.Status {
	case "EGRESS_ACTIVE":
		if err := s.media.StopEgress(ctx, egressID); err != nil {
			return nil, err
		}
		rec.Status = StatusEnding
		if err := s.store.Recordings.Put(ctx, metaKey, rec); err != nil {
			return nil, err
		}
		return rec, nil
	case "EGRESS_STARTING":
		return nil, apierr.Conflictf("CANNOT_BE_STOPPED_WHILE_STARTING", "recording %q is still starting", recordingID)
	default:
		return nil, apierr.Conflictf("ALREADY_STOPPED", "recording %q is already stopped", recordingID)
	}
}

// HandleEgressEnded applies the webhook sink's egress_ended delivery: marks
// the recording terminal and releases the room's recording_active lock
// (spec §4.9). Idempotent: a recording already in a terminal state is left
// untouched.
func (s *Service) HandleEgressEnded(ctx context.Context, roomID, egressID string, sizeBytes, durationMs int64, failed bool) error {
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
	if failed {
		rec.Status = StatusFailed
	} else {
		rec.Status = StatusComplete
	}
	if err := s.store.Recordings.Put(ctx, metaKey, rec); err != nil {
		return err
	}

	var names lock.Names
	return s.locks.ForceRelease(ctx, names.RecordingActive(roomID))
}

func isTerminal(status string) bool {
	switch status {
	case StatusComplete, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}
