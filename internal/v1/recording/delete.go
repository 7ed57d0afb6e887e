package recording

import (
	"context"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
)

// Delete removes a recording's metadata and media file (spec §4.9). Only a
// terminal recording can be deleted; if this was the last recording under
// the room's metadata directory, the room's media directory is pruned too.
func (s *Service) Delete(ctx context.Context, recordingID string) error {
	roomID, egressID, ok := splitRecordingID(recordingID)
	if !ok {
		return apierr.Validationf("INVALID_RECORDING_ID", "recordingId %q is malformed", recordingID)
	}

	metaKey := s.store.Keys().RecordingMeta(roomID, egressID, egressID)
	rec, err := s.store.Recordings.Get(ctx, metaKey)
	if err != nil {
		return err
	}
	if !isTerminal(rec.Status) {
		return apierr.Conflictf("NOT_STOPPED", "recording %q is not in a terminal state", recordingID)
	}

	if err := s.store.ObjectStore().DeleteMedia(rec.StoragePath); err != nil {
		return err
	}
	if err := s.store.Recordings.Delete(ctx, metaKey); err != nil {
		return err
	}

	page, err := s.store.ObjectStore().List(ctx, s.store.Keys().RecordingMetaRoomPrefix(roomID), 1, "")
	if err != nil {
		return err
	}
	if len(page.Keys) == 0 {
		return s.store.ObjectStore().DeleteMediaDir(roomID)
	}
	return nil
}

// BulkDelete deletes each (deduplicated) recording id, aggregating into
// {deleted[], notDeleted[{id, error}]} (spec §4.9).
func (s *Service) BulkDelete(ctx context.Context, recordingIDs []string) BulkDeleteResult {
	seen := make(map[string]bool, len(recordingIDs))
	result := BulkDeleteResult{}
	for _, id := range recordingIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		if err := s.Delete(ctx, id); err != nil {
			msg := err.Error()
			if apiErr, ok := apierr.As(err); ok {
				msg = apiErr.Message
			}
			result.NotDeleted = append(result.NotDeleted, BulkDeleteFailure{ID: id, Error: msg})
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}
	return result
}
