package recording

import (
	"context"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// Get returns a recording's metadata by recordingId (spec §6:
// GET /api/v1/recordings/{id}).
func (s *Service) Get(ctx context.Context, recordingID string) (*storage.Recording, error) {
	roomID, egressID, ok := splitRecordingID(recordingID)
	if !ok {
		return nil, apierr.Validationf("INVALID_RECORDING_ID", "recordingId %q is malformed", recordingID)
	}

	rec, err := s.store.Recordings.Get(ctx, s.store.Keys().RecordingMeta(roomID, egressID, egressID))
	if err == storage.ErrNotFound {
		return nil, apierr.NotFoundf("RECORDING_NOT_FOUND", "recording %q not found", recordingID)
	}
	return rec, err
}

// ListFilters narrows a recording listing to a single room, mirroring
// room.ListFilters (spec §6: GET /api/v1/recordings).
type ListFilters struct {
	RoomID string
}

// List returns a page of recordings, optionally scoped to a room. It lists
// keys directly from the object store rather than through Repository.List
// for the same reason room.Service.List does: the metadata prefix is
// hierarchical ("recordings/.metadata/{roomId}/{egressId}/{uid}.json") and
// Repository.List has no notion of recursing into it.
func (s *Service) List(ctx context.Context, filters ListFilters, maxItems int, cursor string) ([]*storage.Recording, string, error) {
	if maxItems <= 0 || maxItems > 100 {
		maxItems = 100
	}

	prefix := s.store.Keys().RecordingMetaPrefix()
	if filters.RoomID != "" {
		prefix = s.store.Keys().RecordingMetaRoomPrefix(filters.RoomID)
	}

	var out []*storage.Recording
	nextCursor := cursor
	for len(out) < maxItems {
		page, err := s.store.ObjectStore().List(ctx, prefix, maxItems, nextCursor)
		if err != nil {
			return nil, "", err
		}
		for _, key := range page.Keys {
			rec, err := s.store.Recordings.Get(ctx, key)
			if err == storage.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, "", err
			}
			out = append(out, rec)
			if len(out) >= maxItems {
				break
			}
		}
		if page.NextCursor == "" {
			nextCursor = ""
			break
		}
		nextCursor = page.NextCursor
	}
	return out, nextCursor, nil
}
