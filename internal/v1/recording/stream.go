package recording

import (
	"context"
	"strconv"
	"strings"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// ByteRange is a parsed "Range: bytes=start-end" request (spec §4.9,
// §8 scenario 5). End is optional on the wire; ParseByteRange defaults it to
// start+5MiB, capped by the caller to fileSize-1.
type ByteRange struct {
	Start int64
	End   int64 // 0 means "not specified"; caller defaults/caps it
}

const defaultRangeSpan = 5 * 1024 * 1024

// ParseByteRange parses a "bytes=start-end" header value. end is optional
// and defaults to start + 5MiB.
func ParseByteRange(header string) (ByteRange, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return ByteRange{}, false
	}
	spec := strings.TrimPrefix(header, prefix)
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 || parts[0] == "" {
		return ByteRange{}, false
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, false
	}
	if parts[1] == "" {
		return ByteRange{Start: start, End: start + defaultRangeSpan}, true
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < start {
		return ByteRange{}, false
	}
	return ByteRange{Start: start, End: end}, true
}

// GetAsStream opens a recording's media file for streaming, optionally
// scoped to a byte range (spec §4.9's getRecordingAsStream).
func (s *Service) GetAsStream(ctx context.Context, recordingID string, rng *ByteRange) (*storage.MediaRange, error) {
	roomID, egressID, ok := splitRecordingID(recordingID)
	if !ok {
		return nil, apierr.Validationf("INVALID_RECORDING_ID", "recordingId %q is malformed", recordingID)
	}

	metaKey := s.store.Keys().RecordingMeta(roomID, egressID, egressID)
	rec, err := s.store.Recordings.Get(ctx, metaKey)
	if err != nil {
		return nil, err
	}

	if rng == nil {
		return s.store.ObjectStore().OpenMediaRange(rec.StoragePath, false, 0, 0)
	}
	return s.store.ObjectStore().OpenMediaRange(rec.StoragePath, true, rng.Start, rng.End)
}
