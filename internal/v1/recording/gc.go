package recording

import (
	"context"
	"strings"
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/logging"
	"go.uber.org/zap"
)

const recordingActiveLockPrefix = "recording_active_"

// OrphanLockGC runs once per scheduler tick (default every minute, spec
// §4.9): every recording_active_* lock older than the grace period is
// checked against the media adapter; if no in-progress egress exists for
// that room, the lock is released. Errors are logged and the next lock is
// processed.
func (s *Service) OrphanLockGC(ctx context.Context) {
	names, err := s.locks.FindByPrefix(ctx, recordingActiveLockPrefix)
	if err != nil {
		logging.Error(ctx, "recording: orphan-lock GC listing failed", zap.Error(err))
		return
	}

	now := time.Now()
	for _, name := range names {
		roomID := strings.TrimPrefix(name, recordingActiveLockPrefix)

		createdAt, held, err := s.locks.CreatedAt(ctx, name)
		if err != nil {
			logging.Warn(ctx, "recording: orphan-lock GC could not read lock age", zap.String("room_id", roomID), zap.Error(err))
			continue
		}
		if !held || now.Sub(createdAt) < s.gcGracePeriod {
			continue
		}

		egresses, err := s.media.GetInProgressRecordingsEgress(ctx, roomID)
		if err != nil {
			logging.Warn(ctx, "recording: orphan-lock GC media check failed", zap.String("room_id", roomID), zap.Error(err))
			continue
		}
		if len(egresses) > 0 {
			continue
		}

		if err := s.locks.ForceRelease(ctx, name); err != nil {
			logging.Warn(ctx, "recording: orphan-lock GC release failed", zap.String("room_id", roomID), zap.Error(err))
		}
	}
}
