package room

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// Create mints a roomId, seeds role templates/anonymous access and persists
// a new room (spec §4.8).
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*storage.Room, error) {
	if opts.AutoDeletionDate != nil {
		if time.Until(*opts.AutoDeletionDate) < s.minAutoDeletionLead {
			return nil, apierr.Validationf("AUTO_DELETION_DATE_TOO_SOON", "autoDeletionDate must be at least %s in the future", s.minAutoDeletionLead)
		}
	}

	roomID := generateRoomID(opts.RoomNamePrefix, s.roomIDRandomLength)

	roles := opts.Roles
	if roles == nil {
		roles = map[string]storage.RoleTemplate{}
	}

	anonymous := map[string]storage.AnonymousAccess{}
	for r, enabled := range opts.Anonymous {
		entry := storage.AnonymousAccess{Enabled: enabled, Role: r}
		if enabled {
			entry.Secret = GenerateSecret()
			entry.AccessURL = fmt.Sprintf("%s/%s?secret=%s", s.baseURL, roomID, entry.Secret)
		}
		anonymous[r] = entry
	}

	now := time.Now()
	rec := &storage.Room{
		RoomID:               roomID,
		RoomName:             opts.RoomNamePrefix,
		CreatedAt:            now,
		AutoDeletionDate:     opts.AutoDeletionDate,
		AutoDeletionPolicy:   opts.AutoDeletionPolicy,
		Config:               opts.Config,
		Roles:                roles,
		Anonymous:            anonymous,
		Status:               StatusOpen,
		PermissionsUpdatedAt: now.UnixNano(),
	}

	if err := s.store.Rooms.Put(ctx, s.store.Keys().Room(roomID), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByID loads a room by id.
func (s *Service) GetByID(ctx context.Context, roomID string) (*storage.Room, error) {
	r, err := s.store.Rooms.Get(ctx, s.store.Keys().Room(roomID))
	if err == storage.ErrNotFound {
		return nil, apierr.NotFoundf("ROOM_NOT_FOUND", "room %q not found", roomID)
	}
	return r, err
}

// ListFilters narrows a room listing (spec §6: maxItems, nextPageToken are
// handled by the caller; ListFilters covers the remaining query params).
type ListFilters struct {
	Status string
}

// List returns a page of rooms matching filters. It lists keys directly
// from the object store rather than through Repository.List, because
// "rooms/{roomId}" and "rooms/{roomId}/members/{memberId}" share the same
// "rooms/" prefix (spec §6's persisted layout) and only the former names a
// room record.
func (s *Service) List(ctx context.Context, filters ListFilters, maxItems int, cursor string) ([]*storage.Room, string, error) {
	if maxItems <= 0 || maxItems > 100 {
		maxItems = 100
	}

	var out []*storage.Room
	nextCursor := cursor
	for len(out) < maxItems {
		page, err := s.store.ObjectStore().List(ctx, s.store.Keys().RoomPrefix(), maxItems, nextCursor)
		if err != nil {
			return nil, "", err
		}
		for _, key := range page.Keys {
			if !isRoomKey(key) {
				continue
			}
			r, err := s.store.Rooms.Get(ctx, key)
			if err == storage.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, "", err
			}
			if filters.Status != "" && r.Status != filters.Status {
				continue
			}
			out = append(out, r)
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

// UpdateConfig replaces a room's feature-toggle config. Config changes alone
// never invalidate member tokens (spec §4.6).
func (s *Service) UpdateConfig(ctx context.Context, roomID string, cfg storage.RoomConfig) (*storage.Room, error) {
	r, err := s.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	r.Config = cfg
	if err := s.store.Rooms.Put(ctx, s.store.Keys().Room(roomID), r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateRoles replaces role templates and bumps permissionsUpdatedAt,
// invalidating all outstanding member tokens for this room (spec §4.6, §4.8).
func (s *Service) UpdateRoles(ctx context.Context, roomID string, roles map[string]storage.RoleTemplate) (*storage.Room, error) {
	r, err := s.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	r.Roles = roles
	r.PermissionsUpdatedAt = time.Now().UnixNano()
	if err := s.store.Rooms.Put(ctx, s.store.Keys().Room(roomID), r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateAnonymous replaces the anonymous-access entries and bumps
// permissionsUpdatedAt (an anonymous token's scope is keyed off the role's
// entry, so this must invalidate exactly like UpdateRoles).
func (s *Service) UpdateAnonymous(ctx context.Context, roomID string, anonymous map[string]bool) (*storage.Room, error) {
	r, err := s.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	updated := map[string]storage.AnonymousAccess{}
	for role, enabled := range anonymous {
		existing := r.Anonymous[role]
		entry := storage.AnonymousAccess{Enabled: enabled, Role: role}
		if enabled {
			if existing.Enabled && existing.Secret != "" {
				entry.Secret = existing.Secret
			} else {
				entry.Secret = GenerateSecret()
			}
			entry.AccessURL = fmt.Sprintf("%s/%s?secret=%s", s.baseURL, roomID, entry.Secret)
		}
		updated[role] = entry
	}
	r.Anonymous = updated
	r.PermissionsUpdatedAt = time.Now().UnixNano()
	if err := s.store.Rooms.Put(ctx, s.store.Keys().Room(roomID), r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateStatus performs an explicit open<->closed transition (spec §3). It
// is rejected while a meeting is active; that transition is driven only by
// webhooks/GCs.
func (s *Service) UpdateStatus(ctx context.Context, roomID string, status string) (*storage.Room, error) {
	if status != StatusOpen && status != StatusClosed {
		return nil, apierr.Validationf("INVALID_ROOM_STATUS", "status must be %q or %q", StatusOpen, StatusClosed)
	}
	r, err := s.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusActiveMeeting {
		return nil, apierr.Conflictf("ROOM_HAS_ACTIVE_MEETING", "room %q has an active meeting; status is driven by the meeting lifecycle", roomID)
	}
	r.Status = status
	if err := s.store.Rooms.Put(ctx, s.store.Keys().Room(roomID), r); err != nil {
		return nil, err
	}
	return r, nil
}
