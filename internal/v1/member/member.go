// Package member implements the Member Service (spec §4.10): durable
// principal<->room associations, effectivePermissions recomputation via the
// Permission Engine, and kicking a member's live participant on delete.
package member

import (
	"context"
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/media"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/room"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// Service implements member CRUD. It depends on storage, the media adapter
// (to kick a live participant on delete) and the room package's exported
// permission-resolution helpers (spec §4.7) — never its own copy of the
// Permission Engine overlay, keeping one source of truth with the Room
// Service's room-level default view.
type Service struct {
	store *storage.Store
	media media.Adapter
}

// NewService constructs a member Service.
func NewService(store *storage.Store, mediaAdapter media.Adapter) *Service {
	return &Service{store: store, media: mediaAdapter}
}

// CreateOptions is the caller-supplied shape for Create (spec §4.10).
type CreateOptions struct {
	RoomID            string
	UserID            string // non-empty for a registered user; memberId = userId
	Name              string
	BaseRole          string
	CustomPermissions map[string]any
}

// BulkDeleteResult is the aggregated outcome of a bulk delete (spec §4.10).
type BulkDeleteResult struct {
	Deleted []string             `json:"deleted"`
	Failed  []BulkDeleteFailure  `json:"failed"`
}

// BulkDeleteFailure names one member a bulk delete could not process.
type BulkDeleteFailure struct {
	MemberID string `json:"memberId"`
	Error    string `json:"error"`
}

func generateMemberID(userID string) string {
	if userID != "" {
		return userID
	}
	return "ext-" + room.RandomSuffix(12)
}

// Create registers a member against a room, computing memberId and
// effectivePermissions (spec §4.10).
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*storage.RoomMember, error) {
	r, err := s.store.Rooms.Get(ctx, s.store.Keys().Room(opts.RoomID))
	if err == storage.ErrNotFound {
		return nil, apierr.NotFoundf("ROOM_NOT_FOUND", "room %q not found", opts.RoomID)
	}
	if err != nil {
		return nil, err
	}

	memberID := generateMemberID(opts.UserID)
	key := s.store.Keys().Member(opts.RoomID, memberID)
	if _, err := s.store.Members.Get(ctx, key); err == nil {
		return nil, apierr.Conflictf("MEMBER_ALREADY_EXISTS", "member %q already exists in room %q", memberID, opts.RoomID)
	} else if err != storage.ErrNotFound {
		return nil, err
	}

	eff := room.ResolveEffectivePermissions(r.Roles, opts.BaseRole, opts.CustomPermissions)
	m := &storage.RoomMember{
		MemberID:             memberID,
		RoomID:               opts.RoomID,
		Name:                 opts.Name,
		BaseRole:             opts.BaseRole,
		CustomPermissions:    opts.CustomPermissions,
		EffectivePermissions: eff.ToMap(),
		PermissionsUpdatedAt: time.Now().UnixNano(),
	}
	if err := s.store.Members.Put(ctx, key, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByID loads a member by (roomId, memberId).
func (s *Service) GetByID(ctx context.Context, roomID, memberID string) (*storage.RoomMember, error) {
	m, err := s.store.Members.Get(ctx, s.store.Keys().Member(roomID, memberID))
	if err == storage.ErrNotFound {
		return nil, apierr.NotFoundf("MEMBER_NOT_FOUND", "member %q not found in room %q", memberID, roomID)
	}
	return m, err
}

// List returns a page of members for a room.
func (s *Service) List(ctx context.Context, roomID string, maxItems int, cursor string) ([]*storage.RoomMember, string, error) {
	if maxItems <= 0 || maxItems > 100 {
		maxItems = 100
	}
	return s.store.Members.List(ctx, s.store.Keys().MemberPrefix(roomID), maxItems, cursor)
}

// UpdateOptions is the caller-supplied shape for Update (spec §4.10); a nil
// pointer field means "leave unchanged".
type UpdateOptions struct {
	Name              *string
	BaseRole          *string
	CustomPermissions map[string]any
	CustomPermissionsSet bool // distinguishes "clear overrides" from "field omitted"
}

// Update mutates a member and, if baseRole or customPermissions changed,
// recomputes effectivePermissions and bumps permissionsUpdatedAt —
// invalidating that member's outstanding tokens by construction (spec
// §4.10, §4.6).
func (s *Service) Update(ctx context.Context, roomID, memberID string, opts UpdateOptions) (*storage.RoomMember, error) {
	m, err := s.GetByID(ctx, roomID, memberID)
	if err != nil {
		return nil, err
	}
	r, err := s.store.Rooms.Get(ctx, s.store.Keys().Room(roomID))
	if err != nil {
		return nil, err
	}

	permissionsChanged := false
	if opts.Name != nil {
		m.Name = *opts.Name
	}
	if opts.BaseRole != nil && *opts.BaseRole != m.BaseRole {
		m.BaseRole = *opts.BaseRole
		permissionsChanged = true
	}
	if opts.CustomPermissionsSet {
		m.CustomPermissions = opts.CustomPermissions
		permissionsChanged = true
	}

	if permissionsChanged {
		eff := room.ResolveEffectivePermissions(r.Roles, m.BaseRole, m.CustomPermissions)
		m.EffectivePermissions = eff.ToMap()
		m.PermissionsUpdatedAt = time.Now().UnixNano()
	}

	key := s.store.Keys().Member(roomID, memberID)
	if err := s.store.Members.Put(ctx, key, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes a member and, if currently joined, kicks its participant
// (spec §4.10).
func (s *Service) Delete(ctx context.Context, roomID, memberID string) error {
	m, err := s.GetByID(ctx, roomID, memberID)
	if err != nil {
		return err
	}
	if m.CurrentParticipantIdentity != "" {
		if err := s.media.RemoveParticipant(ctx, roomID, m.CurrentParticipantIdentity); err != nil {
			if apiErr, ok := apierr.As(err); !ok || apiErr.Kind != apierr.NotFound {
				return err
			}
		}
	}
	return s.store.Members.Delete(ctx, s.store.Keys().Member(roomID, memberID))
}

// BulkDelete deletes each (deduplicated) member, aggregating into
// {deleted[], failed[]} (spec §4.10).
func (s *Service) BulkDelete(ctx context.Context, roomID string, memberIDs []string) BulkDeleteResult {
	seen := make(map[string]bool, len(memberIDs))
	result := BulkDeleteResult{}
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		if err := s.Delete(ctx, roomID, id); err != nil {
			msg := err.Error()
			if apiErr, ok := apierr.As(err); ok {
				msg = apiErr.Message
			}
			result.Failed = append(result.Failed, BulkDeleteFailure{MemberID: id, Error: msg})
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}
	return result
}
