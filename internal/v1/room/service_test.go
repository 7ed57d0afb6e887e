package room

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/bus"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/media"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// fakeAdapter is a minimal media.Adapter stub: tests configure only the
// methods the Room Service actually calls (DeleteRoom, RoomExists).
type fakeAdapter struct {
	roomExists    bool
	roomExistsErr error
	deleteRoomErr error
	deletedRooms  []string
}

func (f *fakeAdapter) CreateRoom(ctx context.Context, opts media.RoomOptions) (*media.RoomInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) DeleteRoom(ctx context.Context, roomID string) error {
	f.deletedRooms = append(f.deletedRooms, roomID)
	return f.deleteRoomErr
}
func (f *fakeAdapter) ListRooms(ctx context.Context) ([]*media.RoomInfo, error) { return nil, nil }
func (f *fakeAdapter) RoomExists(ctx context.Context, roomID string) (bool, error) {
	return f.roomExists, f.roomExistsErr
}
func (f *fakeAdapter) GetRoom(ctx context.Context, roomID string) (*media.RoomInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) GetParticipant(ctx context.Context, roomID, identity string) (*media.ParticipantInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) RemoveParticipant(ctx context.Context, roomID, identity string) error {
	return nil
}
func (f *fakeAdapter) UpdateParticipantMetadata(ctx context.Context, roomID, identity, metadataJSON string) error {
	return nil
}
func (f *fakeAdapter) SendData(ctx context.Context, roomID string, payload []byte, opts media.DataOptions) error {
	return nil
}
func (f *fakeAdapter) StartRoomComposite(ctx context.Context, roomID string, out media.FileOutput, opts media.CompositeOptions) (*media.EgressInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) StopEgress(ctx context.Context, egressID string) error { return nil }
func (f *fakeAdapter) GetActiveEgress(ctx context.Context, roomID string) (*media.EgressInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) GetEgress(ctx context.Context, roomID, egressID string) (*media.EgressInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) GetInProgressRecordingsEgress(ctx context.Context, roomID string) ([]*media.EgressInfo, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *storage.Store, *fakeAdapter) {
	t.Helper()
	objStore, err := storage.OpenObjectStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { objStore.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cache := storage.NewCache(client, time.Minute)
	store := storage.NewStore(objStore, cache)
	locks := lock.NewManager(client, "test-replica")
	events := bus.New(nil)
	adapter := &fakeAdapter{}

	svc := NewService(store, adapter, locks, events, Config{
		BaseURL:             "https://meet.example.com",
		RoomIDRandomLength:  8,
		MinAutoDeletionLead: time.Hour,
	})
	return svc, store, adapter
}

func TestService_CreateThenGetByID(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	r, err := svc.Create(ctx, CreateOptions{
		RoomNamePrefix: "Team Standup",
		Config:         storage.RoomConfig{ChatEnabled: true},
		Anonymous:      map[string]bool{"participant": true},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^team_standup-[a-z0-9]{8}$`, r.RoomID)
	assert.Equal(t, StatusOpen, r.Status)
	assert.True(t, r.Anonymous["participant"].Enabled)
	assert.NotEmpty(t, r.Anonymous["participant"].Secret)
	assert.Contains(t, r.Anonymous["participant"].AccessURL, r.RoomID)

	got, err := svc.GetByID(ctx, r.RoomID)
	require.NoError(t, err)
	assert.Equal(t, r.RoomID, got.RoomID)
}

func TestService_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.GetByID(ctx, "nope")
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.NotFound, apiErr.Kind)
}

func TestService_Create_RejectsTooSoonAutoDeletion(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	soon := time.Now().Add(time.Minute)
	_, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: "x", AutoDeletionDate: &soon})
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Validation, apiErr.Kind)
}

func TestService_List_ExcludesMemberKeys(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	for _, id := range []string{"room-a", "room-b"} {
		_, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: id})
		require.NoError(t, err)
	}
	rooms, _, err := svc.List(ctx, ListFilters{}, 100, "")
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	// Seed a member record under one room's prefix; it must not leak into
	// a room listing despite sharing the "rooms/" key prefix.
	require.NoError(t, store.Members.Put(ctx, store.Keys().Member(rooms[0].RoomID, "member-1"), &storage.RoomMember{
		MemberID: "member-1", RoomID: rooms[0].RoomID,
	}))

	rooms2, _, err := svc.List(ctx, ListFilters{}, 100, "")
	require.NoError(t, err)
	assert.Len(t, rooms2, 2)
}

func TestService_UpdateRoles_BumpsPermissionsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	r, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: "room"})
	require.NoError(t, err)
	before := r.PermissionsUpdatedAt

	updated, err := svc.UpdateRoles(ctx, r.RoomID, map[string]storage.RoleTemplate{
		"moderator": {Role: "moderator", Permissions: map[string]any{"canMakeModerator": true}},
	})
	require.NoError(t, err)
	assert.Greater(t, updated.PermissionsUpdatedAt, before)
}

func TestService_UpdateConfig_DoesNotBumpPermissionsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	r, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: "room"})
	require.NoError(t, err)
	before := r.PermissionsUpdatedAt

	updated, err := svc.UpdateConfig(ctx, r.RoomID, storage.RoomConfig{ChatEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, before, updated.PermissionsUpdatedAt)
	assert.True(t, updated.Config.ChatEnabled)
}

func TestService_Delete_NoMeetingNoRecordings(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	r, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: "room"})
	require.NoError(t, err)

	res, err := svc.Delete(ctx, r.RoomID, "", "")
	require.NoError(t, err)
	assert.Equal(t, 200, res.HTTPStatus)
	assert.Equal(t, "ROOM_DELETED", res.Code)

	_, err = svc.GetByID(ctx, r.RoomID)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.NotFound, apiErr.Kind)
}

func TestService_Delete_ActiveMeetingFailsByDefault(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	r, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: "room"})
	require.NoError(t, err)
	r.Status = StatusActiveMeeting
	require.NoError(t, store.Rooms.Put(ctx, store.Keys().Room(r.RoomID), r))

	_, err = svc.Delete(ctx, r.RoomID, "", "")
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Conflict, apiErr.Kind)
	assert.Equal(t, "ROOM_HAS_ACTIVE_MEETING", apiErr.Code)
}

func TestService_Delete_DeferredDeleteOnActiveMeeting(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	r, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: "room"})
	require.NoError(t, err)
	r.Status = StatusActiveMeeting
	require.NoError(t, store.Rooms.Put(ctx, store.Keys().Room(r.RoomID), r))

	res, err := svc.Delete(ctx, r.RoomID, WithMeetingWhenMeetingEnds, "")
	require.NoError(t, err)
	assert.Equal(t, 202, res.HTTPStatus)
	assert.Equal(t, "ROOM_SCHEDULED_TO_BE_DELETED", res.Code)
	assert.Equal(t, MeetingEndActionDelete, res.Room.MeetingEndAction)
}

func TestService_BulkDelete_AggregatesSuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	ok, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: "ok"})
	require.NoError(t, err)
	blocked, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: "blocked"})
	require.NoError(t, err)
	blocked.Status = StatusActiveMeeting
	require.NoError(t, store.Rooms.Put(ctx, store.Keys().Room(blocked.RoomID), blocked))

	result := svc.BulkDelete(ctx, []string{ok.RoomID, blocked.RoomID, "missing-room"}, "", "")
	assert.ElementsMatch(t, []string{ok.RoomID}, result.Successful)
	require.Len(t, result.Failed, 2)
}

func TestService_HandleMeetingEnded_DefaultsToOpen(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	r, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: "room"})
	require.NoError(t, err)
	r.Status = StatusActiveMeeting
	require.NoError(t, store.Rooms.Put(ctx, store.Keys().Room(r.RoomID), r))

	require.NoError(t, svc.HandleMeetingEnded(ctx, r.RoomID))

	got, err := svc.GetByID(ctx, r.RoomID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
}

func TestService_StatusConsistencyGC_ReturnsRoomToOpen(t *testing.T) {
	ctx := context.Background()
	svc, store, adapter := newTestService(t)
	adapter.roomExists = false

	r, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: "room"})
	require.NoError(t, err)
	r.Status = StatusActiveMeeting
	require.NoError(t, store.Rooms.Put(ctx, store.Keys().Room(r.RoomID), r))

	svc.StatusConsistencyGC(ctx)

	got, err := svc.GetByID(ctx, r.RoomID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
}

func TestService_ExpirationGC_DeletesPastDueRooms(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	r, err := svc.Create(ctx, CreateOptions{RoomNamePrefix: "room"})
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	r.AutoDeletionDate = &past
	require.NoError(t, store.Rooms.Put(ctx, store.Keys().Room(r.RoomID), r))

	svc.ExpirationGC(ctx)

	_, err = svc.GetByID(ctx, r.RoomID)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.NotFound, apiErr.Kind)
}
