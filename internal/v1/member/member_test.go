package member

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/media"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// fakeAdapter is a minimal media.Adapter stub: member tests only exercise
// RemoveParticipant.
type fakeAdapter struct {
	removedIdentities []string
	removeErr         error
}

func (f *fakeAdapter) CreateRoom(ctx context.Context, opts media.RoomOptions) (*media.RoomInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) DeleteRoom(ctx context.Context, roomID string) error { return nil }
func (f *fakeAdapter) ListRooms(ctx context.Context) ([]*media.RoomInfo, error) { return nil, nil }
func (f *fakeAdapter) RoomExists(ctx context.Context, roomID string) (bool, error) { return true, nil }
func (f *fakeAdapter) GetRoom(ctx context.Context, roomID string) (*media.RoomInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) GetParticipant(ctx context.Context, roomID, identity string) (*media.ParticipantInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) RemoveParticipant(ctx context.Context, roomID, identity string) error {
	f.removedIdentities = append(f.removedIdentities, identity)
	return f.removeErr
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
	adapter := &fakeAdapter{}
	return NewService(store, adapter), store, adapter
}

func seedRoomWithRoles(t *testing.T, store *storage.Store, roomID string) {
	t.Helper()
	yes := true
	require.NoError(t, store.Rooms.Put(context.Background(), store.Keys().Room(roomID), &storage.Room{
		RoomID: roomID,
		Roles: map[string]storage.RoleTemplate{
			"moderator": {Role: "moderator", Permissions: map[string]any{"canMakeModerator": yes, "canRecord": yes}},
			"speaker":   {Role: "speaker", Permissions: map[string]any{"canChat": yes}},
		},
	}))
}

func TestCreate_RegisteredUserMemberIDIsUserID(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	seedRoomWithRoles(t, store, "room-1")

	m, err := svc.Create(ctx, CreateOptions{RoomID: "room-1", UserID: "user-42", BaseRole: "moderator"})
	require.NoError(t, err)
	assert.Equal(t, "user-42", m.MemberID)
	assert.Equal(t, true, m.EffectivePermissions["canMakeModerator"])
	assert.NotZero(t, m.PermissionsUpdatedAt)
}

func TestCreate_ExternalMemberIDHasPrefix(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	seedRoomWithRoles(t, store, "room-1")

	m, err := svc.Create(ctx, CreateOptions{RoomID: "room-1", BaseRole: "speaker"})
	require.NoError(t, err)
	assert.Regexp(t, `^ext-[a-z0-9]{12}$`, m.MemberID)
}

func TestCreate_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	seedRoomWithRoles(t, store, "room-1")

	_, err := svc.Create(ctx, CreateOptions{RoomID: "room-1", UserID: "user-1", BaseRole: "speaker"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateOptions{RoomID: "room-1", UserID: "user-1", BaseRole: "speaker"})
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Conflict, apiErr.Kind)
}

func TestCreate_RoomNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Create(ctx, CreateOptions{RoomID: "missing", UserID: "user-1"})
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.NotFound, apiErr.Kind)
}

func TestUpdate_BaseRoleChangeRecomputesPermissions(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	seedRoomWithRoles(t, store, "room-1")

	m, err := svc.Create(ctx, CreateOptions{RoomID: "room-1", UserID: "user-1", BaseRole: "speaker"})
	require.NoError(t, err)
	assert.Equal(t, false, m.EffectivePermissions["canMakeModerator"])
	before := m.PermissionsUpdatedAt

	newRole := "moderator"
	updated, err := svc.Update(ctx, "room-1", "user-1", UpdateOptions{BaseRole: &newRole})
	require.NoError(t, err)
	assert.Equal(t, true, updated.EffectivePermissions["canMakeModerator"])
	assert.Greater(t, updated.PermissionsUpdatedAt, before)
}

func TestUpdate_NameOnlyDoesNotBumpPermissions(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	seedRoomWithRoles(t, store, "room-1")

	m, err := svc.Create(ctx, CreateOptions{RoomID: "room-1", UserID: "user-1", BaseRole: "speaker"})
	require.NoError(t, err)
	before := m.PermissionsUpdatedAt

	newName := "Alice"
	updated, err := svc.Update(ctx, "room-1", "user-1", UpdateOptions{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Name)
	assert.Equal(t, before, updated.PermissionsUpdatedAt)
}

func TestDelete_KicksCurrentParticipant(t *testing.T) {
	ctx := context.Background()
	svc, store, adapter := newTestService(t)
	seedRoomWithRoles(t, store, "room-1")

	m, err := svc.Create(ctx, CreateOptions{RoomID: "room-1", UserID: "user-1", BaseRole: "speaker"})
	require.NoError(t, err)
	m.CurrentParticipantIdentity = "user-1"
	require.NoError(t, store.Members.Put(ctx, store.Keys().Member("room-1", "user-1"), m))

	require.NoError(t, svc.Delete(ctx, "room-1", "user-1"))
	assert.Equal(t, []string{"user-1"}, adapter.removedIdentities)

	_, err = svc.GetByID(ctx, "room-1", "user-1")
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.NotFound, apiErr.Kind)
}

func TestBulkDelete_AggregatesSuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	seedRoomWithRoles(t, store, "room-1")

	_, err := svc.Create(ctx, CreateOptions{RoomID: "room-1", UserID: "user-1", BaseRole: "speaker"})
	require.NoError(t, err)

	result := svc.BulkDelete(ctx, "room-1", []string{"user-1", "missing"})
	assert.Equal(t, []string{"user-1"}, result.Deleted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "missing", result.Failed[0].MemberID)
}
