package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/bus"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/media"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/recording"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/room"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// fakeAdapter is a minimal media.Adapter stub returning fixed values; the
// webhook tests drive the Room and Recording services' webhook handlers and
// never start a recording through it.
type fakeAdapter struct {
	numParticipants int
	egressID        string
}

func (f *fakeAdapter) CreateRoom(ctx context.Context, opts media.RoomOptions) (*media.RoomInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) DeleteRoom(ctx context.Context, roomID string) error { return nil }
func (f *fakeAdapter) ListRooms(ctx context.Context) ([]*media.RoomInfo, error) { return nil, nil }
func (f *fakeAdapter) RoomExists(ctx context.Context, roomID string) (bool, error) { return true, nil }
func (f *fakeAdapter) GetRoom(ctx context.Context, roomID string) (*media.RoomInfo, error) {
	return &media.RoomInfo{Name: roomID, NumParticipants: f.numParticipants}, nil
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
	return &media.EgressInfo{EgressID: f.egressID, RoomName: roomID, Status: "EGRESS_STARTING"}, nil
}
func (f *fakeAdapter) StopEgress(ctx context.Context, egressID string) error { return nil }
func (f *fakeAdapter) GetActiveEgress(ctx context.Context, roomID string) (*media.EgressInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) GetEgress(ctx context.Context, roomID, egressID string) (*media.EgressInfo, error) {
	return &media.EgressInfo{EgressID: egressID, RoomName: roomID, Status: "EGRESS_ACTIVE"}, nil
}
func (f *fakeAdapter) GetInProgressRecordingsEgress(ctx context.Context, roomID string) ([]*media.EgressInfo, error) {
	return nil, nil
}

const (
	testAPIKey    = "test-key"
	testAPISecret = "test-secret-at-least-32-bytes-long"
)

type fixture struct {
	sink       *Sink
	store      *storage.Store
	rooms      *room.Service
	recordings *recording.Service
	locks      *lock.Manager
}

func newFixture(t *testing.T) *fixture {
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
	adapter := &fakeAdapter{numParticipants: 1, egressID: "EG_1"}

	rooms := room.NewService(store, adapter, locks, events, room.Config{BaseURL: "https://meet.example", RoomIDRandomLength: 8})
	recordings := recording.NewService(store, adapter, locks, events, recording.Config{
		LockTTL:       time.Minute,
		StartTimeout:  200 * time.Millisecond,
		GCGracePeriod: time.Minute,
	})
	sink := NewSink(rooms, recordings, locks, testAPIKey, testAPISecret)

	return &fixture{sink: sink, store: store, rooms: rooms, recordings: recordings, locks: locks}
}

func seedRoom(t *testing.T, store *storage.Store, roomID string) {
	t.Helper()
	require.NoError(t, store.Rooms.Put(context.Background(), store.Keys().Room(roomID), &storage.Room{
		RoomID: roomID,
		Status: room.StatusOpen,
	}))
}

// sign builds a valid LiveKit-style webhook Authorization header for body.
func sign(t *testing.T, body []byte) string {
	t.Helper()
	sum := sha256.Sum256(body)
	claims := signatureClaims{jwt.RegisteredClaims{
		Issuer:  testAPIKey,
		Subject: base64.StdEncoding.EncodeToString(sum[:]),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAPISecret))
	require.NoError(t, err)
	return tok
}

func TestHandle_RejectsMissingSignature(t *testing.T) {
	f := newFixture(t)
	err := f.sink.Handle(context.Background(), "", []byte(`{"event":"room_started","room":{"name":"room-1"}}`))
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Unauthenticated, apiErr.Kind)
}

func TestHandle_RejectsTamperedBody(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"event":"room_started","room":{"name":"room-1"}}`)
	header := sign(t, body)

	tampered := []byte(`{"event":"room_started","room":{"name":"room-2"}}`)
	err := f.sink.Handle(context.Background(), header, tampered)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Unauthenticated, apiErr.Kind)
}

func TestHandle_RoomStarted_TransitionsToActiveMeeting(t *testing.T) {
	f := newFixture(t)
	seedRoom(t, f.store, "room-1")

	body := []byte(`{"id":"evt-1","event":"room_started","room":{"name":"room-1"}}`)
	require.NoError(t, f.sink.Handle(context.Background(), sign(t, body), body))

	r, err := f.rooms.GetByID(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, room.StatusActiveMeeting, r.Status)
}

func TestHandle_RoomStarted_UnknownRoomAcknowledged(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"id":"evt-1","event":"room_started","room":{"name":"missing"}}`)
	assert.NoError(t, f.sink.Handle(context.Background(), sign(t, body), body))
}

func TestHandle_DuplicateDeliveryIgnored(t *testing.T) {
	f := newFixture(t)
	seedRoom(t, f.store, "room-1")

	ctx := context.Background()
	var names lock.Names
	held, err := f.locks.Acquire(ctx, names.Webhook(EventRoomStarted, "evt-1"), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)

	body := []byte(`{"id":"evt-1","event":"room_started","room":{"name":"room-1"}}`)
	require.NoError(t, f.sink.Handle(ctx, sign(t, body), body))

	r, err := f.rooms.GetByID(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, room.StatusOpen, r.Status, "duplicate delivery must not reprocess while the dedup lock is held")
}

func TestHandle_RoomFinished_ReleasesRecordingActiveLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedRoom(t, f.store, "room-1")
	require.NoError(t, f.rooms.HandleMeetingStarted(ctx, "room-1"))

	var names lock.Names
	l, err := f.locks.Acquire(ctx, names.RecordingActive("room-1"), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, l)

	body := []byte(`{"id":"evt-2","event":"room_finished","room":{"name":"room-1"}}`)
	require.NoError(t, f.sink.Handle(ctx, sign(t, body), body))

	held, err := f.locks.Exists(ctx, names.RecordingActive("room-1"))
	require.NoError(t, err)
	assert.False(t, held)
}

func TestHandle_EgressStarted_MarksRecordingActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedRoom(t, f.store, "room-1")

	var names lock.Names
	l, err := f.locks.Acquire(ctx, names.RecordingActive("room-1"), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, l)

	metaKey := f.store.Keys().RecordingMeta("room-1", "EG_1", "EG_1")
	require.NoError(t, f.store.Recordings.Put(ctx, metaKey, &storage.Recording{
		RecordingID: "room-1--EG_1",
		RoomID:      "room-1",
		EgressID:    "EG_1",
		Status:      recording.StatusStarting,
	}))

	body := []byte(`{"id":"evt-3","event":"egress_started","egressInfo":{"egressId":"EG_1","roomName":"room-1"}}`)
	require.NoError(t, f.sink.Handle(ctx, sign(t, body), body))

	rec, err := f.store.Recordings.Get(ctx, metaKey)
	require.NoError(t, err)
	assert.Equal(t, recording.StatusActive, rec.Status)
}

func TestHandle_EgressEnded_ReleasesLockAndMarksComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedRoom(t, f.store, "room-1")

	var names lock.Names
	l, err := f.locks.Acquire(ctx, names.RecordingActive("room-1"), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, l)

	metaKey := f.store.Keys().RecordingMeta("room-1", "EG_1", "EG_1")
	require.NoError(t, f.store.Recordings.Put(ctx, metaKey, &storage.Recording{
		RecordingID: "room-1--EG_1",
		RoomID:      "room-1",
		EgressID:    "EG_1",
		Status:      recording.StatusEnding,
	}))

	body := []byte(`{"id":"evt-4","event":"egress_ended","egressInfo":{"egressId":"EG_1","roomName":"room-1","status":"EGRESS_COMPLETE","file":{"size":"1024","duration":"5000000000"}}}`)
	require.NoError(t, f.sink.Handle(ctx, sign(t, body), body))

	rec, err := f.store.Recordings.Get(ctx, metaKey)
	require.NoError(t, err)
	assert.Equal(t, recording.StatusComplete, rec.Status)
	assert.Equal(t, int64(1024), rec.SizeBytes)
	assert.Equal(t, int64(5000), rec.DurationMs)

	held, err := f.locks.Exists(ctx, names.RecordingActive("room-1"))
	require.NoError(t, err)
	assert.False(t, held)
}

func TestHandle_UnknownEventAcknowledged(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"id":"evt-5","event":"participant_joined"}`)
	assert.NoError(t, f.sink.Handle(context.Background(), sign(t, body), body))
}
