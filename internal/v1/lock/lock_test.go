package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewManager(client, "test-replica")
}

func TestAcquire_SecondCallerBlocked(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	l1, err := m.Acquire(ctx, "room_a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, l1)

	l2, err := m.Acquire(ctx, "room_a", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, l2)
}

func TestRelease_OnlyOwnerCanRelease(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	l, err := m.Acquire(ctx, "room_a", time.Minute)
	require.NoError(t, err)

	impostor := &Lock{Name: "room_a", Owner: "not-the-owner"}
	require.NoError(t, m.Release(ctx, impostor))

	exists, err := m.Exists(ctx, "room_a")
	require.NoError(t, err)
	assert.True(t, exists, "release with wrong owner must be a no-op")

	require.NoError(t, m.Release(ctx, l))
	exists, err = m.Exists(ctx, "room_a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestForceRelease_IgnoresOwner(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.Acquire(ctx, "recording_active_room1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.ForceRelease(ctx, "recording_active_room1"))

	exists, err := m.Exists(ctx, "recording_active_room1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestForceRelease_MissingLockIsNoop(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	assert.NoError(t, m.ForceRelease(ctx, "never_acquired"))
}

func TestFindByPrefix(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.Acquire(ctx, "recording_active_room1", time.Minute)
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "recording_active_room2", time.Minute)
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "scheduled_task_expiration_gc", time.Minute)
	require.NoError(t, err)

	names, err := m.FindByPrefix(ctx, "recording_active_")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"recording_active_room1", "recording_active_room2"}, names)
}

func TestTryRenew_ExtendsOwnedLock(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	l, err := m.Acquire(ctx, "room_a", time.Second)
	require.NoError(t, err)

	renewed, err := m.TryRenew(ctx, l, time.Minute)
	require.NoError(t, err)
	assert.True(t, renewed)
}
