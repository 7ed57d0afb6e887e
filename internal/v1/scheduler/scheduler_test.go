package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
)

func newTestRegistry(t *testing.T) (*Registry, *lock.Manager) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	locks := lock.NewManager(client, "test-replica")
	r := New(locks, time.Minute)
	t.Cleanup(func() { r.Stop(context.Background()) })
	return r, locks
}

func TestRegisterCron_FiresRepeatedly(t *testing.T) {
	r, _ := newTestRegistry(t)
	var count int64

	require.NoError(t, r.RegisterCron("tick", "@every 20ms", func(ctx context.Context) {
		atomic.AddInt64(&count, 1)
	}))

	require.Eventually(t, func() bool { return atomic.LoadInt64(&count) >= 2 }, time.Second, 5*time.Millisecond)
}

func TestRegisterCron_SkipsWhenLockAlreadyHeld(t *testing.T) {
	r, locks := newTestRegistry(t)
	ctx := context.Background()

	var names lock.Names
	l, err := locks.Acquire(ctx, names.ScheduledTask("export"), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, l)

	called := false
	r.runUnderLock("export", func(ctx context.Context) { called = true })
	assert.False(t, called, "a replica must not run a cron firing whose cluster-wide lock is already held")
}

func TestRegisterCron_SameNameReplacesPreviousRegistration(t *testing.T) {
	r, _ := newTestRegistry(t)
	var firstCount, secondCount int64

	require.NoError(t, r.RegisterCron("tick", "@every 20ms", func(ctx context.Context) {
		atomic.AddInt64(&firstCount, 1)
	}))
	require.Eventually(t, func() bool { return atomic.LoadInt64(&firstCount) >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.RegisterCron("tick", "@every 20ms", func(ctx context.Context) {
		atomic.AddInt64(&secondCount, 1)
	}))
	require.Eventually(t, func() bool { return atomic.LoadInt64(&secondCount) >= 1 }, time.Second, 5*time.Millisecond)

	kind, ok := r.Kind("tick")
	require.True(t, ok)
	assert.Equal(t, KindCron, kind)
}

func TestRegisterTimeout_FiresOnceAfterDelay(t *testing.T) {
	r, _ := newTestRegistry(t)
	var count int64

	r.RegisterTimeout("cleanup", 20*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&count, 1)
	})

	require.Eventually(t, func() bool { return atomic.LoadInt64(&count) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&count), "a timeout task must fire exactly once")

	_, ok := r.Kind("cleanup")
	assert.False(t, ok, "a fired timeout task self-removes from the registry")
}

func TestRegisterInterval_FiresRepeatedly(t *testing.T) {
	r, _ := newTestRegistry(t)
	var count int64

	r.RegisterInterval("heartbeat", 15*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&count, 1)
	})

	require.Eventually(t, func() bool { return atomic.LoadInt64(&count) >= 2 }, time.Second, 5*time.Millisecond)
}

func TestCancel_IsIdempotentAndStopsFutureFirings(t *testing.T) {
	r, _ := newTestRegistry(t)
	var count int64

	r.RegisterInterval("heartbeat", 15*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&count, 1)
	})
	require.Eventually(t, func() bool { return atomic.LoadInt64(&count) >= 1 }, time.Second, 5*time.Millisecond)

	r.Cancel("heartbeat")
	r.Cancel("heartbeat") // idempotent

	after := atomic.LoadInt64(&count)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&count), "a cancelled interval task must not fire again")

	_, ok := r.Kind("heartbeat")
	assert.False(t, ok)
}
