package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/bus"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestBootstrap_SeedsDefaultsOnce(t *testing.T) {
	ctx := context.Background()
	client := newTestRedisClient(t)
	objStore := newTestObjectStore(t)
	store := NewStore(objStore, NewCache(client, 0))
	locks := lock.NewManager(client, "replica-1")
	events := bus.New(nil)

	result, err := Bootstrap(ctx, store, locks, events, "https://meet.example.com", map[string]RoleTemplate{
		"moderator": {Role: "moderator", Permissions: map[string]any{"canRecord": true}},
	})
	require.NoError(t, err)
	assert.True(t, result.Seeded)
	assert.Equal(t, "admin", result.InitialAdminUserID)
	assert.NotEmpty(t, result.InitialAdminPassword)
	assert.NotEmpty(t, result.InitialAPIKey)

	cfg, err := store.GlobalConfig.Get(ctx, store.Keys().GlobalConfig())
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example.com", cfg.BaseURL)

	// Second bootstrap against the same store must not reseed.
	result2, err := Bootstrap(ctx, store, locks, events, "https://meet.example.com", nil)
	require.NoError(t, err)
	assert.False(t, result2.Seeded)
	assert.Empty(t, result2.InitialAdminPassword)
}
