package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	svc, err := NewService(mr.Addr(), "")
	require.NoError(t, err)

	return svc, mr
}

func TestNewService(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	assert.NotNil(t, svc.Client())
	err := svc.Ping(context.Background())
	assert.NoError(t, err)
}

func TestPublishEvent(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()

	sub := svc.Client().Subscribe(ctx, controlPlaneChannel)
	defer func() { _ = sub.Close() }()
	time.Sleep(50 * time.Millisecond)

	payload := map[string]string{"roomId": "room-1"}
	err := svc.PublishEvent(ctx, "MEETING_STARTED", payload)
	assert.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	assert.NoError(t, err)

	var env eventEnvelope
	err = json.Unmarshal([]byte(msg.Payload), &env)
	assert.NoError(t, err)
	assert.Equal(t, "MEETING_STARTED", env.Event)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, "room-1", decoded["roomId"])
}

func TestSubscribeEvents(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := &sync.WaitGroup{}
	received := make(chan string, 1)

	svc.SubscribeEvents(ctx, wg, func(event string, payload json.RawMessage) {
		received <- event
	})

	time.Sleep(50 * time.Millisecond)

	env := eventEnvelope{Event: "RECORDING_ACTIVE", Payload: json.RawMessage(`{"recordingId":"r1"}`)}
	data, _ := json.Marshal(env)
	svc.Client().Publish(ctx, controlPlaneChannel, data)

	select {
	case event := <-received:
		assert.Equal(t, "RECORDING_ACTIVE", event)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}

	cancel()
	wg.Wait()
}

func TestSetOperations(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	key := "test-set"

	require.NoError(t, svc.SetAdd(ctx, key, "m1"))
	require.NoError(t, svc.SetAdd(ctx, key, "m2"))

	members, err := svc.SetMembers(ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m1", "m2"}, members)

	require.NoError(t, svc.SetRem(ctx, key, "m1"))

	members, err = svc.SetMembers(ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m2"}, members)
}

func TestRedisFailure_Graceful(t *testing.T) {
	svc, mr := newTestService(t)
	mr.Close()

	ctx := context.Background()
	err := svc.Ping(ctx)
	assert.Error(t, err)
}

func TestSetOperations_ErrorPaths(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	key := "test-error-set"

	require.NoError(t, svc.SetAdd(ctx, key, "m1"))
	require.NoError(t, svc.SetAdd(ctx, key, "m2"))
	require.NoError(t, svc.SetAdd(ctx, key, "m3"))

	members, err := svc.SetMembers(ctx, key)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	require.NoError(t, svc.SetRem(ctx, key, "m1"))
	require.NoError(t, svc.SetRem(ctx, key, "m2"))

	members, err = svc.SetMembers(ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m3"}, members)

	mr.Close()

	assert.Error(t, svc.SetAdd(ctx, key, "m4"))
	assert.Error(t, svc.SetRem(ctx, key, "m3"))

	_, err = svc.SetMembers(ctx, key)
	assert.Error(t, err)
}

func TestPublishEvent_CircuitBreakerOpen(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	mr.Close()

	for i := 0; i < 10; i++ {
		_ = svc.PublishEvent(ctx, "event", map[string]string{})
	}

	// Circuit breaker should be open now (graceful degradation): must not panic.
	err := svc.PublishEvent(ctx, "event", map[string]string{})
	_ = err
}
