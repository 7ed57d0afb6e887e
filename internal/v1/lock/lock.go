// Package lock implements the named, TTL'd distributed mutex primitive used
// to coordinate single-winner operations across control-plane replicas.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Lock represents a held named lock. Owner is an opaque token; only the
// holder of a matching Owner can release or renew it.
type Lock struct {
	Name      string
	Owner     string
	CreatedAt time.Time
	TTL       time.Duration
}

// Manager acquires, renews and releases named locks backed by Redis
// SET NX PX, with a compare-on-release guard so a lock can only be released
// by the owner that acquired it.
type Manager struct {
	client   *redis.Client
	cb       *gobreaker.CircuitBreaker
	replicaID string
}

// NewManager constructs a Manager. replicaID identifies this process for
// lock metadata and liveness debugging; it is not part of the owner token.
func NewManager(client *redis.Client, replicaID string) *Manager {
	st := gobreaker.Settings{
		Name:        "lock-manager",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("lock-manager").Set(v)
		},
	}
	return &Manager{client: client, cb: gobreaker.NewCircuitBreaker(st), replicaID: replicaID}
}

// ErrUnavailable is returned when the backing store cannot be reached; the
// caller must treat this identically to "not acquired" per spec §4.1.
var ErrUnavailable = fmt.Errorf("lock manager: backing store unavailable")

func newOwnerToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Acquire attempts to win the named lock non-blocking. Returns nil, nil if
// another owner already holds it.
func (m *Manager) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	owner := newOwnerToken()
	now := time.Now()
	value := fmt.Sprintf("%s|%d", owner, now.UnixNano())

	res, err := m.cb.Execute(func() (interface{}, error) {
		return m.client.SetNX(ctx, redisKey(name), value, ttl).Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("lock-manager").Inc()
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	won, _ := res.(bool)
	if !won {
		return nil, nil
	}

	metrics.LocksHeld.WithLabelValues(resourceType(name)).Inc()
	return &Lock{Name: name, Owner: owner, CreatedAt: now, TTL: ttl}, nil
}

// Release releases the lock iff it is still owned by l.Owner. Releasing a
// lock whose current value doesn't match the owner is a silent no-op.
func (m *Manager) Release(ctx context.Context, l *Lock) error {
	if l == nil {
		return nil
	}
	script := redis.NewScript(`
		local v = redis.call("GET", KEYS[1])
		if v and string.sub(v, 1, string.len(ARGV[1])) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)

	_, err := m.cb.Execute(func() (interface{}, error) {
		return script.Run(ctx, m.client, []string{redisKey(l.Name)}, l.Owner+"|").Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == redis.Nil {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	metrics.LocksHeld.WithLabelValues(resourceType(l.Name)).Dec()
	return nil
}

// ForceRelease releases the named lock regardless of current owner. Used by
// the webhook sink's room_finished handler to clear a stale
// "recording_active_{roomId}" lock when a recording's own stop path never
// ran (its owning replica crashed or the Recording Service lost track of the
// egress) — by the time room_finished arrives the room is gone, so there is
// no owner token left to present to the normal compare-on-release Release.
func (m *Manager) ForceRelease(ctx context.Context, name string) error {
	_, err := m.cb.Execute(func() (interface{}, error) {
		return m.client.Del(ctx, redisKey(name)).Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	metrics.LocksHeld.WithLabelValues(resourceType(name)).Dec()
	return nil
}

// TryRenew extends the TTL of a held lock iff still owned by l.Owner.
func (m *Manager) TryRenew(ctx context.Context, l *Lock, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, nil
	}
	script := redis.NewScript(`
		local v = redis.call("GET", KEYS[1])
		if v and string.sub(v, 1, string.len(ARGV[1])) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
	res, err := m.cb.Execute(func() (interface{}, error) {
		return script.Run(ctx, m.client, []string{redisKey(l.Name)}, l.Owner+"|", ttl.Milliseconds()).Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return false, ErrUnavailable
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	renewed, _ := res.(int64)
	return renewed == 1, nil
}

// Exists reports whether name is currently held by anyone.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	res, err := m.cb.Execute(func() (interface{}, error) {
		return m.client.Exists(ctx, redisKey(name)).Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return false, ErrUnavailable
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, _ := res.(int64)
	return n > 0, nil
}

// CreatedAt returns the creation timestamp embedded in the lock value, used
// by garbage collectors to apply a grace period before reclaiming a lock.
func (m *Manager) CreatedAt(ctx context.Context, name string) (time.Time, bool, error) {
	res, err := m.cb.Execute(func() (interface{}, error) {
		return m.client.Get(ctx, redisKey(name)).Result()
	})
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, false, nil
		}
		if err == gobreaker.ErrOpenState {
			return time.Time{}, false, ErrUnavailable
		}
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	value, _ := res.(string)
	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 {
		return time.Time{}, true, nil
	}
	var nanos int64
	if _, err := fmt.Sscanf(parts[1], "%d", &nanos); err != nil {
		return time.Time{}, true, nil
	}
	return time.Unix(0, nanos), true, nil
}

// FindByPrefix returns all lock names currently held matching a key prefix,
// e.g. "recording_active_" for the orphan-lock GC (§4.9).
func (m *Manager) FindByPrefix(ctx context.Context, prefix string) ([]string, error) {
	res, err := m.cb.Execute(func() (interface{}, error) {
		return m.client.Keys(ctx, redisKey(prefix)+"*").Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	keys, _ := res.([]string)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, "lock:v1:"))
	}
	return out, nil
}

func redisKey(name string) string {
	return "lock:v1:" + name
}

func resourceType(name string) string {
	if idx := strings.IndexByte(name, '_'); idx > 0 {
		return name[:idx]
	}
	return name
}

// Names builds the fixed lock-name namespace from §4.1, preventing
// stringly-typed collisions at call sites.
type Names struct{}

func (Names) RecordingActive(roomID string) string  { return "recording_active_" + roomID }
func (Names) ScheduledTask(name string) string       { return "scheduled_task_" + name }
func (Names) StorageInit() string                    { return "storage_init" }
func (Names) Migration() string                      { return "migration" }
func (Names) Webhook(event, id string) string         { return "webhook_" + event + "_" + id }
func (Names) Registry(name string) string             { return "registry_" + name }
