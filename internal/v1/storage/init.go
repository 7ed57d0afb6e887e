package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/auth"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/bus"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/logging"
	"go.uber.org/zap"
)

// StorageReadyEvent is broadcast once the storage_init protocol completes,
// whether this replica performed the seeding or another one did.
const StorageReadyEvent = "STORAGE_READY"

// BootstrapResult reports what the init protocol did on this call, mainly
// for surfacing a freshly generated admin password to the operator once.
type BootstrapResult struct {
	Seeded               bool
	InitialAdminUserID   string
	InitialAdminPassword string // only set when Seeded and no admin existed
	InitialAPIKey        string // only set when Seeded and no API key existed
}

// Store bundles the repositories the control plane needs, all sharing one
// object store and cache.
type Store struct {
	Rooms        *Repository[Room]
	Members      *Repository[RoomMember]
	Users        *Repository[User]
	Recordings   *Repository[Recording]
	ApiKeys      *Repository[ApiKey]
	GlobalConfig *Repository[GlobalConfig]

	objectStore *ObjectStore
	keys        Keys
}

// NewStore builds a Store over store/cache.
func NewStore(objectStore *ObjectStore, cache *Cache) *Store {
	return &Store{
		Rooms:        NewRepository[Room]("room", objectStore, cache),
		Members:      NewRepository[RoomMember]("member", objectStore, cache),
		Users:        NewRepository[User]("user", objectStore, cache),
		Recordings:   NewRepository[Recording]("recording", objectStore, cache),
		ApiKeys:      NewRepository[ApiKey]("apikey", objectStore, cache),
		GlobalConfig: NewRepository[GlobalConfig]("global_config", objectStore, cache),
		objectStore:  objectStore,
		keys:         Keys{},
	}
}

// ObjectStore exposes the underlying object store for media file I/O
// (Recording Service streaming reads/writes bypass the JSON repositories).
func (s *Store) ObjectStore() *ObjectStore { return s.objectStore }

// Keys exposes the persisted-layout key builder.
func (s *Store) Keys() Keys { return s.keys }

// Bootstrap runs the storage_init protocol (spec §4.5): exactly one
// replica, holding the storage_init lock, seeds global config, an initial
// admin user and a default API key iff none exist, then broadcasts
// STORAGE_READY. Other replicas wait on that event instead.
func Bootstrap(ctx context.Context, store *Store, locks *lock.Manager, events *bus.Bus, baseURL string, defaultRoles map[string]RoleTemplate) (BootstrapResult, error) {
	var names lock.Names
	l, err := locks.Acquire(ctx, names.StorageInit(), 30*time.Second)
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("storage: acquire storage_init lock: %w", err)
	}
	if l == nil {
		return waitForStorageReady(ctx, events)
	}
	defer locks.Release(ctx, l)

	result, err := seedDefaults(ctx, store, baseURL, defaultRoles)
	if err != nil {
		return BootstrapResult{}, err
	}

	events.Broadcast(ctx, StorageReadyEvent, map[string]any{"seeded": result.Seeded})
	return result, nil
}

func waitForStorageReady(ctx context.Context, events *bus.Bus) (BootstrapResult, error) {
	done := make(chan struct{})
	cancel := events.Once(StorageReadyEvent, func(_ json.RawMessage) { close(done) })
	defer cancel()

	select {
	case <-done:
		return BootstrapResult{}, nil
	case <-ctx.Done():
		return BootstrapResult{}, ctx.Err()
	case <-time.After(30 * time.Second):
		return BootstrapResult{}, apierr.Unavailablef("STORAGE_INIT_TIMEOUT", nil, "timed out waiting for another replica to finish storage init")
	}
}

func seedDefaults(ctx context.Context, store *Store, baseURL string, defaultRoles map[string]RoleTemplate) (BootstrapResult, error) {
	result := BootstrapResult{}

	if _, err := store.GlobalConfig.Get(ctx, store.keys.GlobalConfig()); err == ErrNotFound {
		cfg := &GlobalConfig{DefaultRoles: defaultRoles, BaseURL: baseURL, SeededAt: time.Now()}
		if err := store.GlobalConfig.Put(ctx, store.keys.GlobalConfig(), cfg); err != nil {
			return result, fmt.Errorf("storage: seed global config: %w", err)
		}
		result.Seeded = true
		logging.Info(ctx, "storage: seeded global config")
	} else if err != nil {
		return result, err
	}

	users, _, err := store.Users.List(ctx, store.keys.UserPrefix(), 1, "")
	if err != nil {
		return result, err
	}
	hasAdmin := false
	for _, u := range users {
		if u.Role == "admin" {
			hasAdmin = true
			break
		}
	}
	if !hasAdmin {
		password := generateRandomPassword()
		hash, err := auth.HashPassword(password)
		if err != nil {
			return result, fmt.Errorf("storage: hash initial admin password: %w", err)
		}
		admin := &User{
			UserID:             "admin",
			DisplayName:        "Administrator",
			PasswordHash:       hash,
			Role:               "admin",
			MustChangePassword: true,
		}
		if err := store.Users.Put(ctx, store.keys.User(admin.UserID), admin); err != nil {
			return result, fmt.Errorf("storage: seed initial admin: %w", err)
		}
		result.Seeded = true
		result.InitialAdminUserID = admin.UserID
		result.InitialAdminPassword = password
		logging.Info(ctx, "storage: seeded initial admin user", zap.String("user_id", admin.UserID))
	}

	keys, _, err := store.ApiKeys.List(ctx, store.keys.ApiKeyPrefix(), 1, "")
	if err != nil {
		return result, err
	}
	if len(keys) == 0 {
		keyID := generateID()
		secret := generateRandomSecret()
		full := "ovm_" + keyID + "_" + secret
		key := &ApiKey{
			KeyID:     keyID,
			Prefix:    "ovm_" + keyID,
			Hash:      hashAPIKey(full),
			CreatedAt: time.Now(),
			Active:    true,
		}
		if err := store.ApiKeys.Put(ctx, store.keys.ApiKey(keyID), key); err != nil {
			return result, fmt.Errorf("storage: seed default api key: %w", err)
		}
		result.Seeded = true
		result.InitialAPIKey = full
		logging.Info(ctx, "storage: seeded default API key", zap.String("key_id", keyID))
	}

	return result, nil
}

func generateRandomPassword() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// generateRandomSecret and hashAPIKey mirror apikey.generateSecret/hashKey.
// They are duplicated here rather than imported because apikey imports
// storage for its repositories — storage seeding a usable default key
// cannot depend back on the package that depends on it.
func generateRandomSecret() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func generateID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
