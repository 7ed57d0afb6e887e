// Package apikey implements management-credential CRUD (spec §3's ApiKey
// entity, §6's /internal-api/v1/api-keys surface): create, list, revoke and
// verification against the opaque prefixed string presented via the
// X-Api-Key header.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

const keyPrefix = "ovm_"

// Service implements ApiKey create/list/revoke. Unlike user passwords, keys
// are high-entropy random strings rather than user-chosen secrets, so they
// are hashed with plain SHA-256 rather than Argon2id — there is no
// brute-force-by-guessing surface to slow down (spec §3: "opaque prefixed
// string").
type Service struct {
	store *storage.Store
}

// NewService constructs an apikey Service.
func NewService(store *storage.Store) *Service {
	return &Service{store: store}
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func generateKeyID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func generateSecret() string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// Create mints a new active API key, deactivating any currently active key
// first — at most one active key may exist at a time (spec §3). The full
// key string is returned only here; only its hash is ever persisted.
func (s *Service) Create(ctx context.Context) (string, *storage.ApiKey, error) {
	keys, _, err := s.store.ApiKeys.List(ctx, s.store.Keys().ApiKeyPrefix(), 100, "")
	if err != nil {
		return "", nil, err
	}
	for _, k := range keys {
		if k.Active {
			k.Active = false
			if err := s.store.ApiKeys.Put(ctx, s.store.Keys().ApiKey(k.KeyID), k); err != nil {
				return "", nil, err
			}
		}
	}

	keyID := generateKeyID()
	secret := generateSecret()
	full := keyPrefix + keyID + "_" + secret

	rec := &storage.ApiKey{
		KeyID:     keyID,
		Prefix:    keyPrefix + keyID,
		Hash:      hashKey(full),
		CreatedAt: time.Now(),
		Active:    true,
	}
	if err := s.store.ApiKeys.Put(ctx, s.store.Keys().ApiKey(keyID), rec); err != nil {
		return "", nil, err
	}
	return full, rec, nil
}

// List returns every API key record (never the full key string, only its
// prefix/creation date/active flag).
func (s *Service) List(ctx context.Context) ([]*storage.ApiKey, error) {
	keys, _, err := s.store.ApiKeys.List(ctx, s.store.Keys().ApiKeyPrefix(), 100, "")
	return keys, err
}

// Revoke deactivates an API key by id. Idempotent: revoking an already
// inactive key is a no-op.
func (s *Service) Revoke(ctx context.Context, keyID string) error {
	key := s.store.Keys().ApiKey(keyID)
	rec, err := s.store.ApiKeys.Get(ctx, key)
	if err == storage.ErrNotFound {
		return apierr.NotFoundf("API_KEY_NOT_FOUND", "api key %q not found", keyID)
	}
	if err != nil {
		return err
	}
	if !rec.Active {
		return nil
	}
	rec.Active = false
	return s.store.ApiKeys.Put(ctx, key, rec)
}

// Verify reports whether presentedKey matches a currently active key.
func (s *Service) Verify(ctx context.Context, presentedKey string) (bool, error) {
	keys, _, err := s.store.ApiKeys.List(ctx, s.store.Keys().ApiKeyPrefix(), 100, "")
	if err != nil {
		return false, err
	}
	want := hashKey(presentedKey)
	for _, k := range keys {
		if !k.Active {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(k.Hash), []byte(want)) == 1 {
			return true, nil
		}
	}
	return false, nil
}
