package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/metrics"
)

// Repository is the typed get/put/delete/list interface the Storage Layer
// offers per entity kind (spec §4.5). Reads try the cache first; on a miss
// they fall back to the object store and populate the cache. Writes issue
// both requests, surfacing the first failure, and invalidate the cache
// entry on error so the next reader re-reads the authoritative store.
type Repository[T any] struct {
	entity string
	store  *ObjectStore
	cache  *Cache
}

// NewRepository builds a Repository for entity (used only as a metrics
// label), backed by store and fronted by cache.
func NewRepository[T any](entity string, store *ObjectStore, cache *Cache) *Repository[T] {
	return &Repository[T]{entity: entity, store: store, cache: cache}
}

// Get fetches the value at key, trying the cache before the object store.
func (r *Repository[T]) Get(ctx context.Context, key string) (*T, error) {
	start := time.Now()
	defer func() { metrics.StorageOperationDuration.WithLabelValues(r.entity, "get").Observe(time.Since(start).Seconds()) }()

	if raw, hit, _ := r.cache.Get(ctx, key); hit {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.StorageOperations.WithLabelValues(r.entity, "get", "cache_hit").Inc()
			return &v, nil
		}
		// corrupt cache entry: fall through to the object store
	}

	raw, err := r.store.Get(ctx, key)
	if err != nil {
		status := "error"
		if err == ErrNotFound {
			status = "not_found"
		}
		metrics.StorageOperations.WithLabelValues(r.entity, "get", status).Inc()
		return nil, err
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apierr.Wrap(apierr.Internal, "STORAGE_DECODE_FAILED", "stored "+r.entity+" record is corrupt", err)
	}
	r.cache.Put(ctx, key, raw)
	metrics.StorageOperations.WithLabelValues(r.entity, "get", "store_hit").Inc()
	return &v, nil
}

// Put writes val at key to both the object store and the cache.
func (r *Repository[T]) Put(ctx context.Context, key string, val *T) error {
	start := time.Now()
	defer func() { metrics.StorageOperationDuration.WithLabelValues(r.entity, "put").Observe(time.Since(start).Seconds()) }()

	raw, err := json.Marshal(val)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "STORAGE_ENCODE_FAILED", "could not encode "+r.entity+" record", err)
	}
	if err := r.store.Put(ctx, key, raw); err != nil {
		r.cache.Invalidate(ctx, key)
		metrics.StorageOperations.WithLabelValues(r.entity, "put", "error").Inc()
		return err
	}
	r.cache.Put(ctx, key, raw)
	metrics.StorageOperations.WithLabelValues(r.entity, "put", "ok").Inc()
	return nil
}

// Delete removes key from both the object store and the cache.
func (r *Repository[T]) Delete(ctx context.Context, key string) error {
	start := time.Now()
	defer func() { metrics.StorageOperationDuration.WithLabelValues(r.entity, "delete").Observe(time.Since(start).Seconds()) }()

	if err := r.store.Delete(ctx, key); err != nil {
		r.cache.Invalidate(ctx, key)
		metrics.StorageOperations.WithLabelValues(r.entity, "delete", "error").Inc()
		return err
	}
	r.cache.Invalidate(ctx, key)
	metrics.StorageOperations.WithLabelValues(r.entity, "delete", "ok").Inc()
	return nil
}

// List pages through keys under prefix directly against the object store;
// the cache never paginates (spec §4.5).
func (r *Repository[T]) List(ctx context.Context, prefix string, limit int, cursor string) ([]*T, string, error) {
	start := time.Now()
	defer func() { metrics.StorageOperationDuration.WithLabelValues(r.entity, "list").Observe(time.Since(start).Seconds()) }()

	page, err := r.store.List(ctx, prefix, limit, cursor)
	if err != nil {
		metrics.StorageOperations.WithLabelValues(r.entity, "list", "error").Inc()
		return nil, "", err
	}

	items := make([]*T, 0, len(page.Keys))
	for _, key := range page.Keys {
		raw, err := r.store.Get(ctx, key)
		if err != nil {
			continue // item vanished between list and read; skip rather than fail the page
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		items = append(items, &v)
	}
	metrics.StorageOperations.WithLabelValues(r.entity, "list", "ok").Inc()
	return items, page.NextCursor, nil
}
