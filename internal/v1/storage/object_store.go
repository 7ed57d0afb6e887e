package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/renameio/v2"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
)

// ErrNotFound is returned by ObjectStore.Get when a key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ObjectStore is the authoritative, durable key-value store. Keys are
// opaque byte strings (repository keys are structured path-like strings,
// spec §6's persisted layout); values are raw bytes (JSON documents or
// media file content).
type ObjectStore struct {
	db      *badger.DB
	mediaDir string
}

// OpenObjectStore opens (creating if absent) the embedded object store
// rooted at dir. Media files (recording binaries) are written directly to
// disk under dir/recordings rather than through Badger, to keep large blobs out
// of the LSM tree.
func OpenObjectStore(dir string) (*ObjectStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create object store dir: %w", err)
	}
	mediaDir := filepath.Join(dir, "recordings")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create media dir: %w", err)
	}
	opts := badger.DefaultOptions(filepath.Join(dir, "metadata")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}
	return &ObjectStore{db: db, mediaDir: mediaDir}, nil
}

func (s *ObjectStore) Close() error { return s.db.Close() }

// Ping satisfies health.StorageChecker: a trivial read-only transaction
// confirms the embedded database is still responsive.
func (s *ObjectStore) Ping(ctx context.Context) error {
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// Get reads the raw value stored under key.
func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.DependencyUnavailable, "STORAGE_GET_FAILED", "object store read failed", err)
	}
	return out, nil
}

// Put writes val under key.
func (s *ObjectStore) Put(ctx context.Context, key string, val []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
	if err != nil {
		return apierr.Wrap(apierr.DependencyUnavailable, "STORAGE_PUT_FAILED", "object store write failed", err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return apierr.Wrap(apierr.DependencyUnavailable, "STORAGE_DELETE_FAILED", "object store delete failed", err)
	}
	return nil
}

// Exists reports whether key is present.
func (s *ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apierr.Wrap(apierr.DependencyUnavailable, "STORAGE_EXISTS_FAILED", "object store lookup failed", err)
	}
	return true, nil
}

// Page is one page of a prefix listing.
type Page struct {
	Keys       []string
	NextCursor string // empty when exhausted
}

// List returns up to limit keys under prefix in lexicographic order,
// starting after cursor (an opaque token from a previous Page.NextCursor).
// The cache never paginates (spec §4.5); only the object store does.
func (s *ObjectStore) List(ctx context.Context, prefix string, limit int, cursor string) (Page, error) {
	if limit <= 0 {
		limit = 100
	}
	start := prefix
	if cursor != "" {
		decoded, err := decodeCursor(cursor)
		if err != nil {
			return Page{}, apierr.Validationf("INVALID_CURSOR", "pagination cursor is malformed")
		}
		start = decoded
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		seekKey := []byte(start)
		for it.Seek(seekKey); it.ValidForPrefix([]byte(prefix)); it.Next() {
			k := string(it.Item().KeyCopy(nil))
			if cursor != "" && k == start {
				continue // cursor points at the last-returned key; skip it
			}
			keys = append(keys, k)
			if len(keys) > limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return Page{}, apierr.Wrap(apierr.DependencyUnavailable, "STORAGE_LIST_FAILED", "object store listing failed", err)
	}

	sort.Strings(keys)
	page := Page{}
	if len(keys) > limit {
		page.Keys = keys[:limit]
		page.NextCursor = encodeCursor(keys[limit-1])
	} else {
		page.Keys = keys
	}
	return page, nil
}

func encodeCursor(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeCursor(cursor string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MediaPath returns the on-disk path for a recording's media file, per the
// persisted layout in spec §6: recordings/{roomId}/{roomId}--{uid}.<ext>.
func (s *ObjectStore) MediaPath(roomID, uid, ext string) string {
	return filepath.Join(s.mediaDir, roomID, fmt.Sprintf("%s--%s.%s", roomID, uid, ext))
}

// PutMedia atomically writes a media file's content to disk, replacing any
// existing file at the same path (google/renameio/v2 write-then-rename).
func (s *ObjectStore) PutMedia(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apierr.Wrap(apierr.Internal, "MEDIA_WRITE_FAILED", "could not create media directory", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return apierr.Wrap(apierr.Internal, "MEDIA_WRITE_FAILED", "could not write media file", err)
	}
	return nil
}

// DeleteMediaDir removes a room's entire media directory (used when a room
// is deleted with its recordings).
func (s *ObjectStore) DeleteMediaDir(roomID string) error {
	if roomID == "" || strings.Contains(roomID, "..") {
		return apierr.Validationf("INVALID_ROOM_ID", "roomId must not contain path separators")
	}
	if err := os.RemoveAll(filepath.Join(s.mediaDir, roomID)); err != nil {
		return apierr.Wrap(apierr.Internal, "MEDIA_DELETE_FAILED", "could not remove media directory", err)
	}
	return nil
}

// DeleteMedia removes a single recording's media file. Deleting an absent
// file is not an error.
func (s *ObjectStore) DeleteMedia(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apierr.Wrap(apierr.Internal, "MEDIA_DELETE_FAILED", "could not remove media file", err)
	}
	return nil
}

// MediaFileSize returns a recording's media file size in bytes.
func (s *ObjectStore) MediaFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, apierr.Wrap(apierr.Internal, "MEDIA_STAT_FAILED", "could not stat media file", err)
	}
	return info.Size(), nil
}

// MediaRange is a byte-range stream over a recording's media file (spec
// §4.9's getRecordingAsStream). The caller must Close the stream.
type MediaRange struct {
	FileSize int64
	Stream   io.ReadCloser
	Start    int64
	End      int64 // inclusive
}

// OpenMediaRange opens path for a byte-range read. If hasRange is false the
// full file is returned. A requested range past fileSize-1 at its start
// is RangeNotSatisfiable; end is clamped to fileSize-1.
func (s *ObjectStore) OpenMediaRange(path string, hasRange bool, start, end int64) (*MediaRange, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "MEDIA_OPEN_FAILED", "could not open media file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, apierr.Wrap(apierr.Internal, "MEDIA_STAT_FAILED", "could not stat media file", err)
	}
	fileSize := info.Size()

	if !hasRange {
		return &MediaRange{FileSize: fileSize, Stream: f, Start: 0, End: fileSize - 1}, nil
	}
	if start < 0 || start >= fileSize {
		f.Close()
		return nil, apierr.New(apierr.RangeNotSatisfiable, "RANGE_NOT_SATISFIABLE", fmt.Sprintf("range start %d outside file of size %d", start, fileSize))
	}
	if end <= 0 || end >= fileSize {
		end = fileSize - 1
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, apierr.Wrap(apierr.Internal, "MEDIA_SEEK_FAILED", "could not seek media file", err)
	}
	return &MediaRange{
		FileSize: fileSize,
		Stream:   struct {
			io.Reader
			io.Closer
		}{io.LimitReader(f, end-start+1), f},
		Start: start,
		End:   end,
	}, nil
}
