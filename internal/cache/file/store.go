// Package file keeps the chunk cache in a single versioned JSON file on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/cache"
	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/pkg/logger"
)

// FormatVersion tags the on-disk layout. Files with any other version are ignored.
const FormatVersion = 1

const lockRetryDelay = 50 * time.Millisecond

type blob struct {
	Version int                     `json:"version"`
	Entries map[string]cache.Record `json:"entries"`
}

// Store holds the whole cache in memory and rewrites the file on every Put. Writers in
// this process are serialised by mu; writers in other processes by an advisory lock
// on <path>.lock.
type Store struct {
	path string
	lock *flock.Flock

	mu      sync.RWMutex
	entries map[string]cache.Record
}

// New opens the cache at path. A missing, unreadable or corrupt file is logged and the
// cache starts empty.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, domain.NewError(domain.ErrInvalidConfiguration, "cache.file.New",
			fmt.Errorf("failed to create cache directory: %w", err))
	}

	s := &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}

	entries, err := s.read()
	if err != nil {
		logger.Warn("Chunk cache unreadable, starting empty", zap.String("path", path), zap.Error(err))
		entries = map[string]cache.Record{}
	}
	s.entries = entries

	logger.Info("File chunk cache opened", zap.String("path", path), zap.Int("entries", len(entries)))
	return s, nil
}

func (s *Store) Get(_ context.Context, key string) (*cache.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return rec.Entry(key), true, nil
}

func (s *Store) Put(ctx context.Context, entry cache.Entry) error {
	return s.update(ctx, func(entries map[string]cache.Record) {
		entries[entry.Key] = entry.Record()
	})
}

func (s *Store) Purge(ctx context.Context) error {
	return s.update(ctx, func(entries map[string]cache.Record) {
		clear(entries)
	})
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Close() error {
	return nil
}

// update re-reads the file under the lock so entries written by other processes
// survive, applies fn and writes the result atomically.
func (s *Store) update(ctx context.Context, fn func(map[string]cache.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return fmt.Errorf("failed to lock cache file: %w", errors.Join(err, ctx.Err()))
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			logger.Warn("Failed to release cache lock", zap.Error(err))
		}
	}()

	merged, err := s.read()
	if err != nil {
		merged = map[string]cache.Record{}
	}
	for k, v := range s.entries {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	fn(merged)

	if err := s.write(merged); err != nil {
		return err
	}
	s.entries = merged
	return nil
}

func (s *Store) read() (map[string]cache.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]cache.Record{}, nil
	}
	if err != nil {
		return nil, domain.NewError(domain.ErrCacheCorruption, "cache.file.read", err)
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, domain.NewError(domain.ErrCacheCorruption, "cache.file.read", err)
	}
	if b.Version != FormatVersion {
		return nil, domain.NewError(domain.ErrCacheCorruption, "cache.file.read",
			fmt.Errorf("unsupported cache format version %d", b.Version))
	}
	if b.Entries == nil {
		b.Entries = map[string]cache.Record{}
	}
	return b.Entries, nil
}

func (s *Store) write(entries map[string]cache.Record) error {
	data, err := json.Marshal(blob{Version: FormatVersion, Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".chunks-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
