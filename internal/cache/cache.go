// Package cache persists extracted chunk lists keyed by source file and chunking
// parameters, so unchanged PDFs are never extracted twice.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/pkg/utils"
)

// Entry is the cached chunk list of one file for one set of chunk parameters.
// ModifiedAt is the file's modification time when the chunks were produced.
type Entry struct {
	Key        string
	Chunks     []domain.Chunk
	ModifiedAt time.Time
}

// Store is implemented by the file and Redis backends. Get reports a missing key
// with ok == false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (entry *Entry, ok bool, err error)
	Put(ctx context.Context, entry Entry) error
	Purge(ctx context.Context) error
	Close() error
}

// Key derives the cache key for a file path and chunk parameters. Different tiers
// never share a key.
func Key(path string, params domain.ChunkParams) string {
	return utils.HashParts(path, strconv.Itoa(params.Size), strconv.Itoa(params.Overlap))
}

// IsStale reports whether the file changed after the entry was written.
func IsStale(entry *Entry, currentModifiedAt time.Time) bool {
	return entry.ModifiedAt.Before(currentModifiedAt)
}

// Record is the serialized form of an Entry. The timestamp is kept in nanoseconds
// so it round-trips exactly.
type Record struct {
	Chunks          []domain.Chunk `json:"chunks"`
	ModifiedAtNanos int64          `json:"modified_at_ns"`
}

func (e Entry) Record() Record {
	return Record{Chunks: e.Chunks, ModifiedAtNanos: e.ModifiedAt.UnixNano()}
}

func (r Record) Entry(key string) *Entry {
	return &Entry{Key: key, Chunks: r.Chunks, ModifiedAt: time.Unix(0, r.ModifiedAtNanos)}
}
