// Package store defines the storage contract used by the cache.
//
// A Backend stores one payload per Location and derives everything else
// (existence, size, recency) from the underlying storage on every call.
// Implementations keep no in-memory index, so List and sweeps cost one
// storage call per entry.
package store

import (
	"io"
	"io/fs"
	"path"
	"time"
)

// ErrNotFound is returned when an entry does not exist.
//
// Implementations should return an error that satisfies errors.Is(err, ErrNotFound).
// The default maps to fs.ErrNotExist.
var ErrNotFound = fs.ErrNotExist

// Location identifies an entry relative to the cache root.
type Location struct {
	// Shard is the shard directory, empty in single-level layouts.
	Shard string
	// Name is the sanitized entry filename.
	Name string
}

// Path returns the slash-separated path of the entry relative to the root.
func (l Location) Path() string {
	if l.Shard == "" {
		return l.Name
	}
	return path.Join(l.Shard, l.Name)
}

// String implements fmt.Stringer.
func (l Location) String() string {
	return l.Path()
}

// EntryInfo describes a stored entry.
type EntryInfo struct {
	Location   Location
	Size       int64     // bytes occupied on storage
	AccessedAt time.Time // last-accessed timestamp used for recency ranking
}

// Backend is the storage primitive layer beneath the cache.
//
// Absence is a normal result for Exists, Read, ReadStream and Delete, and an
// error for Touch and Stat. All other failures are returned unchanged.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Exists reports whether an entry is stored at loc. It never fails.
	Exists(loc Location) bool

	// Write stores p at loc, replacing any existing entry, and resets its
	// recency. It returns the absolute path of the entry.
	Write(loc Location, p Payload) (string, error)

	// Read returns the entry's bytes, or ok=false if it does not exist.
	Read(loc Location) (data []byte, ok bool, err error)

	// ReadStream opens the entry for reading, or returns ok=false if it does
	// not exist. Each call returns an independent handle the caller must close.
	ReadStream(loc Location) (rc io.ReadCloser, ok bool, err error)

	// Delete removes the entry and reports whether anything was removed.
	Delete(loc Location) (bool, error)

	// Touch sets the entry's last-accessed timestamp to t, or now if t is zero.
	// Touching a missing entry returns an error matching ErrNotFound.
	Touch(loc Location, t time.Time) error

	// Stat returns size and recency for the entry.
	Stat(loc Location) (EntryInfo, error)

	// List returns every stored entry. A missing or unreadable root yields
	// an empty result, not an error.
	List() ([]Location, error)

	// MakeShard creates a shard directory. Existing shards are not an error.
	MakeShard(name string) error

	// Clear removes the root and everything beneath it. A missing root is
	// not an error.
	Clear() error
}
