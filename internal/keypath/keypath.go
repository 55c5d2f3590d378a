// Package keypath maps cache keys to filesystem locations.
//
// Keys are validated before any filesystem access, then sanitized into a
// portable filename. In two-level mode entries are grouped into shard
// directories named after the last two characters of the key.
package keypath

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/meigma/filecache/store"
)

// ErrInvalidKey is returned when a key cannot be mapped to a filename.
var ErrInvalidKey = errors.New("invalid cache key")

const (
	// MaxNameLen is the longest filename Sanitize produces, in bytes.
	MaxNameLen = 255

	// ShardLen is the number of characters in a shard directory name.
	ShardLen = 2

	replacement = '_'
)

// Validate reports whether key may be used as a cache key.
// Empty keys and keys containing a path separator are rejected.
func Validate(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	if strings.ContainsRune(key, '/') || strings.ContainsRune(key, os.PathSeparator) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, key)
	}
	return nil
}

// Sanitize converts key into a filename that is safe on common filesystems.
//
// Characters that are reserved on Windows or POSIX, control characters and
// invalid UTF-8 are replaced with '_'. The names "." and ".." become "_" and
// "__". The result is truncated to MaxNameLen bytes. Sanitize is idempotent
// and never returns a name containing a separator.
func Sanitize(key string) string {
	key = strings.TrimLeft(key, `/\`)

	var b strings.Builder
	b.Grow(len(key))
	for i, r := range key {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(key[i:]); size <= 1 {
				r = replacement
			}
		}
		if isReserved(r) {
			r = replacement
		}
		if b.Len()+utf8.RuneLen(r) > MaxNameLen {
			break
		}
		b.WriteRune(r)
	}

	name := b.String()
	switch name {
	case "":
		return string(replacement)
	case ".":
		return "_"
	case "..":
		return "__"
	}
	return name
}

// Shard returns the shard directory name for key: its last two characters,
// sanitized, left-padded with '_' when the key is shorter.
func Shard(key string) string {
	runes := []rune(key)
	if len(runes) > ShardLen {
		runes = runes[len(runes)-ShardLen:]
	}
	var b strings.Builder
	for i := len(runes); i < ShardLen; i++ {
		b.WriteRune(replacement)
	}
	for _, r := range runes {
		if r == utf8.RuneError || isReserved(r) || r == '.' {
			r = replacement
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isReserved(r rune) bool {
	if r < 0x20 || r == 0x7f {
		return true
	}
	switch r {
	case '/', '\\', '<', '>', ':', '"', '|', '?', '*':
		return true
	}
	return false
}

// ShardMaker creates shard directories on demand.
//
// MakeShard must be idempotent: an existing shard is not an error.
type ShardMaker interface {
	MakeShard(name string) error
}

// Resolver turns keys into store locations.
type Resolver struct {
	level  int
	shards ShardMaker
}

// NewResolver returns a resolver for the given sharding level (1 or 2).
// shards may be nil when level is 1.
func NewResolver(level int, shards ShardMaker) (*Resolver, error) {
	switch level {
	case 1:
	case 2:
		if shards == nil {
			return nil, errors.New("sharding level 2 requires a shard maker")
		}
	default:
		return nil, fmt.Errorf("sharding level must be 1 or 2, got %d", level)
	}
	return &Resolver{level: level, shards: shards}, nil
}

// Level returns the configured sharding level.
func (r *Resolver) Level() int {
	return r.level
}

// Locate validates key and returns its location without touching the
// filesystem. Use it for operations that never create entries.
func (r *Resolver) Locate(key string) (store.Location, error) {
	if err := Validate(key); err != nil {
		return store.Location{}, err
	}
	loc := store.Location{Name: Sanitize(key)}
	if r.level == 2 {
		loc.Shard = Shard(key)
	}
	return loc, nil
}

// Resolve is like Locate, but in two-level mode it also creates the shard
// directory if it does not exist.
func (r *Resolver) Resolve(key string) (store.Location, error) {
	loc, err := r.Locate(key)
	if err != nil || loc.Shard == "" {
		return loc, err
	}
	if err := r.shards.MakeShard(loc.Shard); err != nil {
		return store.Location{}, fmt.Errorf("create shard %q: %w", loc.Shard, err)
	}
	return loc, nil
}
