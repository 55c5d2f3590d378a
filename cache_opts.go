package filecache

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meigma/filecache/internal/sizing"
	"github.com/meigma/filecache/store"
	"github.com/meigma/filecache/store/disk"
)

const (
	// DefaultDirectory is the cache directory used when none is configured,
	// relative to the directory of the running executable.
	DefaultDirectory = "cache"

	// DefaultCheckInterval is the default period between eviction sweeps.
	DefaultCheckInterval = 10 * time.Minute
)

// Compression identifies the on-disk encoding of entries.
type Compression = disk.Compression

// Compression algorithms.
const (
	CompressionNone   = disk.CompressionNone
	CompressionZstd   = disk.CompressionZstd
	CompressionLZ4    = disk.CompressionLZ4
	CompressionSnappy = disk.CompressionSnappy
)

// ParseCompression maps "none", "zstd", "lz4" or "snappy" to a Compression.
// The empty string selects CompressionNone.
func ParseCompression(s string) (Compression, error) {
	return disk.ParseCompression(s)
}

type settings struct {
	dir           string
	maxFiles      int
	maxBytes      int64
	interval      time.Duration
	shardingLevel int
	compression   Compression
	deleteRate    float64
	logger        *slog.Logger
	backend       store.Backend
}

func defaultSettings() settings {
	return settings{
		dir:           DefaultDirectory,
		interval:      DefaultCheckInterval,
		shardingLevel: 1,
	}
}

func (s *settings) validate() error {
	if s.maxFiles < 0 {
		return errors.New("max files must be >= 0")
	}
	if s.maxBytes < 0 {
		return errors.New("max size must be >= 0")
	}
	if s.interval < 0 {
		return errors.New("check interval must be >= 0")
	}
	if s.shardingLevel != 1 && s.shardingLevel != 2 {
		return fmt.Errorf("sharding level must be 1 or 2, got %d", s.shardingLevel)
	}
	if s.deleteRate < 0 {
		return errors.New("delete rate must be >= 0")
	}
	return nil
}

// Option configures a Cache.
type Option func(*settings) error

// WithDirectory sets the cache directory. Relative paths are resolved
// against the directory of the running executable. Defaults to "cache".
func WithDirectory(dir string) Option {
	return func(s *settings) error {
		if dir == "" {
			return errors.New("cache dir is empty")
		}
		s.dir = dir
		return nil
	}
}

// WithMaxFiles sets the maximum number of entries kept after a sweep.
// Use 0 to disable the limit.
func WithMaxFiles(n int) Option {
	return func(s *settings) error {
		s.maxFiles = n
		return nil
	}
}

// WithMaxSize sets the maximum cumulative entry size in bytes kept after a
// sweep. Use 0 to disable the limit.
func WithMaxSize(bytes int64) Option {
	return func(s *settings) error {
		s.maxBytes = bytes
		return nil
	}
}

// WithMaxSizeString is like WithMaxSize but parses a human-readable size
// such as "1 GB" (decimal) or "512 MiB" (binary).
func WithMaxSizeString(size string) Option {
	return func(s *settings) error {
		n, err := sizing.Parse(size)
		if err != nil {
			return err
		}
		s.maxBytes = n
		return nil
	}
}

// WithCheckInterval sets the period between eviction sweeps. Use 0 to
// disable periodic sweeps. Defaults to 10 minutes. No sweep is scheduled
// when neither a file nor a size limit is set.
func WithCheckInterval(d time.Duration) Option {
	return func(s *settings) error {
		s.interval = d
		return nil
	}
}

// WithShardingLevel sets the directory layout. Level 1 stores entries
// directly in the cache directory; level 2 groups them in subdirectories
// named after the last two characters of each key. Defaults to 1.
func WithShardingLevel(level int) Option {
	return func(s *settings) error {
		s.shardingLevel = level
		return nil
	}
}

// WithCompression sets the on-disk encoding of entries. Size limits apply
// to encoded sizes. Defaults to CompressionNone.
func WithCompression(c Compression) Option {
	return func(s *settings) error {
		s.compression = c
		return nil
	}
}

// WithDeleteRate limits how many entries a sweep deletes per second.
// Use 0 for no limit (default behavior).
func WithDeleteRate(perSecond float64) Option {
	return func(s *settings) error {
		s.deleteRate = perSecond
		return nil
	}
}

// WithLogger sets a logger for the cache and its eviction sweeps.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithBackend replaces the filesystem store with b. Directory, compression
// and permission settings are ignored when a backend is supplied.
func WithBackend(b store.Backend) Option {
	return func(s *settings) error {
		if b == nil {
			return errors.New("backend is nil")
		}
		s.backend = b
		return nil
	}
}
