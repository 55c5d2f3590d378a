package filecache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/meigma/filecache/evict"
	"github.com/meigma/filecache/internal/keypath"
	"github.com/meigma/filecache/store"
	"github.com/meigma/filecache/store/disk"
)

// SweepResult summarizes one eviction sweep.
type SweepResult = evict.Result

// Cache is a bounded key-value cache storing one file per entry.
//
// Every operation consults the filesystem directly; there is no in-memory
// index. Operations may be called concurrently, including while a sweep is
// running, but there is no atomicity across operations: an entry written
// during a sweep may be evicted by it.
type Cache struct {
	dir      string
	backend  store.Backend
	resolver *keypath.Resolver
	sweeper  *evict.Sweeper
	logger   *slog.Logger
}

// New creates a cache and arms its periodic eviction sweep.
//
// The cache directory is created if it does not exist. Call Close to stop
// the sweep; an armed sweep does not keep the process alive.
func New(opts ...Option) (*Cache, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Cache{
		backend: cfg.backend,
		logger:  cfg.logger,
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	if c.backend == nil {
		dir, err := resolveDir(cfg.dir)
		if err != nil {
			return nil, err
		}
		ds, err := disk.New(dir,
			disk.WithShardingLevel(cfg.shardingLevel),
			disk.WithCompression(cfg.compression),
		)
		if err != nil {
			return nil, err
		}
		c.dir = ds.Dir()
		c.backend = ds
	}

	resolver, err := keypath.NewResolver(cfg.shardingLevel, c.backend)
	if err != nil {
		return nil, err
	}
	c.resolver = resolver

	sweepOpts := []evict.Option{evict.WithLogger(c.logger)}
	if cfg.deleteRate > 0 {
		burst := max(1, int(cfg.deleteRate))
		sweepOpts = append(sweepOpts, evict.WithDeleteLimiter(rate.NewLimiter(rate.Limit(cfg.deleteRate), burst)))
	}
	sweeper, err := evict.New(c.backend, evict.Limits{
		MaxFiles: cfg.maxFiles,
		MaxBytes: cfg.maxBytes,
	}, sweepOpts...)
	if err != nil {
		return nil, err
	}
	c.sweeper = sweeper

	armed := sweeper.Start(cfg.interval)
	c.logger.Debug("cache opened",
		slog.String("dir", c.dir),
		slog.Int("max_files", cfg.maxFiles),
		slog.Int64("max_bytes", cfg.maxBytes),
		slog.Int("sharding_level", cfg.shardingLevel),
		slog.Bool("sweep_armed", armed))
	return c, nil
}

// resolveDir makes dir absolute relative to the running executable.
func resolveDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir), nil
	}
	exe, err := os.Executable()
	if err != nil {
		abs, absErr := filepath.Abs(dir)
		if absErr != nil {
			return "", fmt.Errorf("resolve cache dir: %w", absErr)
		}
		return abs, nil
	}
	return filepath.Join(filepath.Dir(exe), dir), nil
}

// Dir returns the absolute cache directory, or "" when a custom backend is
// in use.
func (c *Cache) Dir() string {
	return c.dir
}

// Limits returns the configured eviction limits.
func (c *Cache) Limits() evict.Limits {
	return c.sweeper.Limits()
}

// Set stores p under key, replacing any existing entry and marking it as
// most recently used. It returns the path of the stored entry.
//
// Replacement is not atomic: a concurrent Get may observe a partial entry.
func (c *Cache) Set(key string, p Payload) (string, error) {
	loc, err := c.resolver.Resolve(key)
	if err != nil {
		return "", err
	}
	return c.backend.Write(loc, p)
}

// SetBytes stores data under key verbatim.
func (c *Cache) SetBytes(key string, data []byte) (string, error) {
	return c.Set(key, Bytes(data))
}

// SetJSON stores the JSON encoding of v under key.
func (c *Cache) SetJSON(key string, v any) (string, error) {
	return c.Set(key, Structured(v))
}

// SetStream drains r into the entry for key.
func (c *Cache) SetStream(key string, r io.Reader) (string, error) {
	return c.Set(key, StreamSource(r))
}

// Get returns the payload stored under key. ok is false if there is none.
func (c *Cache) Get(key string) (data []byte, ok bool, err error) {
	loc, err := c.resolver.Locate(key)
	if err != nil {
		return nil, false, err
	}
	return c.backend.Read(loc)
}

// Stream opens the payload stored under key for reading. ok is false if
// there is none. The caller must close the returned reader.
func (c *Cache) Stream(key string) (rc io.ReadCloser, ok bool, err error) {
	loc, err := c.resolver.Locate(key)
	if err != nil {
		return nil, false, err
	}
	return c.backend.ReadStream(loc)
}

// Has reports whether an entry is stored under key. Only an invalid key
// produces an error.
func (c *Cache) Has(key string) (bool, error) {
	loc, err := c.resolver.Locate(key)
	if err != nil {
		return false, err
	}
	return c.backend.Exists(loc), nil
}

// Touch marks the entry under key as accessed now.
// It returns an error matching ErrNotFound if there is no entry.
func (c *Cache) Touch(key string) error {
	return c.TouchAt(key, time.Time{})
}

// TouchAt sets the last-accessed time of the entry under key to t, or to
// now if t is zero. It returns an error matching ErrNotFound if there is
// no entry.
func (c *Cache) TouchAt(key string, t time.Time) error {
	loc, err := c.resolver.Locate(key)
	if err != nil {
		return err
	}
	return c.backend.Touch(loc, t)
}

// Delete removes the entry under key and reports whether one existed.
func (c *Cache) Delete(key string) (bool, error) {
	loc, err := c.resolver.Locate(key)
	if err != nil {
		return false, err
	}
	return c.backend.Delete(loc)
}

// Keys returns the stored filename of every entry.
//
// Names are sanitized keys, so they differ from the original key when it
// contained characters that are not safe in filenames. Keys reads the
// whole directory tree on every call.
func (c *Cache) Keys() ([]string, error) {
	locs, err := c.backend.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(locs))
	for i, loc := range locs {
		names[i] = loc.Name
	}
	return names, nil
}

// Clear removes the cache directory and every entry in it. Clearing an
// already cleared cache is not an error. Later writes recreate the
// directory.
func (c *Cache) Clear() error {
	return c.backend.Clear()
}

// RunEvictionSweep runs one eviction sweep now. Sweeps are also run
// periodically when a limit and a check interval are configured.
func (c *Cache) RunEvictionSweep(ctx context.Context) (SweepResult, error) {
	return c.sweeper.RunOnce(ctx)
}

// Close stops the periodic eviction sweep. The cache remains usable and
// RunEvictionSweep may still be called. Close is idempotent.
func (c *Cache) Close() error {
	c.sweeper.Stop()
	return nil
}
