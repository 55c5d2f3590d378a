// Package disk provides a filesystem-backed store.Backend.
//
// Every entry is a single file beneath the cache directory, optionally nested
// one level under a shard directory. The store keeps no index: existence, size
// and recency are read from the filesystem on every call. All paths are
// resolved through os.Root, so no location can reach outside the directory.
package disk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/meigma/filecache/internal/platform"
	"github.com/meigma/filecache/store"
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600

	shardNameLen = 2
)

// Store implements store.Backend using the local filesystem.
// The store is safe for concurrent use.
type Store struct {
	dir         string      // absolute root directory
	level       int         // 1 = flat, 2 = shard subdirectories
	dirPerm     os.FileMode // permissions for created directories
	filePerm    os.FileMode // permissions for created entries
	compression Compression // on-disk encoding of entries
	now         func() time.Time
}

// Option configures a disk store.
type Option func(*Store)

// WithShardingLevel sets the directory layout: 1 stores entries directly in
// the cache directory, 2 nests them under two-character shard directories.
// Defaults to 1.
func WithShardingLevel(level int) Option {
	return func(s *Store) {
		s.level = level
	}
}

// WithDirPerm sets the permissions used for the cache and shard directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = mode
	}
}

// WithFilePerm sets the permissions used for entry files.
func WithFilePerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.filePerm = mode
	}
}

// WithCompression sets the on-disk encoding of entries. Defaults to
// CompressionNone. Sizes reported by Stat are encoded sizes.
func WithCompression(c Compression) Option {
	return func(s *Store) {
		s.compression = c
	}
}

// WithClock sets the function used for "now" timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a disk store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	s := &Store{
		dir:      abs,
		level:    1,
		dirPerm:  defaultDirPerm,
		filePerm: defaultFilePerm,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.level != 1 && s.level != 2 {
		return nil, fmt.Errorf("sharding level must be 1 or 2, got %d", s.level)
	}
	if !s.compression.valid() {
		return nil, fmt.Errorf("unsupported compression %d", s.compression)
	}
	if s.now == nil {
		return nil, errors.New("clock is nil")
	}
	if err := os.MkdirAll(s.dir, s.dirPerm); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the absolute cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether an entry is stored at loc.
func (s *Store) Exists(loc store.Location) bool {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return false
	}
	defer root.Close()

	_, err = root.Stat(nativePath(loc))
	return err == nil
}

// Write stores p at loc, truncating any existing entry in place.
//
// The overwrite is not atomic: a concurrent reader may observe a partially
// written entry. If the write fails the partial entry is removed.
func (s *Store) Write(loc store.Location, p store.Payload) (string, error) {
	src, err := p.Reader()
	if err != nil {
		return "", err
	}

	root, err := s.openRootForWrite()
	if err != nil {
		return "", err
	}
	defer root.Close()

	if loc.Shard != "" {
		if err := s.mkShard(root, loc.Shard); err != nil {
			return "", err
		}
	}

	name := nativePath(loc)
	f, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.filePerm)
	if err != nil {
		return "", fmt.Errorf("create cache file: %w", err)
	}
	if err := s.encode(f, src); err != nil {
		_ = f.Close()
		_ = root.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = root.Remove(name)
		return "", fmt.Errorf("close cache file: %w", err)
	}

	now := s.now()
	if err := root.Chtimes(name, now, now); err != nil {
		return "", fmt.Errorf("set cache file times: %w", err)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *Store) encode(f *os.File, src io.Reader) error {
	enc, err := s.compression.newWriter(f)
	if err != nil {
		return fmt.Errorf("create %s encoder: %w", s.compression, err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush %s encoder: %w", s.compression, err)
	}
	return nil
}

// Read returns the entry's decoded bytes and refreshes its recency.
func (s *Store) Read(loc store.Location) ([]byte, bool, error) {
	root, ok, err := s.openRootForRead()
	if err != nil || !ok {
		return nil, false, err
	}
	defer root.Close()

	name := nativePath(loc)
	rc, ok, err := s.open(root, name)
	if err != nil || !ok {
		return nil, false, err
	}
	data, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return nil, false, fmt.Errorf("read cache file: %w", err)
	}
	if closeErr != nil {
		return nil, false, fmt.Errorf("close cache file: %w", closeErr)
	}
	s.refresh(root, name)
	return data, true, nil
}

// ReadStream opens the entry for reading and refreshes its recency.
func (s *Store) ReadStream(loc store.Location) (io.ReadCloser, bool, error) {
	root, ok, err := s.openRootForRead()
	if err != nil || !ok {
		return nil, false, err
	}
	defer root.Close()

	name := nativePath(loc)
	rc, ok, err := s.open(root, name)
	if err != nil || !ok {
		return nil, false, err
	}
	s.refresh(root, name)
	return rc, true, nil
}

func (s *Store) open(root *os.Root, name string) (io.ReadCloser, bool, error) {
	f, err := root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open cache file: %w", err)
	}
	if s.compression == CompressionNone {
		return f, true, nil
	}
	dec, err := s.compression.newReader(f)
	if err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("create %s decoder: %w", s.compression, err)
	}
	return &entryReader{Reader: dec, dec: dec, file: f}, true, nil
}

// refresh marks the entry as accessed now. It is best effort: the read has
// already succeeded even if the timestamps cannot be updated.
func (s *Store) refresh(root *os.Root, name string) {
	now := s.now()
	_ = root.Chtimes(name, now, now)
}

// Delete removes the entry at loc.
func (s *Store) Delete(loc store.Location) (bool, error) {
	root, ok, err := s.openRootForRead()
	if err != nil || !ok {
		return false, err
	}
	defer root.Close()

	if err := root.Remove(nativePath(loc)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Touch sets both access and modification time of the entry to t, or to
// now if t is zero. A missing entry is an error matching store.ErrNotFound.
func (s *Store) Touch(loc store.Location, t time.Time) error {
	if t.IsZero() {
		t = s.now()
	}
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return err
	}
	defer root.Close()

	return root.Chtimes(nativePath(loc), t, t)
}

// Stat returns the on-disk size and access time of the entry.
func (s *Store) Stat(loc store.Location) (store.EntryInfo, error) {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return store.EntryInfo{}, err
	}
	defer root.Close()

	info, err := root.Stat(nativePath(loc))
	if err != nil {
		return store.EntryInfo{}, err
	}
	return store.EntryInfo{
		Location:   loc,
		Size:       info.Size(),
		AccessedAt: platform.AccessTime(info),
	}, nil
}

// List returns every entry in the cache, sorted by path.
//
// Listing costs one directory read per shard; callers that need sizes or
// recency must Stat each entry. A missing or unreadable cache directory
// yields an empty list.
func (s *Store) List() ([]store.Location, error) {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, nil
	}
	defer root.Close()

	top, err := readDir(root, ".")
	if err != nil {
		return nil, nil
	}

	var locs []store.Location
	for _, e := range top {
		if s.level == 1 {
			if e.Type().IsRegular() {
				locs = append(locs, store.Location{Name: e.Name()})
			}
			continue
		}
		if !e.IsDir() || utf8.RuneCountInString(e.Name()) != shardNameLen {
			continue
		}
		children, err := readDir(root, e.Name())
		if err != nil {
			continue
		}
		for _, c := range children {
			if c.Type().IsRegular() {
				locs = append(locs, store.Location{Shard: e.Name(), Name: c.Name()})
			}
		}
	}
	return locs, nil
}

// MakeShard creates the shard directory name if it does not exist.
func (s *Store) MakeShard(name string) error {
	root, err := s.openRootForWrite()
	if err != nil {
		return err
	}
	defer root.Close()
	return s.mkShard(root, name)
}

// Clear removes the cache directory and everything beneath it.
func (s *Store) Clear() error {
	return os.RemoveAll(s.dir)
}

func (s *Store) openRootForRead() (*os.Root, bool, error) {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open cache root: %w", err)
	}
	return root, true, nil
}

func (s *Store) openRootForWrite() (*os.Root, error) {
	root, err := os.OpenRoot(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(s.dir, s.dirPerm); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		root, err = os.OpenRoot(s.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("open cache root: %w", err)
	}
	return root, nil
}

func (s *Store) mkShard(root *os.Root, name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid shard name %q", name)
	}
	if err := root.Mkdir(name, s.dirPerm); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create shard dir: %w", err)
	}
	return nil
}

func readDir(root *os.Root, name string) ([]fs.DirEntry, error) {
	d, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	entries, err := d.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return entries, nil
}

func nativePath(loc store.Location) string {
	return filepath.FromSlash(loc.Path())
}

var _ store.Backend = (*Store)(nil)
