package testutil

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/meigma/filecache/store"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memEntry struct {
	data       []byte
	accessedAt time.Time
}

// MemBackend implements store.Backend in memory for tests.
//
// Failures can be injected per location with FailStat and FailDelete, and
// for listing with FailList.
type MemBackend struct {
	mu         sync.Mutex
	clock      *Clock
	entries    map[store.Location]*memEntry
	shards     map[string]struct{}
	statErrs   map[store.Location]error
	deleteErrs map[store.Location]error
	listErr    error
	deletes    []store.Location
}

// NewMemBackend returns an empty backend using clock for timestamps.
func NewMemBackend(clock *Clock) *MemBackend {
	return &MemBackend{
		clock:      clock,
		entries:    make(map[store.Location]*memEntry),
		shards:     make(map[string]struct{}),
		statErrs:   make(map[store.Location]error),
		deleteErrs: make(map[store.Location]error),
	}
}

// FailStat makes Stat return err for loc.
func (b *MemBackend) FailStat(loc store.Location, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statErrs[loc] = err
}

// FailDelete makes Delete return err for loc.
func (b *MemBackend) FailDelete(loc store.Location, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteErrs[loc] = err
}

// FailList makes List return err.
func (b *MemBackend) FailList(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
}

// Deletes returns every location passed to a successful Delete, in order.
func (b *MemBackend) Deletes() []store.Location {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.deletes)
}

// Exists implements store.Backend.
func (b *MemBackend) Exists(loc store.Location) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[loc]
	return ok
}

// Write implements store.Backend.
func (b *MemBackend) Write(loc store.Location, p store.Payload) (string, error) {
	r, err := p.Reader()
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[loc] = &memEntry{data: data, accessedAt: b.clock.Now()}
	return "/mem/" + loc.Path(), nil
}

// Read implements store.Backend.
func (b *MemBackend) Read(loc store.Location) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[loc]
	if !ok {
		return nil, false, nil
	}
	e.accessedAt = b.clock.Now()
	return bytes.Clone(e.data), true, nil
}

// ReadStream implements store.Backend.
func (b *MemBackend) ReadStream(loc store.Location) (io.ReadCloser, bool, error) {
	data, ok, err := b.Read(loc)
	if err != nil || !ok {
		return nil, ok, err
	}
	return io.NopCloser(bytes.NewReader(data)), true, nil
}

// Delete implements store.Backend.
func (b *MemBackend) Delete(loc store.Location) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.deleteErrs[loc]; err != nil {
		return false, err
	}
	if _, ok := b.entries[loc]; !ok {
		return false, nil
	}
	delete(b.entries, loc)
	b.deletes = append(b.deletes, loc)
	return true, nil
}

// Touch implements store.Backend.
func (b *MemBackend) Touch(loc store.Location, t time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[loc]
	if !ok {
		return store.ErrNotFound
	}
	if t.IsZero() {
		t = b.clock.Now()
	}
	e.accessedAt = t
	return nil
}

// Stat implements store.Backend.
func (b *MemBackend) Stat(loc store.Location) (store.EntryInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.statErrs[loc]; err != nil {
		return store.EntryInfo{}, err
	}
	e, ok := b.entries[loc]
	if !ok {
		return store.EntryInfo{}, store.ErrNotFound
	}
	return store.EntryInfo{Location: loc, Size: int64(len(e.data)), AccessedAt: e.accessedAt}, nil
}

// List implements store.Backend.
func (b *MemBackend) List() ([]store.Location, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	locs := make([]store.Location, 0, len(b.entries))
	for loc := range b.entries {
		locs = append(locs, loc)
	}
	slices.SortFunc(locs, func(x, y store.Location) int {
		return strings.Compare(x.Path(), y.Path())
	})
	return locs, nil
}

// MakeShard implements store.Backend.
func (b *MemBackend) MakeShard(name string) error {
	if name == "" {
		return errors.New("empty shard name")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shards[name] = struct{}{}
	return nil
}

// Clear implements store.Backend.
func (b *MemBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.entries)
	clear(b.shards)
	return nil
}

var _ store.Backend = (*MemBackend)(nil)
