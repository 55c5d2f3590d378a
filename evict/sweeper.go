// Package evict keeps a cache within its entry-count and byte-size limits.
//
// A sweep lists every entry, stats each one for size and access time, ranks
// them oldest first and deletes whatever Plan selects. Nothing is cached
// between sweeps, so every sweep costs one stat per entry; this is the main
// scalability limit of a cache without an index.
//
// Sweeps are best effort. A listing failure yields an empty sweep, and
// entries that cannot be stat'ed or deleted are skipped and logged. Foreground
// writes are not coordinated with sweeps: an entry written while a sweep is
// running may be evicted by it if it ranks among the oldest.
package evict

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/meigma/filecache/store"
)

// Backend is the subset of store.Backend a sweep needs.
type Backend interface {
	List() ([]store.Location, error)
	Stat(loc store.Location) (store.EntryInfo, error)
	Delete(loc store.Location) (bool, error)
}

// Result summarizes one sweep.
type Result struct {
	Scanned        int   // entries listed
	Skipped        int   // entries that could not be stat'ed
	Evicted        int   // entries deleted
	Failed         int   // planned deletions that returned an error
	FreedBytes     int64 // bytes freed by deletions
	RemainingFiles int   // ranked entries left after the sweep
	RemainingBytes int64 // bytes held by ranked entries left after the sweep
}

// Sweeper runs eviction sweeps against a backend, on demand or periodically.
// The sweeper is safe for concurrent use.
type Sweeper struct {
	backend         Backend
	limits          Limits
	logger          *slog.Logger
	limiter         *rate.Limiter
	statConcurrency int

	group singleflight.Group

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a sweeper enforcing limits on backend.
func New(backend Backend, limits Limits, opts ...Option) (*Sweeper, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}
	if limits.MaxFiles < 0 {
		return nil, errors.New("max files must be >= 0")
	}
	if limits.MaxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	s := &Sweeper{
		backend:         backend,
		limits:          limits,
		statConcurrency: defaultStatConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.statConcurrency < 1 {
		return nil, errors.New("stat concurrency must be >= 1")
	}
	return s, nil
}

// Limits returns the configured limits.
func (s *Sweeper) Limits() Limits {
	return s.limits
}

func (s *Sweeper) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// RunOnce performs a single sweep.
//
// Concurrent calls share one in-flight sweep and receive its result; the
// shared sweep runs under the context of the caller that started it. The
// only errors returned are context errors from throttled deletes or
// cancellation; storage failures are logged and skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	v, err, _ := s.group.Do("sweep", func() (any, error) {
		return s.sweep(ctx)
	})
	res, _ := v.(Result)
	return res, err
}

func (s *Sweeper) sweep(ctx context.Context) (Result, error) {
	if !s.limits.Enabled() {
		return Result{}, nil
	}
	logger := s.log()

	locs, err := s.backend.List()
	if err != nil {
		logger.Warn("list cache entries", slog.Any("error", err))
		return Result{}, nil
	}
	res := Result{Scanned: len(locs)}

	infos, err := s.stat(ctx, locs)
	if err != nil {
		return res, err
	}
	res.Skipped = len(locs) - len(infos)

	victims := Plan(infos, s.limits)
	res.RemainingFiles = len(infos) - len(victims)
	for _, info := range infos {
		res.RemainingBytes += info.Size
	}
	for _, v := range victims {
		res.RemainingBytes -= v.Size
	}

	for _, v := range victims {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return res, fmt.Errorf("wait for delete token: %w", err)
			}
		}
		removed, err := s.backend.Delete(v.Location)
		if err != nil {
			res.Failed++
			logger.Warn("evict cache entry",
				slog.String("location", v.Location.Path()),
				slog.Any("error", err))
			continue
		}
		if !removed {
			// Deleted concurrently; its bytes are gone either way.
			continue
		}
		res.Evicted++
		res.FreedBytes += v.Size
	}

	if len(victims) > 0 {
		logger.Debug("eviction sweep",
			slog.Int("scanned", res.Scanned),
			slog.Int("skipped", res.Skipped),
			slog.Int("evicted", res.Evicted),
			slog.Int("failed", res.Failed),
			slog.Int64("freed_bytes", res.FreedBytes))
	}
	return res, nil
}

// stat collects size and recency for locs in parallel, dropping entries
// that cannot be stat'ed. The result preserves the order of locs.
func (s *Sweeper) stat(ctx context.Context, locs []store.Location) ([]store.EntryInfo, error) {
	infos := make([]store.EntryInfo, len(locs))
	ok := make([]bool, len(locs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.statConcurrency)
	for i, loc := range locs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			info, err := s.backend.Stat(loc)
			if err != nil {
				level := slog.LevelWarn
				if errors.Is(err, fs.ErrNotExist) {
					level = slog.LevelDebug
				}
				s.log().Log(gctx, level, "stat cache entry",
					slog.String("location", loc.Path()),
					slog.Any("error", err))
				return nil
			}
			infos[i] = info
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := infos[:0]
	for i, info := range infos {
		if ok[i] {
			out = append(out, info)
		}
	}
	return out, nil
}

// Start runs a sweep every interval in a background goroutine until Stop is
// called. It reports whether a periodic sweep is armed: nothing is started
// when no limit is configured or interval is not positive. Calling Start on
// a running sweeper is a no-op.
func (s *Sweeper) Start(interval time.Duration) bool {
	if !s.limits.Enabled() || interval <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
					s.log().Warn("eviction sweep", slog.Any("error", err))
				}
			}
		}
	}()
	return true
}

// Running reports whether a periodic sweep is armed.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Stop halts the periodic sweep and waits for an in-progress sweep to
// observe cancellation. It is safe to call Stop more than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
