package disk

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meigma/filecache/store"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, dir
}

func TestStoreWriteRead(t *testing.T) {
	t.Parallel()

	s, dir := newTestStore(t)
	loc := store.Location{Name: "key"}
	content := []byte("sample_value")

	path, err := s.Write(loc, store.Bytes(content))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if want := filepath.Join(dir, "key"); path != want {
		t.Fatalf("Write() path = %q, want %q", path, want)
	}
	if !s.Exists(loc) {
		t.Fatal("Exists() = false, want true")
	}

	got, ok, err := s.Read(loc)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !ok {
		t.Fatal("Read() ok = false, want true")
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("Read() = %q, want %q", got, content)
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(onDisk, content) {
		t.Fatalf("file content = %q, want %q", onDisk, content)
	}
}

func TestStoreWriteStructured(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	loc := store.Location{Name: "doc"}
	value := struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}{"cache", 3}

	if _, err := s.Write(loc, store.Structured(value)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, _, err := s.Read(loc)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if want := `{"name":"cache","count":3}`; string(got) != want {
		t.Fatalf("Read() = %s, want %s", got, want)
	}
}

func TestStoreWriteStream(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	loc := store.Location{Name: "streamed"}
	content := strings.Repeat("stream data ", 1000)

	if _, err := s.Write(loc, store.StreamSource(strings.NewReader(content))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, _, err := s.Read(loc)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != content {
		t.Fatalf("Read() returned %d bytes, want %d", len(got), len(content))
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestStoreWriteStreamError(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	loc := store.Location{Name: "broken"}
	errBoom := errors.New("boom")

	src := io.MultiReader(strings.NewReader("partial"), failingReader{errBoom})
	if _, err := s.Write(loc, store.StreamSource(src)); !errors.Is(err, errBoom) {
		t.Fatalf("Write() error = %v, want %v", err, errBoom)
	}
	if s.Exists(loc) {
		t.Fatal("Exists() = true after failed write, want false")
	}
}

func TestStoreMissingEntry(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	loc := store.Location{Name: "missing"}

	if s.Exists(loc) {
		t.Fatal("Exists() = true, want false")
	}
	data, ok, err := s.Read(loc)
	if err != nil || ok || data != nil {
		t.Fatalf("Read() = (%q, %v, %v), want (nil, false, nil)", data, ok, err)
	}
	rc, ok, err := s.ReadStream(loc)
	if err != nil || ok || rc != nil {
		t.Fatalf("ReadStream() = (%v, %v, %v), want (nil, false, nil)", rc, ok, err)
	}
	removed, err := s.Delete(loc)
	if err != nil || removed {
		t.Fatalf("Delete() = (%v, %v), want (false, nil)", removed, err)
	}
	if err := s.Touch(loc, time.Time{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Touch() error = %v, want ErrNotFound", err)
	}
	if _, err := s.Stat(loc); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Stat() error = %v, want ErrNotFound", err)
	}
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	loc := store.Location{Name: "key"}
	if _, err := s.Write(loc, store.Bytes([]byte("v"))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	removed, err := s.Delete(loc)
	if err != nil || !removed {
		t.Fatalf("Delete() = (%v, %v), want (true, nil)", removed, err)
	}
	removed, err = s.Delete(loc)
	if err != nil || removed {
		t.Fatalf("second Delete() = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestStoreRecency(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, WithClock(func() time.Time { return now }))
	loc := store.Location{Name: "key"}

	if _, err := s.Write(loc, store.Bytes([]byte("v1"))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	assertAccessedAt(t, s, loc, now)

	touched := now.Add(-time.Hour)
	if err := s.Touch(loc, touched); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	assertAccessedAt(t, s, loc, touched)

	// Reads refresh recency.
	if _, _, err := s.Read(loc); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	assertAccessedAt(t, s, loc, now)

	// Overwrites reset recency.
	if err := s.Touch(loc, touched); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if _, err := s.Write(loc, store.Bytes([]byte("v2"))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	assertAccessedAt(t, s, loc, now)

	// Zero time means now.
	if err := s.Touch(loc, touched); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if err := s.Touch(loc, time.Time{}); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	assertAccessedAt(t, s, loc, now)
}

func assertAccessedAt(t *testing.T, s *Store, loc store.Location, want time.Time) {
	t.Helper()
	info, err := s.Stat(loc)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.AccessedAt.Equal(want) {
		t.Fatalf("AccessedAt = %v, want %v", info.AccessedAt, want)
	}
}

func TestStoreStatSize(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	loc := store.Location{Name: "six"}
	if _, err := s.Write(loc, store.Bytes([]byte("123456"))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	info, err := s.Stat(loc)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size != 6 {
		t.Fatalf("Size = %d, want 6", info.Size)
	}
	if info.Location != loc {
		t.Fatalf("Location = %v, want %v", info.Location, loc)
	}
}

func TestStoreReadStreamIndependentHandles(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	loc := store.Location{Name: "key"}
	if _, err := s.Write(loc, store.Bytes([]byte("abcdef"))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	r1, ok, err := s.ReadStream(loc)
	if err != nil || !ok {
		t.Fatalf("ReadStream() = (%v, %v)", ok, err)
	}
	defer r1.Close()
	r2, ok, err := s.ReadStream(loc)
	if err != nil || !ok {
		t.Fatalf("ReadStream() = (%v, %v)", ok, err)
	}
	defer r2.Close()

	buf := make([]byte, 3)
	if _, err := io.ReadFull(r1, buf); err != nil {
		t.Fatalf("ReadFull() error = %v", err)
	}
	all, err := io.ReadAll(r2)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(buf) != "abc" || string(all) != "abcdef" {
		t.Fatalf("handles share state: r1=%q r2=%q", buf, all)
	}
}

func TestStoreShardedLayout(t *testing.T) {
	t.Parallel()

	s, dir := newTestStore(t, WithShardingLevel(2))
	locs := []store.Location{
		{Shard: "ey", Name: "key"},
		{Shard: "ey", Name: "other-key"},
		{Shard: "_a", Name: "a"},
	}
	for _, loc := range locs {
		if err := s.MakeShard(loc.Shard); err != nil {
			t.Fatalf("MakeShard() error = %v", err)
		}
		if err := s.MakeShard(loc.Shard); err != nil {
			t.Fatalf("repeated MakeShard() error = %v", err)
		}
		if _, err := s.Write(loc, store.Bytes([]byte(loc.Name))); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "ey", "key")); err != nil {
		t.Fatalf("expected sharded file: %v", err)
	}

	// Stray files at the top level are not entries in sharded mode.
	if err := os.WriteFile(filepath.Join(dir, "stray"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []store.Location{
		{Shard: "_a", Name: "a"},
		{Shard: "ey", Name: "key"},
		{Shard: "ey", Name: "other-key"},
	}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStoreFlatListSkipsDirectories(t *testing.T) {
	t.Parallel()

	s, dir := newTestStore(t)
	for _, name := range []string{"b", "a"} {
		if _, err := s.Write(store.Location{Name: name}, store.Bytes([]byte(name))); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "zz"), 0o700); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Fatalf("List() = %v, want [a b]", got)
	}
}

func TestStoreClear(t *testing.T) {
	t.Parallel()

	s, dir := newTestStore(t, WithShardingLevel(2))
	loc := store.Location{Shard: "ey", Name: "key"}
	if _, err := s.Write(loc, store.Bytes([]byte("v"))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cache dir still exists: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}

	locs, err := s.List()
	if err != nil || len(locs) != 0 {
		t.Fatalf("List() = (%v, %v), want empty", locs, err)
	}
	if s.Exists(loc) {
		t.Fatal("Exists() = true after Clear")
	}

	// Writes recreate the directory.
	if _, err := s.Write(loc, store.Bytes([]byte("again"))); err != nil {
		t.Fatalf("Write() after Clear error = %v", err)
	}
	got, ok, err := s.Read(loc)
	if err != nil || !ok || string(got) != "again" {
		t.Fatalf("Read() = (%q, %v, %v)", got, ok, err)
	}
}

func TestStoreRejectsEscape(t *testing.T) {
	t.Parallel()

	s, dir := newTestStore(t)
	loc := store.Location{Name: filepath.Join("..", "escaped")}
	if _, err := s.Write(loc, store.Bytes([]byte("x"))); err == nil {
		t.Fatal("Write() error = nil, want error for escaping location")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escaped")); err == nil {
		t.Fatal("file was written outside the cache dir")
	}
}

func TestStoreCompression(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("compressible payload "), 512)
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4, CompressionSnappy} {
		t.Run(c.String(), func(t *testing.T) {
			t.Parallel()

			s, _ := newTestStore(t, WithCompression(c))
			loc := store.Location{Name: "entry"}
			path, err := s.Write(loc, store.Bytes(content))
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			got, ok, err := s.Read(loc)
			if err != nil || !ok {
				t.Fatalf("Read() = (%v, %v)", ok, err)
			}
			if !bytes.Equal(got, content) {
				t.Fatal("Read() content mismatch")
			}

			rc, ok, err := s.ReadStream(loc)
			if err != nil || !ok {
				t.Fatalf("ReadStream() = (%v, %v)", ok, err)
			}
			streamed, err := io.ReadAll(rc)
			if closeErr := rc.Close(); closeErr != nil {
				t.Fatalf("Close() error = %v", closeErr)
			}
			if err != nil || !bytes.Equal(streamed, content) {
				t.Fatalf("streamed content mismatch: %v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("Stat() error = %v", err)
			}
			if c != CompressionNone && info.Size() >= int64(len(content)) {
				t.Fatalf("on-disk size %d not smaller than payload %d", info.Size(), len(content))
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Compression{
		"":       CompressionNone,
		"none":   CompressionNone,
		"ZSTD":   CompressionZstd,
		"lz4":    CompressionLZ4,
		"snappy": CompressionSnappy,
	} {
		got, err := ParseCompression(in)
		if err != nil || got != want {
			t.Fatalf("ParseCompression(%q) = (%v, %v), want %v", in, got, err, want)
		}
	}
	if _, err := ParseCompression("brotli"); err == nil {
		t.Fatal("ParseCompression(brotli) error = nil, want error")
	}
}

func TestNewInvalid(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") error = nil, want error")
	}
	if _, err := New(t.TempDir(), WithShardingLevel(3)); err == nil {
		t.Fatal("New() with level 3 error = nil, want error")
	}
	if _, err := New(t.TempDir(), WithCompression(Compression(99))); err == nil {
		t.Fatal("New() with unknown compression error = nil, want error")
	}
}

func TestNewCreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "cache")
	if _, err := New(dir); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("cache dir not created: %v", err)
	}
}
