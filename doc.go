// Package filecache provides a bounded, on-disk key-value cache.
//
// Each entry is stored as one file beneath a cache directory, named after
// its sanitized key. A background sweep keeps the cache within a maximum
// number of entries and/or a maximum total size by deleting the least
// recently accessed entries.
//
// # Quick Start
//
//	c, err := filecache.New(
//	    filecache.WithDirectory("/var/cache/thumbnails"),
//	    filecache.WithMaxFiles(10000),
//	    filecache.WithMaxSizeString("1 GB"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if _, err := c.SetBytes("avatar-42.png", data); err != nil {
//	    return err
//	}
//	data, ok, err := c.Get("avatar-42.png")
//
// # Keys
//
// Keys must be non-empty and must not contain a path separator; such keys
// are rejected with [ErrInvalidKey] before any filesystem access. Other
// characters that are unsafe in filenames are replaced, so distinct keys
// such as "a:b" and "a_b" share one entry.
//
// With [WithShardingLevel](2) entries are grouped into subdirectories named
// after the last two characters of the key, which keeps directories small
// for large caches.
//
// # Eviction
//
// A sweep ranks entries by last access time, oldest first. It first deletes
// the oldest entries until at most MaxFiles remain, then deletes the oldest
// survivors until their total size fits MaxSize. Reads, writes and Touch
// all count as an access.
//
// The cache keeps no in-memory index. Every sweep lists the directory and
// stats every entry, so its cost grows linearly with the number of entries.
//
// # Concurrency
//
// All methods are safe for concurrent use and may run during a sweep. The
// filesystem is the only shared state and there is no atomicity across
// operations: overwrites happen in place, and an entry written during a
// sweep can be evicted by it.
package filecache
