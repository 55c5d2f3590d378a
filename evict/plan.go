package evict

import (
	"slices"
	"strings"

	"github.com/meigma/filecache/store"
)

// Limits are the ceilings a sweep enforces. Zero disables a limit.
type Limits struct {
	MaxFiles int   // maximum number of entries
	MaxBytes int64 // maximum cumulative entry size in bytes
}

// Enabled reports whether any limit is configured.
func (l Limits) Enabled() bool {
	return l.MaxFiles > 0 || l.MaxBytes > 0
}

// Plan returns the entries a sweep must delete to satisfy limits, oldest first.
//
// Entries are ranked by access time, oldest first, with ties broken by
// location path. The count limit is applied first by dropping the oldest
// entries until at most MaxFiles remain. The size limit is then applied to
// the survivors, dropping the oldest until their total size is within
// MaxBytes. An entry larger than MaxBytes on its own is always evicted.
func Plan(entries []store.EntryInfo, limits Limits) []store.EntryInfo {
	if !limits.Enabled() || len(entries) == 0 {
		return nil
	}

	ranked := slices.Clone(entries)
	slices.SortFunc(ranked, func(a, b store.EntryInfo) int {
		if c := a.AccessedAt.Compare(b.AccessedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Location.Path(), b.Location.Path())
	})

	cut := 0
	if limits.MaxFiles > 0 && len(ranked) > limits.MaxFiles {
		cut = len(ranked) - limits.MaxFiles
	}
	if limits.MaxBytes > 0 {
		var total int64
		for _, e := range ranked[cut:] {
			total += e.Size
		}
		for cut < len(ranked) && total > limits.MaxBytes {
			total -= ranked[cut].Size
			cut++
		}
	}
	if cut == 0 {
		return nil
	}
	return ranked[:cut]
}
