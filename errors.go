package filecache

import (
	"github.com/meigma/filecache/internal/keypath"
	"github.com/meigma/filecache/store"
)

// Errors re-exported from subpackages.
var (
	// ErrInvalidKey is returned when a key is empty or contains a path
	// separator. It is reported before any filesystem access.
	ErrInvalidKey = keypath.ErrInvalidKey

	// ErrNotFound is returned by Touch when the entry does not exist.
	// Get, Stream, Has and Delete report absence without an error.
	// It matches fs.ErrNotExist.
	ErrNotFound = store.ErrNotFound
)
