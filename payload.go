package filecache

import (
	"io"

	"github.com/meigma/filecache/store"
)

// Payload is a value to store under a key. See Bytes, Structured and
// StreamSource.
type Payload = store.Payload

// Bytes returns a payload stored verbatim.
func Bytes(b []byte) Payload {
	return store.Bytes(b)
}

// Structured returns a payload stored as the JSON encoding of v.
func Structured(v any) Payload {
	return store.Structured(v)
}

// StreamSource returns a payload drained from r. A read error from r
// fails the Set.
func StreamSource(r io.Reader) Payload {
	return store.StreamSource(r)
}
