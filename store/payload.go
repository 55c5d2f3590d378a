package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind identifies the shape of a Payload.
type Kind uint8

const (
	// KindBytes is a raw byte buffer written verbatim.
	KindBytes Kind = iota
	// KindStructured is a value serialized as JSON before writing.
	KindStructured
	// KindStream is a reader drained into the entry.
	KindStream
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindStructured:
		return "structured"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Payload is the value written to an entry.
//
// Construct payloads with Bytes, Structured or StreamSource.
type Payload struct {
	kind  Kind
	data  []byte
	value any
	r     io.Reader
}

// Bytes returns a payload that writes b verbatim.
func Bytes(b []byte) Payload {
	return Payload{kind: KindBytes, data: b}
}

// Structured returns a payload that writes v encoded as JSON.
func Structured(v any) Payload {
	return Payload{kind: KindStructured, value: v}
}

// StreamSource returns a payload that drains r into the entry.
// A read error from r fails the write.
func StreamSource(r io.Reader) Payload {
	return Payload{kind: KindStream, r: r}
}

// Kind returns the payload kind.
func (p Payload) Kind() Kind {
	return p.kind
}

// Reader returns a reader over the encoded payload.
//
// Bytes payloads are read from memory, structured payloads are encoded
// up front so an encoding error surfaces before any write, and stream
// payloads return the source reader itself.
func (p Payload) Reader() (io.Reader, error) {
	switch p.kind {
	case KindBytes:
		return bytes.NewReader(p.data), nil
	case KindStructured:
		data, err := json.Marshal(p.value)
		if err != nil {
			return nil, fmt.Errorf("encode structured payload: %w", err)
		}
		return bytes.NewReader(data), nil
	case KindStream:
		if p.r == nil {
			return nil, errors.New("stream payload has nil reader")
		}
		return p.r, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %d", p.kind)
	}
}
