package encoding

import (
	"bytes"
	"io"
)

// Encodable is any packet type with an Encode method, which every
// Packet/Packet311 struct in this package implements.
type Encodable interface {
	Encode(w io.Writer) error
}

// EncodeBounded encodes p into a scratch buffer first; if the result
// exceeds maxSize it returns ErrPacketTooLarge and writes nothing to w.
// A maxSize of 0 means unbounded (falls through to a plain p.Encode(w)).
//
// This enforces output_max_size (Testable Property 2, spec.md §8):
// oversized packets never partially reach the wire.
func EncodeBounded(w io.Writer, p Encodable, maxSize uint32) error {
	if maxSize == 0 {
		return p.Encode(w)
	}

	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return err
	}

	if uint32(buf.Len()) > maxSize {
		return ErrPacketTooLarge
	}

	_, err := w.Write(buf.Bytes())
	return err
}
