package packet

import "io"

// State names the phase of a single frame's decode.
type State int

const (
	// AwaitingHeader is reading the fixed header: the type/flags byte and
	// the Variable Byte Integer remaining-length field.
	AwaitingHeader State = iota
	// AwaitingLength has the complete fixed header and is checking its
	// remaining length against maxInputSize.
	AwaitingLength
	// AwaitingBody has a complete fixed header and is reading the body.
	AwaitingBody
)

// Decoder reads one MQTT frame at a time from r, tracking which phase of
// the fixed header it is in so a caller driving it from an async byte
// source (one read at a time) can observe progress. `Next` blocks until a
// full frame is available, matching the connection task's synchronous
// decode suspension point; the phase tracking exists so a frame whose
// declared remaining length exceeds maxInputSize is rejected immediately
// after AwaitingLength, without ever entering AwaitingBody or allocating a
// body buffer.
type Decoder struct {
	r            io.Reader
	maxInputSize uint32
	state        State
}

// NewDecoder creates a Decoder bounding any single frame's body to
// maxInputSize bytes. A maxInputSize of 0 means unbounded.
func NewDecoder(r io.Reader, maxInputSize uint32) *Decoder {
	return &Decoder{r: r, maxInputSize: maxInputSize}
}

// State reports the decoder's current phase (only meaningful while a Next
// call is in flight on another goroutine; for single-goroutine use it is
// always AwaitingHeader between calls).
func (d *Decoder) State() State {
	return d.state
}

// Next decodes the next frame's fixed header and body. On a remaining
// length greater than maxInputSize, it returns ErrPacketTooLarge without
// reading the body off the wire — the caller must close the connection,
// since the stream is now desynchronized.
func (d *Decoder) Next() (*FixedHeader, []byte, error) {
	d.state = AwaitingHeader
	header, err := d.readHeader()
	if err != nil {
		d.state = AwaitingHeader
		return nil, nil, err
	}

	d.state = AwaitingLength
	if d.maxInputSize > 0 && header.RemainingLength > d.maxInputSize {
		d.state = AwaitingHeader
		return header, nil, ErrPacketTooLarge
	}

	d.state = AwaitingBody
	body := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		if _, err := io.ReadFull(d.r, body); err != nil {
			d.state = AwaitingHeader
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, nil, ErrUnexpectedEOF
			}
			return nil, nil, err
		}
	}

	d.state = AwaitingHeader
	return header, body, nil
}

func (d *Decoder) readHeader() (*FixedHeader, error) {
	return ParseFixedHeader(d.r)
}
