package encoding

// ProtocolVersion identifies the MQTT protocol level declared in a
// CONNECT packet's variable header.
type ProtocolVersion byte

const (
	ProtocolVersion31  ProtocolVersion = 3
	ProtocolVersion311 ProtocolVersion = 4
	ProtocolVersion50  ProtocolVersion = 5
)

// String returns a human-readable protocol version name.
func (v ProtocolVersion) String() string {
	switch v {
	case ProtocolVersion31:
		return "MQTT 3.1"
	case ProtocolVersion311:
		return "MQTT 3.1.1"
	case ProtocolVersion50:
		return "MQTT 5.0"
	default:
		return "unknown"
	}
}

// ProtocolLevel latches the protocol version declared by a connection's
// first CONNECT packet. conn records the level here after the handshake;
// the packet encoders and decoders do not read it, so later packets on the
// connection are encoded and decoded with the MQTT 5.0 layouts whatever
// level was latched.
type ProtocolLevel struct {
	version ProtocolVersion
	latched bool
}

// Latch fixes the connection's protocol level. Calling it a second time is
// a no-op — the level never changes once set.
func (p *ProtocolLevel) Latch(v ProtocolVersion) {
	if p.latched {
		return
	}
	p.version = v
	p.latched = true
}

// Latched reports whether a CONNECT has been decoded yet.
func (p *ProtocolLevel) Latched() bool {
	return p.latched
}

// Version returns the latched protocol version. Before Latch is called it
// returns the zero ProtocolVersion.
func (p *ProtocolLevel) Version() ProtocolVersion {
	return p.version
}

// IsV5 reports whether the latched level is MQTT 5.0. Before latching it
// is false.
func (p *ProtocolLevel) IsV5() bool {
	return p.latched && p.version == ProtocolVersion50
}
