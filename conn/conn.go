package conn

import (
	"bytes"
	"log/slog"

	"github.com/brinewave/mqttd/broker"
	"github.com/brinewave/mqttd/codec/packet"
	"github.com/brinewave/mqttd/encoding"
	"github.com/brinewave/mqttd/network"
	"github.com/brinewave/mqttd/qos"
	"github.com/brinewave/mqttd/topic"
)

// State is one of the three connection states of spec.md §4.5.
type State byte

const (
	StateHandshake State = iota
	StateLive
	StateDraining
)

// rawFrame is one decoded-but-unparsed frame handed from the reader
// goroutine to Run's select loop, or a terminal decode error.
type rawFrame struct {
	header *encoding.FixedHeader
	body   []byte
	err    error
}

// Conn drives one client connection through Handshake, Live, and Draining,
// per spec.md §4.5. It owns no socket directly — network.Connection wraps
// that — and consults broker.Service for plug-ins, configuration, the
// delivery engine, and the session take-over registry.
type Conn struct {
	svc *broker.Service
	nc  *network.Connection
	dec *packet.Decoder
	log *slog.Logger

	protocolLevel encoding.ProtocolLevel
	state         State

	clientID   string
	uid        string
	cleanStart bool

	quota        *qos.Quota
	packetIDs    *qos.PacketIDAllocator
	inboundAlias *topic.Alias
	maxPacketOut uint32 // 0 = unbounded; the peer's declared inbound cap

	keepAlive *network.KeepAlive
	control   chan broker.TakeoverRequest

	frames chan rawFrame
}

// newControlChannel returns an unbuffered take-over control channel: a send
// only succeeds while the receiving Conn is actively parked in runLive's
// select, so handleConnect's take-over rendezvous can tell "still live"
// apart from "already exited" via select/default instead of silently
// queuing into a buffer nobody will ever drain.
func newControlChannel() chan broker.TakeoverRequest {
	return make(chan broker.TakeoverRequest)
}

// NewConn wraps a live network.Connection with the CONNECT-negotiation and
// packet-handling state machine. The caller must call Run to drive it.
func NewConn(svc *broker.Service, nc *network.Connection, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}
	maxIn := svc.Config.MaxPacketSize
	return &Conn{
		svc:       svc,
		nc:        nc,
		dec:       packet.NewDecoder(nc, maxIn),
		log:       log,
		state:     StateHandshake,
		packetIDs: qos.NewPacketIDAllocator(),
		control:   newControlChannel(),
		frames:    make(chan rawFrame, 8),
	}
}

// Run drives the connection to completion: CONNECT handshake, then the Live
// select loop, then teardown. It blocks until the connection closes.
func (c *Conn) Run() {
	go c.readLoop()

	outcome := c.awaitConnect()
	if outcome.IsOK() {
		c.state = StateLive
		c.svc.Metrics.ClientConnected()
		c.keepAlive.Start()
		outcome = c.runLive()
		c.keepAlive.Stop()
	}

	c.finish(outcome)
}

// readLoop decodes frames off the socket and forwards them to Run.
func (c *Conn) readLoop() {
	for {
		before := c.nc.BytesRead()
		header, body, err := c.dec.Next()
		c.svc.Metrics.Add(broker.CounterBytesReceived, c.nc.BytesRead()-before)
		c.frames <- rawFrame{header: convertFixedHeader(header), body: body, err: err}
		if err != nil {
			return
		}
	}
}

// convertFixedHeader adapts codec/packet's wire-decode header (the layer
// that knows nothing of MQTT 5.0 properties) to the encoding package's
// richer FixedHeader that the rest of Conn operates on. The two enums
// share numeric values by construction.
func convertFixedHeader(h *packet.FixedHeader) *encoding.FixedHeader {
	if h == nil {
		return nil
	}
	return &encoding.FixedHeader{
		Type:            encoding.PacketType(h.Type),
		Flags:           h.Flags,
		RemainingLength: h.RemainingLength,
		DUP:             h.DUP,
		QoS:             encoding.QoS(h.QoS),
		Retain:          h.Retain,
	}
}

// awaitConnect blocks until the first frame arrives and processes it as a
// CONNECT, per spec.md §4.5.1. Any other first packet is a protocol error.
func (c *Conn) awaitConnect() Outcome {
	frame, ok := <-c.frames
	if !ok {
		return ClientDisconnect()
	}
	if frame.err != nil {
		return ServerDisconnect(encoding.ReasonMalformedPacket)
	}
	if frame.header.Type != encoding.CONNECT {
		return ServerDisconnect(encoding.ReasonProtocolError)
	}

	return c.handleConnect(frame.header, frame.body)
}

// runLive is the select-style loop of spec.md §4.5: inbound frames, the
// session's outbound notification, the keep-alive timer, and the take-over
// control channel. No lock is held across any of these receives.
func (c *Conn) runLive() Outcome {
	notify := c.svc.Storage.Notify(c.clientID)

	for {
		select {
		case frame, ok := <-c.frames:
			if !ok || frame.err != nil {
				return ClientDisconnect()
			}
			if out := c.dispatch(frame.header, frame.body); !out.IsOK() {
				return out
			}

		case <-notify:
			if out := c.deliverOutbound(); !out.IsOK() {
				return out
			}

		case <-c.keepAlive.TimedOut():
			return ServerDisconnect(encoding.ReasonKeepAliveTimeout)

		case req := <-c.control:
			close(req.Done)
			return SessionTakenOver()
		}
	}
}

// dispatch parses one frame's body into its concrete packet and routes it
// to the matching handler.
func (c *Conn) dispatch(fh *encoding.FixedHeader, body []byte) Outcome {
	r := bytes.NewReader(body)

	switch fh.Type {
	case encoding.PUBLISH:
		pkt, err := encoding.ParsePublishPacket(r, fh)
		if err != nil {
			return ServerDisconnect(encoding.ReasonMalformedPacket)
		}
		return c.handlePublish(pkt)

	case encoding.PUBACK:
		pkt, err := encoding.ParsePubackPacket(r, fh)
		if err != nil {
			return ServerDisconnect(encoding.ReasonMalformedPacket)
		}
		return c.handlePuback(pkt)

	case encoding.PUBREC:
		pkt, err := encoding.ParsePubrecPacket(r, fh)
		if err != nil {
			return ServerDisconnect(encoding.ReasonMalformedPacket)
		}
		return c.handlePubrec(pkt)

	case encoding.PUBREL:
		pkt, err := encoding.ParsePubrelPacket(r, fh)
		if err != nil {
			return ServerDisconnect(encoding.ReasonMalformedPacket)
		}
		return c.handlePubrel(pkt)

	case encoding.PUBCOMP:
		pkt, err := encoding.ParsePubcompPacket(r, fh)
		if err != nil {
			return ServerDisconnect(encoding.ReasonMalformedPacket)
		}
		return c.handlePubcomp(pkt)

	case encoding.SUBSCRIBE:
		pkt, err := encoding.ParseSubscribePacket(r, fh)
		if err != nil {
			return ServerDisconnect(encoding.ReasonMalformedPacket)
		}
		return c.handleSubscribe(pkt)

	case encoding.UNSUBSCRIBE:
		pkt, err := encoding.ParseUnsubscribePacket(r, fh)
		if err != nil {
			return ServerDisconnect(encoding.ReasonMalformedPacket)
		}
		return c.handleUnsubscribe(pkt)

	case encoding.PINGREQ:
		return c.handlePingreq()

	case encoding.DISCONNECT:
		pkt, err := encoding.ParseDisconnectPacket(r, fh)
		if err != nil {
			return ServerDisconnect(encoding.ReasonMalformedPacket)
		}
		return c.handleDisconnect(pkt)

	case encoding.CONNECT:
		// A second CONNECT on an already-established connection is a
		// protocol violation (MQTT 5.0 §3.1).
		return ServerDisconnect(encoding.ReasonProtocolError)

	default:
		return ServerDisconnect(encoding.ReasonProtocolError)
	}
}

// send encodes pkt and writes it to the socket, bounded by the peer's
// declared inbound max-packet-size.
func (c *Conn) send(pkt encoding.Encodable) error {
	before := c.nc.BytesWritten()
	if err := encoding.EncodeBounded(c.nc, pkt, c.maxPacketOut); err != nil {
		return err
	}
	c.svc.Metrics.Add(broker.CounterMessagesSent, 1)
	c.svc.Metrics.Add(broker.CounterBytesSent, c.nc.BytesWritten()-before)
	return nil
}

// finish runs every side effect implied by outcome: emitting DISCONNECT
// when required, closing the transport, and — unless this loss was itself
// a session take-over, in which case the new connection already owns the
// registry entry — releasing this connection's registry slot and running
// disconnect_session so will/expiry timers install.
func (c *Conn) finish(outcome Outcome) {
	switch outcome.Kind {
	case KindServerDisconnect, KindSessionTakenOver:
		pkt := &encoding.DisconnectPacket{ReasonCode: outcome.Reason}
		if outcome.ReasonText != "" {
			_ = pkt.Properties.AddProperty(encoding.PropReasonString, outcome.ReasonText)
		}
		_ = c.send(pkt)
	}
	_ = c.nc.Close()

	if c.clientID == "" {
		return
	}

	c.svc.Metrics.ClientDisconnected(false)

	if outcome.Kind == KindSessionTakenOver {
		return
	}

	c.svc.Unregister(c.clientID, c.control)
	c.svc.Storage.DisconnectSession(c.clientID, !outcome.SuppressWill)
}
