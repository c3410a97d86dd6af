package conn

import "github.com/brinewave/mqttd/encoding"

// handlePingreq replies to a keep-alive ping. Only the client ever sends
// PINGREQ; the server's own keep-alive watchdog only ever times out, per
// spec.md §4.5.5 — it never originates a ping itself.
func (c *Conn) handlePingreq() Outcome {
	if err := c.send(&encoding.PingrespPacket{}); err != nil {
		return ClientDisconnect()
	}
	return OK()
}

// handleDisconnect processes a peer-initiated DISCONNECT. A normal
// disconnect disarms the session's last-will before teardown; any other
// reason code (e.g. DisconnectWithWillMessage) leaves the will armed.
func (c *Conn) handleDisconnect(pkt *encoding.DisconnectPacket) Outcome {
	if pkt.ReasonCode == encoding.ReasonNormalDisconnection {
		return ClientDisconnectGraceful()
	}
	return ClientDisconnect()
}
