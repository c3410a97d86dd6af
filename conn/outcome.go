// Package conn implements the per-connection state machine of spec.md §4.5:
// CONNECT negotiation, inbound/outbound PUBLISH at every QoS, SUBSCRIBE/
// UNSUBSCRIBE, keep-alive, and session take-over, driven by a select-style
// loop over a decoded-packet channel, the session's outbound notification,
// a keep-alive timer, and a take-over control channel.
package conn

import "github.com/brinewave/mqttd/encoding"

// Kind is one of the four propagation classes every inbound handler
// resolves to, per spec.md §4.5.6/§7.
type Kind byte

const (
	// KindOK means keep running the Live loop; nothing to send.
	KindOK Kind = iota
	// KindServerDisconnect sends a DISCONNECT with Reason, then closes.
	KindServerDisconnect
	// KindClientDisconnect closes without emitting a DISCONNECT (the peer
	// already said goodbye, or the transport died under us).
	KindClientDisconnect
	// KindSessionTakenOver closes after sending DISCONNECT SessionTakenOver.
	KindSessionTakenOver
)

// Outcome is the sum type every handler in this package returns; Conn.finish
// maps it onto the socket before touching anything else.
type Outcome struct {
	Kind       Kind
	Reason     encoding.ReasonCode
	ReasonText string

	// SuppressWill is set when a graceful client DISCONNECT(NormalDisconnection)
	// should disarm the session's last-will before disconnect_session runs,
	// per spec.md §4.5.5.
	SuppressWill bool
}

// OK is the common case: the handler completed successfully.
func OK() Outcome { return Outcome{Kind: KindOK} }

// ServerDisconnect tells the caller to emit DISCONNECT(reason) then close.
func ServerDisconnect(reason encoding.ReasonCode) Outcome {
	return Outcome{Kind: KindServerDisconnect, Reason: reason}
}

// ServerDisconnectf is ServerDisconnect with a human-readable reason string
// forwarded in the DISCONNECT's ReasonString property.
func ServerDisconnectf(reason encoding.ReasonCode, text string) Outcome {
	return Outcome{Kind: KindServerDisconnect, Reason: reason, ReasonText: text}
}

// ClientDisconnect tells the caller to close without sending DISCONNECT.
func ClientDisconnect() Outcome {
	return Outcome{Kind: KindClientDisconnect}
}

// ClientDisconnectGraceful is ClientDisconnect with the last-will disarmed,
// for a peer DISCONNECT carrying reason NormalDisconnection.
func ClientDisconnectGraceful() Outcome {
	return Outcome{Kind: KindClientDisconnect, SuppressWill: true}
}

// SessionTakenOver tells the caller to send DISCONNECT SessionTakenOver then
// close, without running the will/expiry timers.
func SessionTakenOver() Outcome {
	return Outcome{Kind: KindSessionTakenOver, Reason: encoding.ReasonSessionTakenOver}
}

// IsOK reports whether the outcome requires no special handling.
func (o Outcome) IsOK() bool { return o.Kind == KindOK }
