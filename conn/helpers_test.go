package conn

import (
	"net"
	"testing"

	"github.com/brinewave/mqttd/broker"
	"github.com/brinewave/mqttd/codec/packet"
	"github.com/brinewave/mqttd/encoding"
	"github.com/brinewave/mqttd/hook"
	"github.com/brinewave/mqttd/network"
	"github.com/brinewave/mqttd/store"
)

// harness drives one Conn over a net.Pipe, giving tests a client-side
// net.Conn to write raw MQTT frames into and read raw frames back from.
type harness struct {
	t       *testing.T
	svc     *broker.Service
	storage *store.Storage
	client  net.Conn
	dec     *packet.Decoder
}

func newHarness(t *testing.T, cfg broker.Config) *harness {
	t.Helper()
	return newHarnessWithStorage(t, cfg, store.NewStorage())
}

func newHarnessWithStorage(t *testing.T, cfg broker.Config, storage *store.Storage) *harness {
	t.Helper()
	svc := broker.NewService(cfg, storage, hook.NewManager(), nil)
	return attachConn(t, svc, storage)
}

func newDefaultHarness(t *testing.T) *harness {
	t.Helper()
	return newHarness(t, broker.DefaultConfig())
}

// attachConn wires a fresh Conn onto an already-constructed Service, for
// tests exercising more than one client against the same broker state.
func attachConn(t *testing.T, svc *broker.Service, storage *store.Storage) *harness {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	nc := network.NewConnection(server, "test", nil)
	c := NewConn(svc, nc, nil)

	go c.Run()

	return &harness{t: t, svc: svc, storage: storage, client: client, dec: packet.NewDecoder(client, 0)}
}

// connectClient runs a basic clean-session CONNECT to completion and
// returns the harness once CONNACK has been consumed.
func connectClient(t *testing.T, svc *broker.Service, storage *store.Storage, clientID string) *harness {
	t.Helper()
	h := attachConn(t, svc, storage)
	h.send(basicConnect(clientID, true))
	ack := h.connack()
	if ack.ReasonCode != encoding.ReasonSuccess {
		t.Fatalf("connect failed: reason %v", ack.ReasonCode)
	}
	return h
}

// send writes pkt onto the client side of the pipe.
func (h *harness) send(pkt encoding.Encodable) {
	h.t.Helper()
	if err := pkt.Encode(h.client); err != nil {
		h.t.Fatalf("encode: %v", err)
	}
}

// next decodes the next frame off the client side, converting the wire
// decoder's header type into the encoding package's richer FixedHeader.
func (h *harness) next() (*encoding.FixedHeader, []byte) {
	h.t.Helper()
	header, body, err := h.dec.Next()
	if err != nil {
		h.t.Fatalf("decode: %v", err)
	}
	return convertFixedHeader(header), body
}

func (h *harness) connack() *encoding.ConnackPacket {
	h.t.Helper()
	fh, body := h.next()
	if fh.Type != encoding.CONNACK {
		h.t.Fatalf("expected CONNACK, got %v", fh.Type)
	}
	pkt, err := encoding.ParseConnackPacket(bytesReader(body), fh)
	if err != nil {
		h.t.Fatalf("parse connack: %v", err)
	}
	return pkt
}

func defaultNoWildcardConfig() broker.Config {
	cfg := broker.DefaultConfig()
	cfg.WildcardSubscriptionAvailable = false
	return cfg
}

func basicConnect(clientID string, cleanStart bool) *encoding.ConnectPacket {
	return &encoding.ConnectPacket{
		ProtocolName:    "MQTT",
		ProtocolVersion: encoding.ProtocolVersion50,
		CleanStart:      cleanStart,
		KeepAlive:       60,
		ClientID:        clientID,
	}
}
