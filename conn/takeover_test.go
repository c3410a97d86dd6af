package conn

import (
	"testing"
	"time"

	"github.com/brinewave/mqttd/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeover_DisplacedConnectionReceivesSessionTakenOver(t *testing.T) {
	svc, storage := newSharedService(t)

	first := connectClient(t, svc, storage, "dup")

	// A second CONNECT for the same client-id displaces the first.
	second := attachConn(t, svc, storage)
	second.send(basicConnect("dup", true))

	fh, body := first.next()
	require.Equal(t, encoding.DISCONNECT, fh.Type)
	dc, err := encoding.ParseDisconnectPacket(bytesReader(body), fh)
	require.NoError(t, err)
	assert.Equal(t, encoding.ReasonSessionTakenOver, dc.ReasonCode)

	ack := second.connack()
	assert.Equal(t, encoding.ReasonSuccess, ack.ReasonCode)
}

func TestTakeover_DoesNotHangWhenDisplacedConnectionAlreadyGone(t *testing.T) {
	svc, storage := newSharedService(t)

	first := connectClient(t, svc, storage, "dup")
	_ = first.client.Close()
	time.Sleep(20 * time.Millisecond) // let the first Conn unwind, though it need not fully exit

	second := attachConn(t, svc, storage)
	second.send(basicConnect("dup", true))

	done := make(chan struct{})
	go func() {
		second.connack()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("take-over rendezvous hung waiting on a gone connection")
	}
}
