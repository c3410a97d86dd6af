package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBounded_WithinLimitWrites(t *testing.T) {
	pkt := &PingreqPacket{}
	var buf bytes.Buffer

	err := EncodeBounded(&buf, pkt, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, buf.Bytes())
}

func TestEncodeBounded_OverLimitWritesNothing(t *testing.T) {
	pkt := &PublishPacket{
		FixedHeader: FixedHeader{Type: PUBLISH, QoS: QoS0},
		TopicName:   "a/b/c",
		Payload:     bytes.Repeat([]byte{'x'}, 100),
	}
	var buf bytes.Buffer

	err := EncodeBounded(&buf, pkt, 8)
	assert.ErrorIs(t, err, ErrPacketTooLarge)
	assert.Empty(t, buf.Bytes())
}

func TestEncodeBounded_ZeroMaxSizeIsUnbounded(t *testing.T) {
	pkt := &PingreqPacket{}
	var buf bytes.Buffer

	err := EncodeBounded(&buf, pkt, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, buf.Bytes())
}
