package message

import (
	"testing"
	"time"

	"github.com/brinewave/mqttd/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uint32Ptr(v uint32) *uint32 { return &v }

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name       string
		packetID   uint16
		topic      string
		payload    []byte
		qos        encoding.QoS
		retain     bool
		properties *Properties
		wantExpiry bool
	}{
		{
			name:       "qos 0 message without properties",
			packetID:   1,
			topic:      "test/topic",
			payload:    []byte("test payload"),
			qos:        encoding.QoS0,
			retain:     false,
			properties: nil,
			wantExpiry: false,
		},
		{
			name:     "qos 1 message with expiry",
			packetID: 2,
			topic:    "test/topic",
			payload:  []byte("test payload"),
			qos:      encoding.QoS1,
			retain:   true,
			properties: &Properties{
				MessageExpiryInterval: uint32Ptr(60),
			},
			wantExpiry: true,
		},
		{
			name:     "qos 2 message with properties",
			packetID: 3,
			topic:    "test/topic",
			payload:  []byte("test payload"),
			qos:      encoding.QoS2,
			retain:   false,
			properties: &Properties{
				MessageExpiryInterval: uint32Ptr(120),
				ContentType:           "application/json",
			},
			wantExpiry: true,
		},
		{
			name:       "empty payload",
			packetID:   4,
			topic:      "test/topic",
			payload:    []byte{},
			qos:        encoding.QoS1,
			retain:     false,
			properties: nil,
			wantExpiry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewMessage(tt.packetID, tt.topic, tt.payload, tt.qos, tt.retain, tt.properties)

			require.NotNil(t, msg)
			assert.Equal(t, tt.packetID, msg.PacketID)
			assert.Equal(t, tt.topic, msg.Topic)
			assert.Equal(t, tt.payload, msg.Payload)
			assert.Equal(t, tt.qos, msg.QoS)
			assert.Equal(t, tt.retain, msg.Retain)
			assert.False(t, msg.DUP)
			assert.Equal(t, 0, msg.AttemptCount)
			assert.Equal(t, tt.wantExpiry, msg.MessageExpirySet)
			assert.False(t, msg.CreatedAt.IsZero())
			assert.False(t, msg.LastAttemptAt.IsZero())
		})
	}
}

func TestMessage_IsExpired(t *testing.T) {
	tests := []struct {
		name           string
		expiryInterval uint32
		setExpiry      bool
		waitDuration   time.Duration
		wantExpired    bool
	}{
		{
			name:           "not expired - no expiry set",
			expiryInterval: 0,
			setExpiry:      false,
			waitDuration:   0,
			wantExpired:    false,
		},
		{
			name:           "not expired - zero expiry interval",
			expiryInterval: 0,
			setExpiry:      true,
			waitDuration:   0,
			wantExpired:    false,
		},
		{
			name:           "not expired - within expiry time",
			expiryInterval: 60,
			setExpiry:      true,
			waitDuration:   0,
			wantExpired:    false,
		},
		{
			name:           "expired - past expiry time",
			expiryInterval: 1,
			setExpiry:      true,
			waitDuration:   2 * time.Second,
			wantExpired:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var props *Properties
			if tt.setExpiry {
				props = &Properties{MessageExpiryInterval: uint32Ptr(tt.expiryInterval)}
			}

			msg := NewMessage(1, "test/topic", []byte("payload"), encoding.QoS1, false, props)

			if tt.waitDuration > 0 {
				msg.CreatedAt = time.Now().Add(-tt.waitDuration)
			}

			assert.Equal(t, tt.wantExpired, msg.IsExpired())
		})
	}
}

func TestMessage_RemainingExpiry(t *testing.T) {
	tests := []struct {
		name             string
		expiryInterval   uint32
		setExpiry        bool
		elapsed          time.Duration
		wantRemaining    uint32
		wantRemainingMin uint32
	}{
		{
			name:             "no expiry set",
			expiryInterval:   0,
			setExpiry:        false,
			elapsed:          0,
			wantRemaining:    0,
			wantRemainingMin: 0,
		},
		{
			name:             "zero expiry interval",
			expiryInterval:   0,
			setExpiry:        true,
			elapsed:          0,
			wantRemaining:    0,
			wantRemainingMin: 0,
		},
		{
			name:             "no time elapsed",
			expiryInterval:   60,
			setExpiry:        true,
			elapsed:          0,
			wantRemaining:    60,
			wantRemainingMin: 59,
		},
		{
			name:             "partial time elapsed",
			expiryInterval:   60,
			setExpiry:        true,
			elapsed:          30 * time.Second,
			wantRemaining:    30,
			wantRemainingMin: 29,
		},
		{
			name:             "expired",
			expiryInterval:   10,
			setExpiry:        true,
			elapsed:          15 * time.Second,
			wantRemaining:    0,
			wantRemainingMin: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var props *Properties
			if tt.setExpiry {
				props = &Properties{MessageExpiryInterval: uint32Ptr(tt.expiryInterval)}
			}

			msg := NewMessage(1, "test/topic", []byte("payload"), encoding.QoS1, false, props)

			if tt.elapsed > 0 {
				msg.CreatedAt = time.Now().Add(-tt.elapsed)
			}

			remaining := msg.RemainingExpiry()
			assert.GreaterOrEqual(t, remaining, tt.wantRemainingMin)
			assert.LessOrEqual(t, remaining, tt.wantRemaining)
		})
	}
}

func TestMessage_MarkAttempt(t *testing.T) {
	msg := NewMessage(1, "test/topic", []byte("payload"), encoding.QoS1, false, nil)

	assert.Equal(t, 0, msg.AttemptCount)
	assert.False(t, msg.DUP)

	initialTime := msg.LastAttemptAt

	time.Sleep(10 * time.Millisecond)
	msg.MarkAttempt()

	assert.Equal(t, 1, msg.AttemptCount)
	assert.False(t, msg.DUP)
	assert.True(t, msg.LastAttemptAt.After(initialTime))

	msg.MarkAttempt()
	assert.Equal(t, 2, msg.AttemptCount)
	assert.True(t, msg.DUP)

	msg.MarkAttempt()
	assert.Equal(t, 3, msg.AttemptCount)
	assert.True(t, msg.DUP)
}

func TestMessage_Clone(t *testing.T) {
	properties := &Properties{
		MessageExpiryInterval: uint32Ptr(60),
		ContentType:           "application/json",
		UserProperties:        []UserProperty{{Key: "k", Value: "v"}},
	}

	original := NewMessage(1, "test/topic", []byte("payload"), encoding.QoS2, true, properties)
	original.MarkAttempt()
	original.MarkAttempt()

	cloned := original.Clone()

	require.NotNil(t, cloned)
	assert.Equal(t, original.PacketID, cloned.PacketID)
	assert.Equal(t, original.Topic, cloned.Topic)
	assert.Equal(t, original.Payload, cloned.Payload)
	assert.Equal(t, original.QoS, cloned.QoS)
	assert.Equal(t, original.Retain, cloned.Retain)
	assert.Equal(t, original.DUP, cloned.DUP)
	assert.Equal(t, original.AttemptCount, cloned.AttemptCount)
	assert.Equal(t, original.ExpiryInterval, cloned.ExpiryInterval)
	assert.Equal(t, original.MessageExpirySet, cloned.MessageExpirySet)
	assert.Equal(t, original.Properties.ContentType, cloned.Properties.ContentType)

	cloned.Payload[0] = 'X'
	assert.NotEqual(t, original.Payload[0], cloned.Payload[0])

	cloned.Properties.UserProperties[0].Value = "changed"
	assert.Equal(t, "v", original.Properties.UserProperties[0].Value)
}

func TestMessage_CloneWithNilProperties(t *testing.T) {
	original := NewMessage(1, "test/topic", []byte("payload"), encoding.QoS1, false, nil)
	cloned := original.Clone()

	require.NotNil(t, cloned)
	require.NotNil(t, cloned.Properties)
	assert.Empty(t, cloned.Properties.UserProperties)
}

func TestMessage_AllQoSLevels(t *testing.T) {
	tests := []struct {
		name string
		qos  encoding.QoS
	}{
		{
			name: "qos 0",
			qos:  encoding.QoS0,
		},
		{
			name: "qos 1",
			qos:  encoding.QoS1,
		},
		{
			name: "qos 2",
			qos:  encoding.QoS2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewMessage(1, "test/topic", []byte("payload"), tt.qos, false, nil)
			assert.Equal(t, tt.qos, msg.QoS)
		})
	}
}

func TestMessage_LargePayload(t *testing.T) {
	largePayload := make([]byte, 1024*1024)
	for i := range largePayload {
		largePayload[i] = byte(i % 256)
	}

	msg := NewMessage(1, "test/topic", largePayload, encoding.QoS1, false, nil)
	assert.Equal(t, len(largePayload), len(msg.Payload))

	cloned := msg.Clone()
	assert.Equal(t, len(largePayload), len(cloned.Payload))
	assert.Equal(t, msg.Payload, cloned.Payload)
}

func TestProperties_ToEncodingRoundTrip(t *testing.T) {
	expiry := uint32(30)
	props := &Properties{
		PayloadFormatIndicator: true,
		MessageExpiryInterval:  &expiry,
		ContentType:            "text/plain",
		ResponseTopic:          "reply/to",
		CorrelationData:        []byte{1, 2, 3},
		UserProperties:         []UserProperty{{Key: "a", Value: "1"}, {Key: "a", Value: "2"}},
	}

	encoded := props.ToEncoding()
	decoded := FromEncoding(encoded)

	assert.True(t, decoded.PayloadFormatIndicator)
	require.NotNil(t, decoded.MessageExpiryInterval)
	assert.Equal(t, expiry, *decoded.MessageExpiryInterval)
	assert.Equal(t, "text/plain", decoded.ContentType)
	assert.Equal(t, "reply/to", decoded.ResponseTopic)
	assert.Equal(t, []byte{1, 2, 3}, decoded.CorrelationData)
	assert.Len(t, decoded.UserProperties, 2)
}

func TestProperties_FromEncodingNil(t *testing.T) {
	props := FromEncoding(nil)
	require.NotNil(t, props)
	assert.False(t, props.PayloadFormatIndicator)
	assert.Nil(t, props.MessageExpiryInterval)
}
