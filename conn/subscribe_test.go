package conn

import (
	"testing"

	"github.com/brinewave/mqttd/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribe_GrantsRequestedQoS(t *testing.T) {
	svc, storage := newSharedService(t)
	sub := connectClient(t, svc, storage, "subscriber")

	sub.send(&encoding.SubscribePacket{
		PacketID: 5,
		Subscriptions: []encoding.Subscription{
			{TopicFilter: "a/b", QoS: encoding.QoS1},
		},
	})

	fh, body := sub.next()
	require.Equal(t, encoding.SUBACK, fh.Type)
	ack, err := encoding.ParseSubackPacket(bytesReader(body), fh)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), ack.PacketID)
	require.Len(t, ack.ReasonCodes, 1)
	assert.Equal(t, encoding.ReasonGrantedQoS1, ack.ReasonCodes[0])
}

func TestSubscribe_WildcardRejectedWhenDisabled(t *testing.T) {
	cfg := defaultNoWildcardConfig()
	h := newHarness(t, cfg)
	h.send(basicConnect("sub", true))
	ack := h.connack()
	require.Equal(t, encoding.ReasonSuccess, ack.ReasonCode)

	h.send(&encoding.SubscribePacket{
		PacketID: 1,
		Subscriptions: []encoding.Subscription{
			{TopicFilter: "a/#", QoS: 0},
		},
	})

	fh, body := h.next()
	require.Equal(t, encoding.SUBACK, fh.Type)
	suback, err := encoding.ParseSubackPacket(bytesReader(body), fh)
	require.NoError(t, err)
	require.Len(t, suback.ReasonCodes, 1)
	assert.Equal(t, encoding.ReasonWildcardSubscriptionsNotSupported, suback.ReasonCodes[0])
}

func TestUnsubscribe_ReportsNoSubscriptionExisted(t *testing.T) {
	svc, storage := newSharedService(t)
	h := connectClient(t, svc, storage, "subscriber")

	h.send(&encoding.UnsubscribePacket{
		PacketID:     2,
		TopicFilters: []string{"never/subscribed"},
	})

	fh, body := h.next()
	require.Equal(t, encoding.UNSUBACK, fh.Type)
	ack, err := encoding.ParseUnsubackPacket(bytesReader(body), fh)
	require.NoError(t, err)
	require.Len(t, ack.ReasonCodes, 1)
	assert.Equal(t, encoding.ReasonNoSubscriptionExisted, ack.ReasonCodes[0])
}

func TestUnsubscribe_SucceedsAfterSubscribe(t *testing.T) {
	svc, storage := newSharedService(t)
	h := connectClient(t, svc, storage, "subscriber")

	h.send(&encoding.SubscribePacket{
		PacketID: 1,
		Subscriptions: []encoding.Subscription{
			{TopicFilter: "a/b", QoS: 0},
		},
	})
	_, _ = h.next() // SUBACK

	h.send(&encoding.UnsubscribePacket{
		PacketID:     2,
		TopicFilters: []string{"a/b"},
	})

	fh, body := h.next()
	require.Equal(t, encoding.UNSUBACK, fh.Type)
	ack, err := encoding.ParseUnsubackPacket(bytesReader(body), fh)
	require.NoError(t, err)
	require.Len(t, ack.ReasonCodes, 1)
	assert.Equal(t, encoding.ReasonSuccess, ack.ReasonCodes[0])
}
