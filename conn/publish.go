package conn

import (
	"strings"

	"github.com/brinewave/mqttd/broker"
	"github.com/brinewave/mqttd/encoding"
	"github.com/brinewave/mqttd/hook"
	"github.com/brinewave/mqttd/store"
	"github.com/brinewave/mqttd/topic"
	"github.com/brinewave/mqttd/types/message"
)

// handlePublish implements the inbound PUBLISH validation chain of
// spec.md §4.5.2, then either forwards the message at once (QoS 0/1) or
// runs the QoS-2 quota-then-dedup sequence.
func (c *Conn) handlePublish(pkt *encoding.PublishPacket) Outcome {
	c.svc.Metrics.Add(broker.CounterMessagesReceived, 1)
	c.svc.Metrics.Add(broker.CounterPublishReceived, 1)
	c.svc.Metrics.Add(broker.CounterPublishBytesReceived, uint64(len(pkt.Payload)))

	topicName := pkt.TopicName
	if aliasVal, ok := pkt.Properties.GetUint16(encoding.PropTopicAlias); ok {
		if topicName == "" {
			resolved, ok := c.inboundAlias.Get(aliasVal)
			if !ok {
				return ServerDisconnect(encoding.ReasonProtocolError)
			}
			topicName = resolved
		} else if !c.inboundAlias.Set(aliasVal, topicName) {
			return ServerDisconnect(encoding.ReasonTopicAliasInvalid)
		}
	} else if topicName == "" {
		return ServerDisconnect(encoding.ReasonProtocolError)
	}

	if pkt.FixedHeader.QoS > encoding.QoS0 && pkt.PacketID == 0 {
		return ServerDisconnect(encoding.ReasonProtocolError)
	}
	if len(pkt.Properties.GetProperties(encoding.PropSubscriptionIdentifier)) > 0 {
		return ServerDisconnect(encoding.ReasonProtocolError)
	}
	if strings.HasPrefix(topicName, "$") {
		return ServerDisconnect(encoding.ReasonTopicNameInvalid)
	}
	if err := topic.ValidateTopic(topicName); err != nil {
		return ServerDisconnect(encoding.ReasonTopicNameInvalid)
	}
	if pkt.FixedHeader.Retain && !c.svc.Config.RetainAvailable {
		return ServerDisconnect(encoding.ReasonRetainNotSupported)
	}

	allowed, err := c.svc.Plugins.Authorize(c.nc.RemoteAddr(), c.uid, hook.ActionPublish, topicName)
	if err != nil || !allowed {
		return ServerDisconnect(encoding.ReasonNotAuthorized)
	}

	props := message.FromEncoding(&pkt.Properties)
	msg := message.NewMessage(pkt.PacketID, topicName, pkt.Payload, pkt.FixedHeader.QoS, pkt.FixedHeader.Retain, props)
	msg.OriginClientID = c.clientID

	if pkt.FixedHeader.Retain {
		c.svc.Storage.UpdateRetainedMessage(msg)
	}

	switch pkt.FixedHeader.QoS {
	case encoding.QoS0:
		c.svc.Storage.Publish(msg)
		return OK()

	case encoding.QoS1:
		c.svc.Storage.Publish(msg)
		if err := c.send(&encoding.PubackPacket{PacketID: pkt.PacketID, ReasonCode: encoding.ReasonSuccess}); err != nil {
			return ClientDisconnect()
		}
		return OK()

	default: // QoS 2
		if !c.quota.TryAcquireIn() {
			return ServerDisconnect(encoding.ReasonReceiveMaximumExceeded)
		}
		added, err := c.svc.Storage.AddUncompletedIn(c.clientID, pkt.PacketID, msg)
		if err != nil {
			c.quota.ReleaseIn()
			return ServerDisconnect(encoding.ReasonUnspecifiedError)
		}
		if !added {
			// Duplicate PUBLISH for a packet-id already pending: leave state
			// untouched, just re-ack. The quota was not actually consumed by
			// this attempt's perspective, so release it back.
			c.quota.ReleaseIn()
			if err := c.send(&encoding.PubrecPacket{PacketID: pkt.PacketID, ReasonCode: encoding.ReasonPacketIdentifierInUse}); err != nil {
				return ClientDisconnect()
			}
			return OK()
		}
		if err := c.send(&encoding.PubrecPacket{PacketID: pkt.PacketID, ReasonCode: encoding.ReasonSuccess}); err != nil {
			return ClientDisconnect()
		}
		return OK()
	}
}

// handlePubrel completes the QoS-2 inbound exchange: the held message is
// finally forwarded to subscribers and the inbound quota is released.
func (c *Conn) handlePubrel(pkt *encoding.PubrelPacket) Outcome {
	msg, err := c.svc.Storage.TakeUncompletedIn(c.clientID, pkt.PacketID, true)
	if err != nil {
		return ServerDisconnect(encoding.ReasonUnspecifiedError)
	}
	if msg == nil {
		if err := c.send(&encoding.PubcompPacket{PacketID: pkt.PacketID, ReasonCode: encoding.ReasonPacketIdentifierNotFound}); err != nil {
			return ClientDisconnect()
		}
		return OK()
	}

	c.svc.Storage.Publish(msg)
	c.quota.ReleaseIn()

	if err := c.send(&encoding.PubcompPacket{PacketID: pkt.PacketID, ReasonCode: encoding.ReasonSuccess}); err != nil {
		return ClientDisconnect()
	}
	return OK()
}

// handlePuback completes an outbound QoS-1 exchange: the acknowledgment
// must be for the front of the inflight window, per its FIFO invariant.
func (c *Conn) handlePuback(pkt *encoding.PubackPacket) Outcome {
	pub, err := c.svc.Storage.TakeInflightPub(c.clientID, pkt.PacketID, true)
	if err != nil {
		return ServerDisconnect(encoding.ReasonUnspecifiedError)
	}
	if pub == nil {
		return ServerDisconnect(encoding.ReasonProtocolError)
	}
	c.quota.ReleaseOut()
	return c.deliverOutbound()
}

// handlePubrec advances an outbound QoS-2 exchange to the PUBREL stage. The
// inflight entry stays put (matched but not removed) until PUBCOMP.
func (c *Conn) handlePubrec(pkt *encoding.PubrecPacket) Outcome {
	pub, err := c.svc.Storage.TakeInflightPub(c.clientID, pkt.PacketID, false)
	if err != nil {
		return ServerDisconnect(encoding.ReasonUnspecifiedError)
	}
	if pub == nil {
		if err := c.send(&encoding.PubrelPacket{PacketID: pkt.PacketID, ReasonCode: encoding.ReasonPacketIdentifierNotFound}); err != nil {
			return ClientDisconnect()
		}
		return OK()
	}
	if err := c.send(&encoding.PubrelPacket{PacketID: pkt.PacketID, ReasonCode: encoding.ReasonSuccess}); err != nil {
		return ClientDisconnect()
	}
	return OK()
}

// handlePubcomp completes an outbound QoS-2 exchange, releasing the
// inflight slot and outbound quota.
func (c *Conn) handlePubcomp(pkt *encoding.PubcompPacket) Outcome {
	pub, err := c.svc.Storage.TakeInflightPub(c.clientID, pkt.PacketID, true)
	if err != nil {
		return ServerDisconnect(encoding.ReasonUnspecifiedError)
	}
	if pub == nil {
		return OK()
	}
	c.quota.ReleaseOut()
	return c.deliverOutbound()
}

// deliverOutbound is the outbound publish loop of spec.md §4.5.3: it pops
// queued messages while outbound quota remains, recomputing remaining
// message-expiry and dropping anything that has expired in the queue.
func (c *Conn) deliverOutbound() Outcome {
	for c.quota.OutAvailable() {
		msgs, err := c.svc.Storage.NextMessages(c.clientID, 1)
		if err != nil || len(msgs) == 0 {
			return OK()
		}
		msg := msgs[0]

		if msg.IsExpired() {
			if err := c.svc.Storage.ConsumeMessages(c.clientID, 1); err != nil {
				return ServerDisconnect(encoding.ReasonUnspecifiedError)
			}
			c.svc.Metrics.Add(broker.CounterPublishDropped, 1)
			continue
		}

		if msg.Properties != nil && msg.Properties.MessageExpiryInterval != nil {
			remaining := msg.RemainingExpiry()
			*msg.Properties.MessageExpiryInterval = remaining
		}

		pkt := &encoding.PublishPacket{
			FixedHeader: encoding.FixedHeader{
				QoS:    msg.QoS,
				Retain: msg.Retain,
			},
			TopicName:  msg.Topic,
			Properties: *msg.Properties.ToEncoding(),
			Payload:    msg.Payload,
		}

		if msg.QoS == encoding.QoS0 {
			if err := c.send(pkt); err != nil {
				return ClientDisconnect()
			}
			if err := c.svc.Storage.ConsumeMessages(c.clientID, 1); err != nil {
				return ServerDisconnect(encoding.ReasonUnspecifiedError)
			}
			c.svc.Metrics.Add(broker.CounterPublishSent, 1)
			c.svc.Metrics.Add(broker.CounterPublishBytesSent, uint64(len(msg.Payload)))
			continue
		}

		packetID := c.packetIDs.Next()
		pkt.PacketID = packetID
		c.quota.AcquireOut()
		if err := c.svc.Storage.AddInflightPub(c.clientID, store.InflightPub{PacketID: packetID, Message: msg}); err != nil {
			c.quota.ReleaseOut()
			return ServerDisconnect(encoding.ReasonUnspecifiedError)
		}
		if err := c.svc.Storage.ConsumeMessages(c.clientID, 1); err != nil {
			return ServerDisconnect(encoding.ReasonUnspecifiedError)
		}
		if err := c.send(pkt); err != nil {
			return ClientDisconnect()
		}
		c.svc.Metrics.Add(broker.CounterPublishSent, 1)
		c.svc.Metrics.Add(broker.CounterPublishBytesSent, uint64(len(msg.Payload)))
	}
	return OK()
}
