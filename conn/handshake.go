package conn

import (
	"io"

	"github.com/brinewave/mqttd/broker"
	"github.com/brinewave/mqttd/encoding"
	"github.com/brinewave/mqttd/network"
	"github.com/brinewave/mqttd/qos"
	"github.com/brinewave/mqttd/store"
	"github.com/brinewave/mqttd/topic"
	"github.com/brinewave/mqttd/types/message"
	"github.com/google/uuid"
)

// handleConnect implements spec.md §4.5.1: parameter negotiation against
// server caps, plug-in authentication, session creation/resumption, and the
// session take-over rendezvous. Negotiation failures respond with CONNACK
// and a reason code rather than DISCONNECT, per spec.md §7.
func (c *Conn) handleConnect(fh *encoding.FixedHeader, body []byte) Outcome {
	pkt, err := encoding.ParseConnectPacket(bytesReader(body), fh)
	if err != nil {
		return ServerDisconnect(encoding.ReasonMalformedPacket)
	}

	c.protocolLevel.Latch(pkt.ProtocolVersion)

	clientID := pkt.ClientID
	if clientID == "" {
		if !pkt.CleanStart {
			c.connack(encoding.ReasonClientIdentifierNotValid, false, nil)
			return ClientDisconnect()
		}
		clientID = uuid.NewString()
	}

	if pkt.WillFlag && pkt.WillQoS > encoding.QoS(c.svc.Config.MaximumQoS) {
		c.connack(encoding.ReasonQoSNotSupported, false, nil)
		return ClientDisconnect()
	}
	if pkt.WillFlag && pkt.WillRetain && !c.svc.Config.RetainAvailable {
		c.connack(encoding.ReasonRetainNotSupported, false, nil)
		return ClientDisconnect()
	}

	uid, ok, authErr := c.svc.Plugins.Authenticate(pkt.Username, pkt.Password)
	if authErr != nil {
		c.connack(encoding.ReasonUnspecifiedError, false, nil)
		return ClientDisconnect()
	}
	if !ok {
		c.connack(encoding.ReasonBadUsernameOrPassword, false, nil)
		return ClientDisconnect()
	}

	keepAlive := pkt.KeepAlive
	maxKeepAliveSeconds := uint16(c.svc.Config.MaxKeepAlive.Seconds())
	cappedKeepAlive := maxKeepAliveSeconds > 0 && keepAlive > maxKeepAliveSeconds
	if cappedKeepAlive {
		keepAlive = maxKeepAliveSeconds
	}

	sessionExpiry := propUint32(&pkt.Properties, encoding.PropSessionExpiryInterval, 0)
	if sessionExpiry > c.svc.Config.MaxSessionExpiryInterval {
		sessionExpiry = c.svc.Config.MaxSessionExpiryInterval
	}

	receiveMaxOut := propUint16(&pkt.Properties, encoding.PropReceiveMaximum, 65535)
	maxPacketOut := propUint32(&pkt.Properties, encoding.PropMaximumPacketSize, 0)

	clientTopicAliasMax := propUint16(&pkt.Properties, encoding.PropTopicAliasMaximum, 0)
	topicAliasMax := c.svc.Config.MaxTopicAlias
	if clientTopicAliasMax < topicAliasMax {
		topicAliasMax = clientTopicAliasMax
	}

	var will *store.WillMessage
	if pkt.WillFlag {
		will = &store.WillMessage{
			Topic:      pkt.WillTopic,
			Payload:    pkt.WillPayload,
			QoS:        byte(pkt.WillQoS),
			Retain:     pkt.WillRetain,
			Properties: message.FromEncoding(&pkt.WillProperties),
		}
	}
	willDelay := propUint32(&pkt.WillProperties, encoding.PropWillDelayInterval, 0)

	// Session take-over: displace any live connection already registered
	// for this client-id and wait for it to fully release ownership before
	// this connection installs its own state.
	evicted := c.svc.Register(clientID, c.control)
	if evicted != nil {
		done := make(chan struct{})
		select {
		case evicted <- broker.TakeoverRequest{Done: done}:
			<-done
		default:
			// The displaced connection is no longer reading its control
			// channel (it has already exited); nothing to wait for.
		}
	}

	sessionPresent := c.svc.Storage.CreateSession(clientID, pkt.CleanStart, will, sessionExpiry, willDelay)

	c.clientID = clientID
	c.uid = uid
	c.cleanStart = pkt.CleanStart
	c.quota = qos.NewQuota(c.svc.Config.ReceiveMax, receiveMaxOut)
	c.inboundAlias = topic.NewTopicAlias(topicAliasMax)
	c.maxPacketOut = maxPacketOut
	c.keepAlive = network.NewKeepAlive(c.nc, network.KeepAliveConfig{
		Interval: secondsToDuration(keepAlive),
	})

	connackProps := &encoding.Properties{}
	if cappedKeepAlive {
		_ = connackProps.AddProperty(encoding.PropServerKeepAlive, keepAlive)
	}
	if clientID != pkt.ClientID {
		_ = connackProps.AddProperty(encoding.PropAssignedClientIdentifier, clientID)
	}
	_ = connackProps.AddProperty(encoding.PropReceiveMaximum, c.svc.Config.ReceiveMax)
	_ = connackProps.AddProperty(encoding.PropTopicAliasMaximum, topicAliasMax)
	_ = connackProps.AddProperty(encoding.PropMaximumQoS, c.svc.Config.MaximumQoS)
	_ = connackProps.AddProperty(encoding.PropRetainAvailable, boolByte(c.svc.Config.RetainAvailable))
	_ = connackProps.AddProperty(encoding.PropWildcardSubscriptionAvailable, boolByte(c.svc.Config.WildcardSubscriptionAvailable))

	c.connack(encoding.ReasonSuccess, sessionPresent, connackProps)

	c.redeliverInflight()

	return OK()
}

func (c *Conn) connack(reason encoding.ReasonCode, sessionPresent bool, props *encoding.Properties) {
	if props == nil {
		props = &encoding.Properties{}
	}
	_ = c.send(&encoding.ConnackPacket{
		SessionPresent: sessionPresent,
		ReasonCode:     reason,
		Properties:     *props,
	})
}

// redeliverInflight retransmits every outstanding inflight_pub entry for
// this session with DUP=1, per spec.md §4.5.1's final CONNECT step. Each
// redelivered entry takes one unit of the (freshly reset) out-quota, which
// its PUBACK/PUBCOMP returns, so new deliveries wait behind them.
func (c *Conn) redeliverInflight() {
	pubs, err := c.svc.Storage.AllInflightPub(c.clientID)
	if err != nil {
		return
	}
	for _, pub := range pubs {
		c.quota.AcquireOut()
		msg := pub.Message
		pkt := &encoding.PublishPacket{
			FixedHeader: encoding.FixedHeader{
				QoS:    msg.QoS,
				DUP:    true,
				Retain: msg.Retain,
			},
			TopicName:  msg.Topic,
			PacketID:   pub.PacketID,
			Properties: *msg.Properties.ToEncoding(),
			Payload:    msg.Payload,
		}
		_ = c.send(pkt)
	}
}

func bytesReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

// sliceReader is a tiny io.Reader over a byte slice, used instead of
// bytes.Reader so this file does not need to import bytes just for CONNECT
// parsing (every other dispatch path already holds a bytes.Reader from
// Conn.dispatch).
type sliceReader struct {
	b []byte
	i int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}
