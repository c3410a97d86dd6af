package message

import (
	"time"

	"github.com/brinewave/mqttd/encoding"
)

// UserProperty is a single MQTT 5.0 user property key/value pair. Unlike
// most properties, user properties may repeat, so they are carried as a
// slice rather than folded into a map.
type UserProperty struct {
	Key   string
	Value string
}

// Properties is the typed set of MQTT 5.0 application properties carried
// alongside a message body. It replaces the wire codec's generic
// {ID, Value} property bag with one struct field per property this broker
// actually interprets. FromEncoding drops any property that has no field
// here, so ToEncoding does not reproduce it.
type Properties struct {
	PayloadFormatIndicator  bool
	MessageExpiryInterval   *uint32
	ContentType             string
	ResponseTopic           string
	CorrelationData         []byte
	UserProperties          []UserProperty
	SubscriptionIdentifiers []uint32
	TopicAlias              uint16
}

// FromEncoding builds a Properties from the wire-level property bag
// produced by the codec layer.
func FromEncoding(props *encoding.Properties) *Properties {
	out := &Properties{}
	if props == nil {
		return out
	}

	if p := props.GetProperty(encoding.PropPayloadFormatIndicator); p != nil {
		if b, ok := p.Value.(byte); ok {
			out.PayloadFormatIndicator = b != 0
		}
	}
	if p := props.GetProperty(encoding.PropMessageExpiryInterval); p != nil {
		if v, ok := p.Value.(uint32); ok {
			out.MessageExpiryInterval = &v
		}
	}
	if p := props.GetProperty(encoding.PropContentType); p != nil {
		if s, ok := p.Value.(string); ok {
			out.ContentType = s
		}
	}
	if p := props.GetProperty(encoding.PropResponseTopic); p != nil {
		if s, ok := p.Value.(string); ok {
			out.ResponseTopic = s
		}
	}
	if p := props.GetProperty(encoding.PropCorrelationData); p != nil {
		if b, ok := p.Value.([]byte); ok {
			out.CorrelationData = b
		}
	}
	if p := props.GetProperty(encoding.PropTopicAlias); p != nil {
		if v, ok := p.Value.(uint16); ok {
			out.TopicAlias = v
		}
	}
	for _, p := range props.GetProperties(encoding.PropUserProperty) {
		if pair, ok := p.Value.(encoding.UTF8Pair); ok {
			out.UserProperties = append(out.UserProperties, UserProperty{Key: pair.Key, Value: pair.Value})
		}
	}
	for _, p := range props.GetProperties(encoding.PropSubscriptionIdentifier) {
		if v, ok := p.Value.(uint32); ok {
			out.SubscriptionIdentifiers = append(out.SubscriptionIdentifiers, v)
		}
	}

	return out
}

// ToEncoding renders p back into the wire-level property bag for encoding.
func (p *Properties) ToEncoding() *encoding.Properties {
	out := &encoding.Properties{Properties: make([]encoding.Property, 0, 4)}
	if p == nil {
		return out
	}

	if p.PayloadFormatIndicator {
		_ = out.AddProperty(encoding.PropPayloadFormatIndicator, byte(1))
	}
	if p.MessageExpiryInterval != nil {
		_ = out.AddProperty(encoding.PropMessageExpiryInterval, *p.MessageExpiryInterval)
	}
	if p.ContentType != "" {
		_ = out.AddProperty(encoding.PropContentType, p.ContentType)
	}
	if p.ResponseTopic != "" {
		_ = out.AddProperty(encoding.PropResponseTopic, p.ResponseTopic)
	}
	if p.CorrelationData != nil {
		_ = out.AddProperty(encoding.PropCorrelationData, p.CorrelationData)
	}
	if p.TopicAlias != 0 {
		_ = out.AddProperty(encoding.PropTopicAlias, p.TopicAlias)
	}
	for _, up := range p.UserProperties {
		_ = out.AddProperty(encoding.PropUserProperty, encoding.UTF8Pair{Key: up.Key, Value: up.Value})
	}
	for _, id := range p.SubscriptionIdentifiers {
		_ = out.AddProperty(encoding.PropSubscriptionIdentifier, id)
	}

	return out
}

// Clone returns a deep copy of p.
func (p *Properties) Clone() *Properties {
	if p == nil {
		return nil
	}
	out := &Properties{
		PayloadFormatIndicator: p.PayloadFormatIndicator,
		ContentType:            p.ContentType,
		ResponseTopic:          p.ResponseTopic,
		TopicAlias:             p.TopicAlias,
	}
	if p.MessageExpiryInterval != nil {
		v := *p.MessageExpiryInterval
		out.MessageExpiryInterval = &v
	}
	if p.CorrelationData != nil {
		out.CorrelationData = append([]byte(nil), p.CorrelationData...)
	}
	if p.UserProperties != nil {
		out.UserProperties = append([]UserProperty(nil), p.UserProperties...)
	}
	if p.SubscriptionIdentifiers != nil {
		out.SubscriptionIdentifiers = append([]uint32(nil), p.SubscriptionIdentifiers...)
	}
	return out
}

// Message represents an application message moving through the broker:
// a published payload together with the per-delivery metadata (QoS,
// retain, properties, origin) it carries from publisher to subscriber.
type Message struct {
	PacketID         uint16
	Topic            string
	Payload          []byte
	QoS              encoding.QoS
	Retain           bool
	DUP              bool
	Properties       *Properties
	OriginClientID   string // client-id that published this message, for no-local filtering
	CreatedAt        time.Time
	LastAttemptAt    time.Time
	AttemptCount     int
	ExpiryInterval   uint32
	MessageExpirySet bool
}

// NewMessage creates a new application message.
func NewMessage(packetID uint16, topic string, payload []byte, qos encoding.QoS, retain bool, properties *Properties) *Message {
	now := time.Now()
	msg := &Message{
		PacketID:      packetID,
		Topic:         topic,
		Payload:       payload,
		QoS:           qos,
		Retain:        retain,
		DUP:           false,
		Properties:    properties,
		CreatedAt:     now,
		LastAttemptAt: now,
		AttemptCount:  0,
	}

	if properties != nil && properties.MessageExpiryInterval != nil {
		msg.ExpiryInterval = *properties.MessageExpiryInterval
		msg.MessageExpirySet = true
	}

	return msg
}

// IsExpired checks if the message has expired
func (m *Message) IsExpired() bool {
	if !m.MessageExpirySet || m.ExpiryInterval == 0 {
		return false
	}
	return time.Since(m.CreatedAt) >= time.Duration(m.ExpiryInterval)*time.Second
}

// RemainingExpiry returns the remaining expiry time in seconds
func (m *Message) RemainingExpiry() uint32 {
	if !m.MessageExpirySet || m.ExpiryInterval == 0 {
		return 0
	}
	elapsed := uint32(time.Since(m.CreatedAt).Seconds())
	if elapsed >= m.ExpiryInterval {
		return 0
	}
	return m.ExpiryInterval - elapsed
}

// MarkAttempt marks a delivery attempt
func (m *Message) MarkAttempt() {
	m.AttemptCount++
	m.LastAttemptAt = time.Now()
	if m.AttemptCount > 1 {
		m.DUP = true
	}
}

// Clone creates a deep copy of the message
func (m *Message) Clone() *Message {
	payload := make([]byte, len(m.Payload))
	copy(payload, m.Payload)

	var properties *Properties
	if m.Properties != nil {
		properties = m.Properties.Clone()
	} else {
		properties = &Properties{}
	}

	return &Message{
		PacketID:         m.PacketID,
		Topic:            m.Topic,
		Payload:          payload,
		QoS:              m.QoS,
		Retain:           m.Retain,
		DUP:              m.DUP,
		Properties:       properties,
		OriginClientID:   m.OriginClientID,
		CreatedAt:        m.CreatedAt,
		LastAttemptAt:    m.LastAttemptAt,
		AttemptCount:     m.AttemptCount,
		ExpiryInterval:   m.ExpiryInterval,
		MessageExpirySet: m.MessageExpirySet,
	}
}
