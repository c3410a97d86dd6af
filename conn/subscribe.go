package conn

import (
	"strings"

	"github.com/brinewave/mqttd/encoding"
	"github.com/brinewave/mqttd/hook"
	"github.com/brinewave/mqttd/topic"
)

// handleSubscribe implements spec.md §4.5.4: per-filter validation, ACL,
// and granted-QoS computation, replying with one SUBACK reason code per
// requested filter in the same order.
func (c *Conn) handleSubscribe(pkt *encoding.SubscribePacket) Outcome {
	codes := make([]encoding.ReasonCode, len(pkt.Subscriptions))

	for i, sub := range pkt.Subscriptions {
		filter := sub.TopicFilter
		shared := strings.HasPrefix(filter, "$share/")

		groupName := ""
		effectiveFilter := filter
		if shared {
			g, f, err := topic.ValidateSharedSubscription(filter)
			if err != nil {
				codes[i] = encoding.ReasonTopicFilterInvalid
				continue
			}
			if sub.NoLocal {
				return ServerDisconnect(encoding.ReasonProtocolError)
			}
			groupName = g
			effectiveFilter = f
		}

		if err := topic.ValidateTopicFilter(effectiveFilter); err != nil {
			codes[i] = encoding.ReasonTopicFilterInvalid
			continue
		}
		if !c.svc.Config.WildcardSubscriptionAvailable && (strings.Contains(effectiveFilter, "+") || strings.Contains(effectiveFilter, "#")) {
			codes[i] = encoding.ReasonWildcardSubscriptionsNotSupported
			continue
		}

		allowed, err := c.svc.Plugins.Authorize(c.nc.RemoteAddr(), c.uid, hook.ActionSubscribe, effectiveFilter)
		if err != nil || !allowed {
			codes[i] = encoding.ReasonNotAuthorized
			continue
		}

		grantedQoS := sub.QoS
		if grantedQoS > encoding.QoS(c.svc.Config.MaximumQoS) {
			grantedQoS = encoding.QoS(c.svc.Config.MaximumQoS)
		}

		subID, _ := pkt.Properties.GetUint32(encoding.PropSubscriptionIdentifier)

		err = c.svc.Storage.Subscribe(&topic.Subscription{
			ClientID:               c.clientID,
			TopicFilter:            filter,
			QoS:                    byte(grantedQoS),
			NoLocal:                sub.NoLocal,
			RetainAsPublished:      sub.RetainAsPublished,
			RetainHandling:         sub.RetainHandling,
			SubscriptionIdentifier: subID,
			SharedGroup:            groupName,
		})
		if err != nil {
			codes[i] = encoding.ReasonUnspecifiedError
			continue
		}

		codes[i] = encoding.ReasonCode(grantedQoS)
	}

	if err := c.send(&encoding.SubackPacket{PacketID: pkt.PacketID, ReasonCodes: codes}); err != nil {
		return ClientDisconnect()
	}
	return c.deliverOutbound()
}

// handleUnsubscribe implements spec.md §4.5.4's UNSUBSCRIBE path.
func (c *Conn) handleUnsubscribe(pkt *encoding.UnsubscribePacket) Outcome {
	codes := make([]encoding.ReasonCode, len(pkt.TopicFilters))

	for i, filter := range pkt.TopicFilters {
		if c.svc.Storage.Unsubscribe(c.clientID, filter) {
			codes[i] = encoding.ReasonSuccess
		} else {
			codes[i] = encoding.ReasonNoSubscriptionExisted
		}
	}

	if err := c.send(&encoding.UnsubackPacket{PacketID: pkt.PacketID, ReasonCodes: codes}); err != nil {
		return ClientDisconnect()
	}
	return OK()
}
