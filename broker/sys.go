package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brinewave/mqttd/encoding"
	"github.com/brinewave/mqttd/types/message"
)

// sysLoadMetrics are the counters whose 1/5/15-minute EMA is also published
// under broker/load/<metric>/{1min,5min,15min}, per spec.md §6.
var sysLoadMetrics = []Counter{
	CounterMessagesReceived, CounterMessagesSent,
	CounterPublishDropped, CounterPublishReceived, CounterPublishSent,
	CounterPublishBytesReceived, CounterPublishBytesSent,
	CounterBytesReceived, CounterBytesSent,
	CounterSockets, CounterConnections,
}

// SysPublisher periodically renders Service's metrics snapshot onto the
// $SYS/broker/... retained topics enumerated in spec.md §6, skipping any
// value unchanged since the previous tick.
type SysPublisher struct {
	svc *Service

	mu   sync.Mutex
	last map[string]string
}

// NewSysPublisher creates a publisher for svc. A zero Config.SysUpdateInterval
// disables publication entirely (Run returns immediately).
func NewSysPublisher(svc *Service) *SysPublisher {
	return &SysPublisher{svc: svc, last: make(map[string]string)}
}

// Run ticks every svc.Config.SysUpdateInterval until ctx is cancelled. A
// non-positive interval makes Run a no-op, matching "0 disables C7".
func (p *SysPublisher) Run(ctx context.Context) {
	interval := p.svc.Config.SysUpdateInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.svc.Metrics.Tick(now)
			p.publishAll()
		}
	}
}

func (p *SysPublisher) publishAll() {
	m := p.svc.Metrics
	storeMetrics := p.svc.Storage.Metrics()
	clients := m.Clients()

	values := map[string]string{
		"broker/uptime":                fmt.Sprintf("%d seconds", int(m.Uptime().Seconds())),
		"broker/bytes/received":        fmt.Sprintf("%d", m.Get(CounterBytesReceived)),
		"broker/bytes/sent":            fmt.Sprintf("%d", m.Get(CounterBytesSent)),
		"broker/clients/connected":     fmt.Sprintf("%d", clients.Connected),
		"broker/clients/expired":       fmt.Sprintf("%d", clients.Expired),
		"broker/clients/disconnected":  fmt.Sprintf("%d", clients.Disconnected),
		"broker/clients/maximum":       fmt.Sprintf("%d", clients.Maximum),
		"broker/clients/total":        fmt.Sprintf("%d", clients.Total),
		"broker/messages/inflight":     fmt.Sprintf("%d", storeMetrics.InflightMessagesCount),
		"broker/messages/received":     fmt.Sprintf("%d", m.Get(CounterMessagesReceived)),
		"broker/messages/sent":         fmt.Sprintf("%d", m.Get(CounterMessagesSent)),
		"broker/publish/messages/dropped":  fmt.Sprintf("%d", m.Get(CounterPublishDropped)),
		"broker/publish/messages/received": fmt.Sprintf("%d", m.Get(CounterPublishReceived)),
		"broker/publish/messages/sent":     fmt.Sprintf("%d", m.Get(CounterPublishSent)),
		"broker/publish/bytes/received":    fmt.Sprintf("%d", m.Get(CounterPublishBytesReceived)),
		"broker/publish/bytes/sent":        fmt.Sprintf("%d", m.Get(CounterPublishBytesSent)),
		"broker/retained messages/count":   fmt.Sprintf("%d", storeMetrics.RetainedMessagesCount),
		"broker/store/messages/count":      fmt.Sprintf("%d", storeMetrics.MessagesCount),
		"broker/store/messages/bytes":      fmt.Sprintf("%d", storeMetrics.MessagesBytes),
		"broker/subscriptions/count":       fmt.Sprintf("%d", storeMetrics.SubscriptionsCount),
	}

	for _, metric := range sysLoadMetrics {
		m1, m5, m15 := m.LoadSnapshot(metric)
		values[fmt.Sprintf("broker/load/%s/1min", metric)] = fmt.Sprintf("%.2f", m1)
		values[fmt.Sprintf("broker/load/%s/5min", metric)] = fmt.Sprintf("%.2f", m5)
		values[fmt.Sprintf("broker/load/%s/15min", metric)] = fmt.Sprintf("%.2f", m15)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for topic, value := range values {
		if p.last[topic] == value {
			continue
		}
		p.last[topic] = value

		msg := message.NewMessage(0, "$SYS/"+topic, []byte(value), encoding.QoS0, true, &message.Properties{})
		p.svc.Storage.UpdateRetainedMessage(msg)
		p.svc.Storage.Publish(msg)
	}
}
