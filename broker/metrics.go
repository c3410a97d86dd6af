package broker

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter names the cumulative counters that also drive a 1/5/15-minute
// EMA load, mirroring the $SYS/broker/load/<metric>/{1min,5min,15min}
// topics of spec.md §6.
type Counter string

const (
	CounterBytesReceived        Counter = "bytes/received"
	CounterBytesSent            Counter = "bytes/sent"
	CounterMessagesReceived     Counter = "messages/received"
	CounterMessagesSent         Counter = "messages/sent"
	CounterPublishReceived      Counter = "publish/received"
	CounterPublishSent          Counter = "publish/sent"
	CounterPublishDropped       Counter = "publish/dropped"
	CounterPublishBytesReceived Counter = "publish/bytes/received"
	CounterPublishBytesSent     Counter = "publish/bytes/sent"
	CounterSockets              Counter = "sockets"
	CounterConnections          Counter = "connections"
)

var allCounters = []Counter{
	CounterBytesReceived, CounterBytesSent,
	CounterMessagesReceived, CounterMessagesSent,
	CounterPublishReceived, CounterPublishSent, CounterPublishDropped,
	CounterPublishBytesReceived, CounterPublishBytesSent,
	CounterSockets, CounterConnections,
}

// loadPeriods are the EMA time constants reported as 1min/5min/15min.
var loadPeriods = [3]time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

// load is a Mosquitto-style decaying average of a counter's per-second rate,
// one decay accumulator per reported window.
type load struct {
	mu  sync.Mutex
	avg [3]float64
}

// tick folds in count new events observed over elapsed wall-clock time.
func (l *load) tick(count uint64, elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	rate := float64(count) / elapsed.Seconds()

	l.mu.Lock()
	defer l.mu.Unlock()
	for i, period := range loadPeriods {
		decay := math.Exp(-elapsed.Seconds() / period.Seconds())
		l.avg[i] = l.avg[i]*decay + rate*(1-decay)
	}
}

// snapshot returns the current 1/5/15-minute EMA values.
func (l *load) snapshot() (m1, m5, m15 float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.avg[0], l.avg[1], l.avg[2]
}

// Metrics is the broker-wide counter and load-average state read by C7's
// $SYS publisher and exposed to the (external) HTTP metrics endpoint via
// Registry(). Counters are updated on every packet; loads are recomputed
// only when Tick is called on a fixed interval, per spec.md §4.6.
type Metrics struct {
	startedAt time.Time

	counters map[Counter]*atomic.Uint64
	loads    map[Counter]*load
	lastTick map[Counter]uint64
	lastTime time.Time

	clientsConnected    atomic.Int64
	clientsExpired      atomic.Int64
	clientsDisconnected atomic.Int64
	clientsTotal        atomic.Int64
	clientsMaximum      atomic.Int64

	registry *prometheus.Registry
	gauges   map[Counter]*prometheus.GaugeVec
}

// NewMetrics creates an empty metrics snapshot registered against its own
// prometheus.Registry (not the global default, so multiple brokers in one
// process never collide).
func NewMetrics() *Metrics {
	m := &Metrics{
		startedAt: time.Now(),
		counters:  make(map[Counter]*atomic.Uint64, len(allCounters)),
		loads:     make(map[Counter]*load, len(allCounters)),
		lastTick:  make(map[Counter]uint64, len(allCounters)),
		lastTime:  time.Now(),
		registry:  prometheus.NewRegistry(),
		gauges:    make(map[Counter]*prometheus.GaugeVec, len(allCounters)),
	}

	for _, c := range allCounters {
		m.counters[c] = &atomic.Uint64{}
		m.loads[c] = &load{}
	}

	loadGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mqttd",
		Name:      "load",
		Help:      "Broker load averages by metric and window",
	}, []string{"metric", "window"})
	m.registry.MustRegister(loadGauge)
	for _, c := range allCounters {
		m.gauges[c] = loadGauge
	}

	clientGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mqttd",
		Name:      "clients",
		Help:      "Client lifecycle counts",
	}, []string{"state"})
	m.registry.MustRegister(clientGauge)

	return m
}

// Registry exposes the dedicated prometheus registry for an HTTP scrape
// endpoint to serve; this repo does not itself listen on a metrics port.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Add increments a cumulative counter by delta.
func (m *Metrics) Add(c Counter, delta uint64) {
	if ctr, ok := m.counters[c]; ok {
		ctr.Add(delta)
	}
}

// Get returns a counter's cumulative total.
func (m *Metrics) Get(c Counter) uint64 {
	if ctr, ok := m.counters[c]; ok {
		return ctr.Load()
	}
	return 0
}

// Tick recomputes every counter's 1/5/15-minute EMA against the wall-clock
// time elapsed since the previous Tick. Call this on a fixed interval from
// one goroutine only (broker.Service owns the ticker).
func (m *Metrics) Tick(now time.Time) {
	elapsed := now.Sub(m.lastTime)
	if elapsed <= 0 {
		return
	}
	m.lastTime = now

	for _, c := range allCounters {
		total := m.counters[c].Load()
		delta := total - m.lastTick[c]
		m.lastTick[c] = total

		m.loads[c].tick(delta, elapsed)
		m1, m5, m15 := m.loads[c].snapshot()
		gauge := m.gauges[c]
		gauge.WithLabelValues(string(c), "1min").Set(m1)
		gauge.WithLabelValues(string(c), "5min").Set(m5)
		gauge.WithLabelValues(string(c), "15min").Set(m15)
	}
}

// LoadSnapshot returns one counter's current 1/5/15-minute EMA values.
func (m *Metrics) LoadSnapshot(c Counter) (m1, m5, m15 float64) {
	if l, ok := m.loads[c]; ok {
		return l.snapshot()
	}
	return 0, 0, 0
}

// Uptime returns the time since the metrics snapshot (and so the broker)
// started.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startedAt)
}

// ClientConnected records a new client connection.
func (m *Metrics) ClientConnected() {
	m.clientsConnected.Add(1)
	m.clientsTotal.Add(1)
	m.Add(CounterConnections, 1)

	current := m.clientsConnected.Load()
	for {
		max := m.clientsMaximum.Load()
		if current <= max || m.clientsMaximum.CompareAndSwap(max, current) {
			break
		}
	}
}

// ClientDisconnected records a client leaving, optionally because its
// session expired rather than a normal disconnect.
func (m *Metrics) ClientDisconnected(expired bool) {
	m.clientsConnected.Add(-1)
	m.clientsDisconnected.Add(1)
	if expired {
		m.clientsExpired.Add(1)
	}
}

// ClientExpired records a disconnected session being destroyed by the
// expiry sweeper once its session-expiry deadline has passed, per spec.md's
// tick() clients_expired increment. The client already left clientsConnected
// at disconnect time, so only the expired/total-adjacent counters move.
func (m *Metrics) ClientExpired() {
	m.clientsExpired.Add(1)
}

// ClientCounts is a point-in-time snapshot of client lifecycle counters.
type ClientCounts struct {
	Connected    int64
	Expired      int64
	Disconnected int64
	Maximum      int64
	Total        int64
}

// Clients returns the current client lifecycle counters.
func (m *Metrics) Clients() ClientCounts {
	return ClientCounts{
		Connected:    m.clientsConnected.Load(),
		Expired:      m.clientsExpired.Load(),
		Disconnected: m.clientsDisconnected.Load(),
		Maximum:      m.clientsMaximum.Load(),
		Total:        m.clientsTotal.Load(),
	}
}
