package store

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/brinewave/mqttd/encoding"
	"github.com/brinewave/mqttd/topic"
	"github.com/brinewave/mqttd/types/message"
)

// Retain-handling values from the SUBSCRIBE packet's subscription options,
// MQTT 5.0 §3.8.3.1.
const (
	RetainSendAlways byte = 0 // send retained messages at the time of subscribe
	RetainSendIfNew  byte = 1 // send retained messages only for a new subscription
	RetainSendNever  byte = 2 // never send retained messages for this subscription
)

// WillMessage is a session's registered last-will, armed at CONNECT and
// disarmed on graceful DISCONNECT.
type WillMessage struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	Properties *message.Properties
}

// InflightPub is one QoS 1/2 PUBLISH a session is waiting to have
// acknowledged. Sessions keep these in strict FIFO order: a PUBACK/PUBCOMP
// only ever completes the front entry.
type InflightPub struct {
	PacketID uint16
	Message  *message.Message
}

// notifier is a single-consumer wake signal: at most one pending wake is
// ever buffered, and Notify never blocks. This mirrors the "notify one,
// never broadcast" requirement for waking a session's delivery loop.
type notifier struct {
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{}, 1)}
}

func (n *notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n *notifier) C() <-chan struct{} {
	return n.ch
}

// session is the live, in-memory state for one client-id: its outbound
// queue, subscriptions, inflight acknowledgment windows, and will/expiry
// bookkeeping. All fields are guarded by mu.
type session struct {
	mu sync.Mutex

	clientID string
	notify   *notifier

	queue []*message.Message

	lastWill              *WillMessage
	sessionExpiryInterval uint32
	lastWillDelayInterval uint32

	inflightPub   []InflightPub
	uncompletedIn map[uint16]*message.Message

	connected bool
	willFired bool

	// willFireAt and removeAt are absolute deadlines populated on
	// disconnect; zero means "not scheduled". DueWills and DueRemovals
	// compare them against the current time on every sweep.
	willFireAt time.Time
	removeAt   time.Time
}

func newSession(clientID string) *session {
	return &session{
		clientID:      clientID,
		notify:        newNotifier(),
		uncompletedIn: make(map[uint16]*message.Message),
		connected:     true,
	}
}

// SessionInfo is a read-only snapshot of a session's will/expiry
// configuration, used by Storage.Sessions for diagnostics and $SYS
// reporting.
type SessionInfo struct {
	ClientID               string
	LastWill               *WillMessage
	SessionExpiryInterval  uint32
	LastWillDelayInterval  uint32
	Connected              bool
}

// Metrics is a point-in-time snapshot of broker-wide delivery state.
type Metrics struct {
	SessionCount           int
	InflightMessagesCount  int
	RetainedMessagesCount  int
	MessagesCount          int
	MessagesBytes          int
	SubscriptionsCount     int
}

// Storage is the broker's single shared delivery engine: sessions, their
// outbound queues, subscriptions (including shared-subscription fan-out),
// and retained messages. One exclusive outer lock guards the session
// registry; each session additionally has its own inner lock, and no lock
// is ever held across a channel send or other suspension point.
type Storage struct {
	mu       sync.RWMutex
	sessions map[string]*session

	retained *RetainedIndex
	router   *topic.Router

	randIntn func(n int) int
}

// NewStorage creates an empty delivery engine using math/rand/v2 for
// shared-subscription selection.
func NewStorage() *Storage {
	return NewStorageWithRand(func(n int) int { return rand.IntN(n) })
}

// NewStorageWithRand creates a delivery engine whose shared-subscription
// fan-out draws from randIntn instead of the default source. Tests inject
// a deterministic generator here.
func NewStorageWithRand(randIntn func(n int) int) *Storage {
	return &Storage{
		sessions: make(map[string]*session),
		retained: NewRetainedIndex(),
		router:   topic.NewRouterWithRand(randIntn),
		randIntn: randIntn,
	}
}

// UpdateRetainedMessage sets or clears (on empty payload) the retained
// message for msg's topic.
func (s *Storage) UpdateRetainedMessage(msg *message.Message) {
	s.retained.Set(msg)
}

// CreateSession creates a new session for clientID, or — when cleanStart is
// false and a session already exists — resumes it in place, refreshing its
// will and expiry configuration. It reports session_present: whether a
// prior session was resumed rather than created fresh.
func (s *Storage) CreateSession(clientID string, cleanStart bool, lastWill *WillMessage, sessionExpiryInterval, lastWillDelayInterval uint32) (sessionPresent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cleanStart {
		delete(s.sessions, clientID)
		s.router.UnsubscribeAll(clientID)
	} else if existing, ok := s.sessions[clientID]; ok {
		existing.mu.Lock()
		existing.lastWill = lastWill
		existing.sessionExpiryInterval = sessionExpiryInterval
		existing.lastWillDelayInterval = lastWillDelayInterval
		existing.connected = true
		existing.willFired = false
		existing.willFireAt = time.Time{}
		existing.removeAt = time.Time{}
		existing.mu.Unlock()
		return true
	}

	sess := newSession(clientID)
	sess.lastWill = lastWill
	sess.sessionExpiryInterval = sessionExpiryInterval
	sess.lastWillDelayInterval = lastWillDelayInterval
	s.sessions[clientID] = sess

	return false
}

// DisconnectSession marks clientID's session disconnected and schedules its
// will-fire and removal deadlines: will_fire_at = now + min(will_delay,
// session_expiry), remove_at = now + session_expiry. A later DueWills call
// reports the will (if still armed) for firing and, separately, DueRemovals
// removes the session once remove_at has passed. If sendWill is false the will is disarmed
// immediately, as on a graceful DISCONNECT with no will forwarding.
func (s *Storage) DisconnectSession(clientID string, sendWill bool) {
	s.mu.RLock()
	sess, ok := s.sessions[clientID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.connected = false
	if !sendWill {
		sess.lastWill = nil
	}

	now := time.Now()
	delay := sess.lastWillDelayInterval
	if sess.sessionExpiryInterval < delay {
		delay = sess.sessionExpiryInterval
	}
	sess.willFireAt = now.Add(time.Duration(delay) * time.Second)
	sess.removeAt = now.Add(time.Duration(sess.sessionExpiryInterval) * time.Second)
}

// RemoveSession deletes clientID's session and any shared-subscription
// membership it held, reporting whether a session existed.
func (s *Storage) RemoveSession(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, found := s.sessions[clientID]
	delete(s.sessions, clientID)
	s.router.UnsubscribeAll(clientID)
	return found
}

// Sessions returns a snapshot of every live session's will/expiry
// configuration.
func (s *Storage) Sessions() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionInfo, 0, len(s.sessions))
	for clientID, sess := range s.sessions {
		sess.mu.Lock()
		out = append(out, SessionInfo{
			ClientID:              clientID,
			LastWill:              sess.lastWill,
			SessionExpiryInterval: sess.sessionExpiryInterval,
			LastWillDelayInterval: sess.lastWillDelayInterval,
			Connected:             sess.connected,
		})
		sess.mu.Unlock()
	}
	return out
}

// Subscribe records sub for its client-id and, depending on retain
// handling and whether the subscription is new, enqueues any matching
// retained messages, waking the session if any were enqueued. It returns
// ErrSessionNotFound when clientID has no session.
func (s *Storage) Subscribe(sub *topic.Subscription) error {
	s.mu.RLock()
	sess, ok := s.sessions[sub.ClientID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	prior, err := s.router.Subscribe(sub)
	if err != nil {
		return err
	}
	isNewSubscribe := prior == nil

	publishRetain := sub.RetainHandling == RetainSendAlways ||
		(sub.RetainHandling == RetainSendIfNew && isNewSubscribe)
	if !publishRetain {
		return nil
	}

	matches := s.retained.Match(sub.TopicFilter)
	if len(matches) == 0 {
		return nil
	}

	filterSub := subscriberFromSubscription(sub)
	sess.mu.Lock()
	woke := false
	for _, msg := range matches {
		delivered := filterMessage(msg.OriginClientID, msg, []topic.SubscriberInfo{filterSub})
		if delivered == nil {
			continue
		}
		sess.queue = append(sess.queue, delivered)
		woke = true
	}
	sess.mu.Unlock()
	if woke {
		sess.notify.Notify()
	}

	return nil
}

// Unsubscribe removes clientID's subscription to filter, reporting whether
// one existed.
func (s *Storage) Unsubscribe(clientID, filter string) bool {
	return s.router.Unsubscribe(clientID, filter)
}

// Publish fans msg out to every matching session: every regular (non-
// shared) subscriber that matches enqueues its own combined-QoS copy, and
// for each matching shared-subscription group exactly one member is chosen
// uniformly at random to receive a copy (Testable Property 9). Expired
// messages (per msg.IsExpired) are dropped before matching.
func (s *Storage) Publish(msg *message.Message) {
	if msg.IsExpired() {
		return
	}

	subs := s.router.Match(msg.Topic)
	if len(subs) == 0 {
		return
	}

	byClient := make(map[string][]topic.SubscriberInfo)
	order := make([]string, 0, len(subs))
	for _, sub := range subs {
		if _, ok := byClient[sub.ClientID]; !ok {
			order = append(order, sub.ClientID)
		}
		byClient[sub.ClientID] = append(byClient[sub.ClientID], sub)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, clientID := range order {
		sess, ok := s.sessions[clientID]
		if !ok {
			continue
		}
		delivered := filterMessage(msg.OriginClientID, msg, byClient[clientID])
		if delivered == nil {
			continue
		}
		sess.mu.Lock()
		sess.queue = append(sess.queue, delivered)
		sess.mu.Unlock()
		sess.notify.Notify()
	}
}

// filterMessage applies the no-local exclusion, combines the maximum QoS
// and retain-as-published across every matching filter for one client, and
// aggregates subscription identifiers, returning nil if no filter survives
// no-local exclusion.
func filterMessage(publisherClientID string, msg *message.Message, filters []topic.SubscriberInfo) *message.Message {
	matched := false
	maxQoS := byte(0)
	retain := msg.Retain
	var subIDs []uint32

	for _, f := range filters {
		if f.NoLocal && publisherClientID != "" && f.ClientID == publisherClientID {
			continue
		}
		if f.QoS > maxQoS {
			maxQoS = f.QoS
		}
		if !f.RetainAsPublished {
			retain = false
		}
		if f.SubscriptionIdentifier != 0 {
			subIDs = append(subIDs, f.SubscriptionIdentifier)
		}
		matched = true
	}

	if !matched {
		return nil
	}

	qos := msg.QoS
	if encoding.QoS(maxQoS) < qos {
		qos = encoding.QoS(maxQoS)
	}

	var props *message.Properties
	if msg.Properties != nil {
		props = msg.Properties.Clone()
	} else {
		props = &message.Properties{}
	}
	props.SubscriptionIdentifiers = subIDs

	out := message.NewMessage(0, msg.Topic, msg.Payload, qos, retain, props)
	out.OriginClientID = msg.OriginClientID
	return out
}

func subscriberFromSubscription(sub *topic.Subscription) topic.SubscriberInfo {
	return topic.SubscriberInfo{
		ClientID:               sub.ClientID,
		QoS:                    sub.QoS,
		NoLocal:                sub.NoLocal,
		RetainAsPublished:      sub.RetainAsPublished,
		RetainHandling:         sub.RetainHandling,
		SubscriptionIdentifier: sub.SubscriptionIdentifier,
	}
}

// NextMessages returns up to limit not-yet-expired messages from the front
// of clientID's outbound queue without removing them; callers call
// ConsumeMessages once they have been handed off for delivery. A limit of
// 0 means unlimited.
//
// Expired messages encountered during the scan are dropped from the queue
// immediately, under the same lock, rather than merely skipped — otherwise
// the front of the queue after a scan would no longer align with what
// ConsumeMessages(n) removes, and a valid message sitting behind an expired
// one would be handed to the caller, survive a ConsumeMessages(1) that
// actually deletes the expired entry in front of it, and be redelivered.
func (s *Storage) NextMessages(clientID string, limit int) ([]*message.Message, error) {
	s.mu.RLock()
	sess, ok := s.sessions[clientID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	live := sess.queue[:0]
	for _, msg := range sess.queue {
		if msg.IsExpired() {
			continue
		}
		live = append(live, msg)
	}
	sess.queue = live

	if limit <= 0 || limit > len(sess.queue) {
		limit = len(sess.queue)
	}

	out := make([]*message.Message, limit)
	copy(out, sess.queue[:limit])
	return out, nil
}

// ConsumeMessages removes up to count messages from the front of
// clientID's outbound queue.
func (s *Storage) ConsumeMessages(clientID string, count int) error {
	s.mu.RLock()
	sess, ok := s.sessions[clientID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if count > len(sess.queue) {
		count = len(sess.queue)
	}
	sess.queue = sess.queue[count:]
	return nil
}

// AddInflightPub appends a QoS 1/2 outbound PUBLISH to clientID's inflight
// window.
func (s *Storage) AddInflightPub(clientID string, pub InflightPub) error {
	s.mu.RLock()
	sess, ok := s.sessions[clientID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	sess.inflightPub = append(sess.inflightPub, pub)
	sess.mu.Unlock()
	return nil
}

// TakeInflightPub looks up packetID in clientID's inflight window. When
// remove is true, the entry is only popped if it is at the front of the
// window — acknowledgments must arrive in FIFO order, so an ack for any
// other packet-id returns not-found rather than reordering the queue.
func (s *Storage) TakeInflightPub(clientID string, packetID uint16, remove bool) (*InflightPub, error) {
	s.mu.RLock()
	sess, ok := s.sessions[clientID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if remove {
		if len(sess.inflightPub) == 0 || sess.inflightPub[0].PacketID != packetID {
			return nil, nil
		}
		pub := sess.inflightPub[0]
		sess.inflightPub = sess.inflightPub[1:]
		return &pub, nil
	}

	for _, pub := range sess.inflightPub {
		if pub.PacketID == packetID {
			p := pub
			return &p, nil
		}
	}
	return nil, nil
}

// AllInflightPub returns every outstanding inflight PUBLISH for clientID,
// in FIFO order, for redelivery after a session resume.
func (s *Storage) AllInflightPub(clientID string) ([]InflightPub, error) {
	s.mu.RLock()
	sess, ok := s.sessions[clientID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	out := make([]InflightPub, len(sess.inflightPub))
	copy(out, sess.inflightPub)
	return out, nil
}

// AddUncompletedIn records msg as the QoS 2 inbound message associated with
// packetID, reporting false (without overwriting) if one is already
// present — the duplicate PUBLISH this indicates should be re-acked with
// PUBREC, not re-delivered upward.
func (s *Storage) AddUncompletedIn(clientID string, packetID uint16, msg *message.Message) (bool, error) {
	s.mu.RLock()
	sess, ok := s.sessions[clientID]
	s.mu.RUnlock()
	if !ok {
		return false, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, exists := sess.uncompletedIn[packetID]; exists {
		return false, nil
	}
	sess.uncompletedIn[packetID] = msg
	return true, nil
}

// TakeUncompletedIn looks up the QoS 2 inbound message for packetID,
// removing it when remove is true (on PUBREL).
func (s *Storage) TakeUncompletedIn(clientID string, packetID uint16, remove bool) (*message.Message, error) {
	s.mu.RLock()
	sess, ok := s.sessions[clientID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	msg, ok := sess.uncompletedIn[packetID]
	if !ok {
		return nil, nil
	}
	if remove {
		delete(sess.uncompletedIn, packetID)
	}
	return msg, nil
}

// Notify returns the wake channel for clientID's delivery loop, or nil if
// no such session exists. Receiving from it never blocks past the next
// queued wake, and at most one pending wake is ever buffered.
func (s *Storage) Notify(clientID string) <-chan struct{} {
	s.mu.RLock()
	sess, ok := s.sessions[clientID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return sess.notify.C()
}

// DueWill is one session whose will-fire deadline has passed.
type DueWill struct {
	ClientID string
	Will     *WillMessage
}

// DueWills reports the sessions whose will-fire deadline has passed and
// whose will is still armed, marking each as fired so a repeated Tick does
// not refire it.
func (s *Storage) DueWills(now time.Time) []DueWill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []DueWill
	for clientID, sess := range s.sessions {
		sess.mu.Lock()
		if !sess.connected && !sess.willFired && sess.lastWill != nil && !sess.willFireAt.IsZero() && !now.Before(sess.willFireAt) {
			sess.willFired = true
			will := sess.lastWill
			sess.mu.Unlock()
			due = append(due, DueWill{ClientID: clientID, Will: will})
			continue
		}
		sess.mu.Unlock()
	}
	return due
}

// DueRemovals reports the client-ids whose remove-at deadline has passed
// while still disconnected, and removes them from the registry.
func (s *Storage) DueRemovals(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for clientID, sess := range s.sessions {
		sess.mu.Lock()
		expired := !sess.connected && !sess.removeAt.IsZero() && !now.Before(sess.removeAt)
		sess.mu.Unlock()
		if expired {
			due = append(due, clientID)
		}
	}
	for _, clientID := range due {
		delete(s.sessions, clientID)
		s.router.UnsubscribeAll(clientID)
	}
	return due
}

// Metrics returns a point-in-time snapshot of delivery-engine state.
func (s *Storage) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := Metrics{
		SessionCount:          len(s.sessions),
		RetainedMessagesCount: s.retained.Count(),
		SubscriptionsCount:    s.router.Count(),
	}

	for _, sess := range s.sessions {
		sess.mu.Lock()
		m.InflightMessagesCount += len(sess.inflightPub)
		m.MessagesCount += len(sess.queue)
		for _, msg := range sess.queue {
			m.MessagesBytes += len(msg.Payload)
		}
		sess.mu.Unlock()
	}

	return m
}
