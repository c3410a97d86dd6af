// Package qos tracks the two flow-control quotas a connection enforces
// during its Live state: how many inbound QoS-2 exchanges it will accept
// concurrently, and how many outbound QoS-1/2 publishes it may have
// in flight toward its peer. FIFO ack-ordering and message storage
// themselves live in package store; this package is only the counters.
package qos

import "sync"

// Quota tracks receive_in_quota (inbound QoS-2, server-declared limit) and
// receive_out_quota (outbound QoS-1/2, client-declared limit) for one
// connection, per spec.md §4.5.4.
type Quota struct {
	mu  sync.Mutex
	in  int
	out int
}

// NewQuota creates a quota tracker with the given starting budgets.
// inMax is the server's configured receive_max (inbound QoS-2 cap); outMax
// is the client's CONNECT receive_max (outbound QoS-1/2 cap), defaulting to
// 65535 when the client did not send one.
func NewQuota(inMax, outMax uint16) *Quota {
	return &Quota{in: int(inMax), out: int(outMax)}
}

// TryAcquireIn attempts to consume one unit of inbound QoS-2 quota, used
// when a PUBLISH with QoS 2 arrives. Returns false if the quota is
// exhausted, in which case the caller must disconnect ReceiveMaximumExceeded.
func (q *Quota) TryAcquireIn() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.in <= 0 {
		return false
	}
	q.in--
	return true
}

// ReleaseIn returns one unit of inbound QoS-2 quota, called when the
// matching PUBREL is processed.
func (q *Quota) ReleaseIn() {
	q.mu.Lock()
	q.in++
	q.mu.Unlock()
}

// OutAvailable reports whether at least one unit of outbound quota remains.
// The Live-state notification loop only pops from the session queue while
// this is true.
func (q *Quota) OutAvailable() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.out > 0
}

// AcquireOut consumes one unit of outbound quota when a QoS-1/2 PUBLISH is
// sent to the peer. Callers must check OutAvailable (or equivalent) first.
func (q *Quota) AcquireOut() {
	q.mu.Lock()
	q.out--
	q.mu.Unlock()
}

// ReleaseOut returns one unit of outbound quota, called on PUBACK (QoS 1)
// or PUBCOMP (QoS 2).
func (q *Quota) ReleaseOut() {
	q.mu.Lock()
	q.out++
	q.mu.Unlock()
}

// In returns the current inbound QoS-2 quota, for metrics/tests.
func (q *Quota) In() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.in
}

// Out returns the current outbound QoS-1/2 quota, for metrics/tests.
func (q *Quota) Out() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.out
}
