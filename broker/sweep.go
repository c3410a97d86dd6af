package broker

import (
	"context"
	"time"

	"github.com/brinewave/mqttd/encoding"
	"github.com/brinewave/mqttd/types/message"
)

// sweepInterval is the tick() resolution for due will-fire and
// session-removal deadlines, per spec.md §9's timer-wheel note.
const sweepInterval = 100 * time.Millisecond

// ExpirySweeper periodically processes due session deadlines: firing
// last-wills whose will_fire_at has passed, and destroying sessions whose
// remove_at (session-expiry) has passed, per spec.md's tick() operation.
type ExpirySweeper struct {
	svc *Service
}

// NewExpirySweeper creates a sweeper for svc.
func NewExpirySweeper(svc *Service) *ExpirySweeper {
	return &ExpirySweeper{svc: svc}
}

// Run ticks every sweepInterval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *ExpirySweeper) tick(now time.Time) {
	for _, due := range s.svc.Storage.DueWills(now) {
		will := due.Will
		msg := message.NewMessage(0, will.Topic, will.Payload, encoding.QoS(will.QoS), will.Retain, will.Properties)
		msg.OriginClientID = due.ClientID
		if will.Retain {
			s.svc.Storage.UpdateRetainedMessage(msg)
		}
		s.svc.Storage.Publish(msg)
	}

	removed := s.svc.Storage.DueRemovals(now)
	for range removed {
		s.svc.Metrics.ClientExpired()
	}
}
