package broker

import (
	"testing"
	"time"

	"github.com/brinewave/mqttd/hook"
	"github.com/brinewave/mqttd/store"
	"github.com/brinewave/mqttd/topic"
	"github.com/brinewave/mqttd/types/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpirySweeper_FiresDueWillToSubscriber(t *testing.T) {
	storage := store.NewStorage()
	svc := NewService(DefaultConfig(), storage, hook.NewManager(), nil)
	sweeper := NewExpirySweeper(svc)

	will := &store.WillMessage{
		Topic:      "clients/gone",
		Payload:    []byte("bye"),
		QoS:        0,
		Retain:     false,
		Properties: &message.Properties{},
	}
	// will_delay=0, session_expiry=60 so DisconnectSession schedules
	// will_fire_at = now (delay capped by expiry) but remove_at far in the future.
	storage.CreateSession("c1", true, will, 60, 0)
	storage.CreateSession("sub1", true, nil, 0, 0)
	require.NoError(t, storage.Subscribe(&topic.Subscription{
		ClientID:    "sub1",
		TopicFilter: "clients/gone",
		QoS:         0,
	}))

	storage.DisconnectSession("c1", true)

	notify := storage.Notify("sub1")

	// will_fire_at is now-ish; sweep a window comfortably past it.
	sweeper.tick(time.Now().Add(time.Second))

	select {
	case <-notify:
	case <-time.After(time.Second):
		t.Fatal("subscriber was not notified of the fired will")
	}
}

func TestExpirySweeper_RemovesExpiredSession(t *testing.T) {
	storage := store.NewStorage()
	svc := NewService(DefaultConfig(), storage, hook.NewManager(), nil)
	sweeper := NewExpirySweeper(svc)

	storage.CreateSession("c1", true, nil, 0, 0)
	storage.DisconnectSession("c1", false)

	before := svc.Metrics.Clients().Expired

	// session_expiry=0 means remove_at is effectively now; sweep the future.
	sweeper.tick(time.Now().Add(time.Second))

	after := svc.Metrics.Clients().Expired
	assert.Equal(t, before+1, after)

	sessionPresent := storage.CreateSession("c1", false, nil, 0, 0)
	assert.False(t, sessionPresent, "expired session should no longer resume")
}
