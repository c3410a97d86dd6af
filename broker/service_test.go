package broker

import (
	"context"
	"testing"
	"time"

	"github.com/brinewave/mqttd/hook"
	"github.com/brinewave/mqttd/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(DefaultConfig(), store.NewStorage(), hook.NewManager(), nil)
}

func TestService_RegisterFirstReturnsNilEvicted(t *testing.T) {
	svc := newTestService()
	control := make(chan TakeoverRequest, 1)

	evicted := svc.Register("c1", control)
	assert.Nil(t, evicted)
}

func TestService_RegisterSecondReturnsPreviousOccupant(t *testing.T) {
	svc := newTestService()
	first := make(chan TakeoverRequest, 1)
	second := make(chan TakeoverRequest, 1)

	svc.Register("c1", first)
	evicted := svc.Register("c1", second)

	require.NotNil(t, evicted)
	assert.Equal(t, chan<- TakeoverRequest(first), evicted)
}

func TestService_UnregisterOnlyRemovesCurrentOccupant(t *testing.T) {
	svc := newTestService()
	first := make(chan TakeoverRequest, 1)
	second := make(chan TakeoverRequest, 1)

	svc.Register("c1", first)
	svc.Register("c1", second)

	// first lost the take-over race; it must not clobber second's slot.
	svc.Unregister("c1", first)
	evicted := svc.Register("c1", make(chan TakeoverRequest, 1))
	assert.Equal(t, chan<- TakeoverRequest(second), evicted)
}

func TestService_UnregisterRemovesCurrentOccupant(t *testing.T) {
	svc := newTestService()
	control := make(chan TakeoverRequest, 1)

	svc.Register("c1", control)
	svc.Unregister("c1", control)

	evicted := svc.Register("c1", make(chan TakeoverRequest, 1))
	assert.Nil(t, evicted)
}

func TestService_RunStopsOnContextCancel(t *testing.T) {
	svc := newTestService()
	svc.Config.SysUpdateInterval = 0 // disable SysPublisher so only the sweeper runs

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
