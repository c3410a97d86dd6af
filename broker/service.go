package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brinewave/mqttd/hook"
	"github.com/brinewave/mqttd/store"
)

// TakeoverRequest is sent on a displaced connection's control channel when a
// new CONNECT arrives for the same client-id. Done must be closed by the
// displaced connection once it has fully released ownership of the
// session — the new connection waits on it before proceeding, per spec.md
// §4.5/§5's one-shot rendezvous.
type TakeoverRequest struct {
	Done chan<- struct{}
}

// Service is the broker's shared runtime state: configuration, the delivery
// engine, the live-connection registry used for session take-over, the
// ordered plug-in list, and rolling metrics. Every conn.Conn holds a
// reference to the same Service.
type Service struct {
	Config  Config
	Storage *store.Storage
	Plugins *hook.Manager
	Metrics *Metrics
	Log     *slog.Logger

	mu       sync.Mutex
	registry map[string]chan<- TakeoverRequest
}

// NewService creates a Service wired to an already-constructed delivery
// engine and plug-in manager, using cfg for CONNECT negotiation caps.
func NewService(cfg Config, storage *store.Storage, plugins *hook.Manager, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		Config:   cfg,
		Storage:  storage,
		Plugins:  plugins,
		Metrics:  NewMetrics(),
		Log:      log,
		registry: make(map[string]chan<- TakeoverRequest),
	}
}

// Run starts the service's background maintenance: the expiry sweeper and,
// if Config.SysUpdateInterval is positive, the $SYS publisher. It blocks
// until ctx is cancelled; callers typically run it in its own goroutine
// alongside whatever listener accepts connections into conn.NewConn.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		NewExpirySweeper(s).Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		NewSysPublisher(s).Run(ctx)
	}()

	wg.Wait()
}

// Register installs control as the live connection's control channel for
// clientID, returning the previous occupant (nil if none) so the caller can
// run the session take-over rendezvous against it.
func (s *Service) Register(clientID string, control chan<- TakeoverRequest) (evicted chan<- TakeoverRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted = s.registry[clientID]
	s.registry[clientID] = control
	return evicted
}

// Unregister removes clientID's registry entry, but only if control is
// still the current occupant — a connection that lost a take-over race must
// not clobber the new connection's registration when it unwinds.
func (s *Service) Unregister(clientID string, control chan<- TakeoverRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.registry[clientID]; ok && current == control {
		delete(s.registry, clientID)
	}
}
