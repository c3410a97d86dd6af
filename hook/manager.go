package hook

import (
	"net"
	"sync"
	"sync/atomic"
)

// Manager holds an ordered list of plug-ins and runs authentication/
// authorization decisions across all of them in registration order.
//
// The hot path (every CONNECT, PUBLISH, SUBSCRIBE) only reads the list, so
// registration uses copy-on-write: Add/Remove build a new slice under a
// mutex and atomically publish it, while Authenticate/Authorize load the
// current slice lock-free.
type Manager struct {
	mu        sync.Mutex
	pluginsPtr atomic.Pointer[[]Plugin]
	index     map[string]int
}

// NewManager creates an empty plug-in manager.
func NewManager() *Manager {
	m := &Manager{index: make(map[string]int)}
	plugins := make([]Plugin, 0)
	m.pluginsPtr.Store(&plugins)
	return m
}

// Add registers a plug-in. Returns an error if a plug-in with the same ID
// already exists.
func (m *Manager) Add(plugin Plugin) error {
	if plugin == nil {
		return ErrEmptyHookID
	}

	id := plugin.ID()
	if id == "" {
		return ErrEmptyHookID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[id]; exists {
		return ErrHookAlreadyExists
	}

	old := *m.pluginsPtr.Load()
	updated := make([]Plugin, len(old)+1)
	copy(updated, old)
	updated[len(old)] = plugin

	m.index[id] = len(old)
	m.pluginsPtr.Store(&updated)

	return nil
}

// Remove unregisters a plug-in by ID.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, exists := m.index[id]
	if !exists {
		return ErrHookNotFound
	}

	old := *m.pluginsPtr.Load()
	updated := make([]Plugin, len(old)-1)
	copy(updated[:idx], old[:idx])
	copy(updated[idx:], old[idx+1:])

	delete(m.index, id)
	for i := idx; i < len(updated); i++ {
		m.index[updated[i].ID()] = i
	}

	m.pluginsPtr.Store(&updated)

	return nil
}

// List returns a copy of the registered plug-ins in invocation order.
func (m *Manager) List() []Plugin {
	plugins := *m.pluginsPtr.Load()
	result := make([]Plugin, len(plugins))
	copy(result, plugins)
	return result
}

// Count returns the number of registered plug-ins.
func (m *Manager) Count() int {
	return len(*m.pluginsPtr.Load())
}

// Clear removes all plug-ins.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	empty := make([]Plugin, 0)
	m.pluginsPtr.Store(&empty)
	m.index = make(map[string]int)
}

// Authenticate runs every registered plug-in's Authenticate in order and
// returns the first resolved uid. With no plug-ins registered, an anonymous
// connection is accepted with an empty uid.
func (m *Manager) Authenticate(username string, password []byte) (uid string, ok bool, err error) {
	plugins := *m.pluginsPtr.Load()
	if len(plugins) == 0 {
		return "", true, nil
	}

	for _, p := range plugins {
		uid, ok, err = p.Authenticate(username, password)
		if err != nil {
			return "", false, err
		}
		if ok {
			return uid, true, nil
		}
	}
	return "", false, nil
}

// Authorize runs every registered plug-in's Authorize; all must return true
// for the action to be permitted. With no plug-ins registered, everything
// is permitted.
func (m *Manager) Authorize(remoteAddr net.Addr, uid string, action Action, topic string) (bool, error) {
	plugins := *m.pluginsPtr.Load()

	for _, p := range plugins {
		allowed, err := p.Authorize(remoteAddr, uid, action, topic)
		if err != nil {
			return false, err
		}
		if !allowed {
			return false, nil
		}
	}
	return true, nil
}
