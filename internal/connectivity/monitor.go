// Package connectivity exposes the online/offline signal that drives the
// sync engine's reconnection trigger.
package connectivity

import "sync"

// Monitor is a boolean online/offline observable.
//
// Transitions are delivered on a buffered, coalescing channel: if the
// consumer is slow, intermediate flaps collapse into the latest state, which
// is all the sync engine needs (it re-reads Online() at pass entry anyway).
//
// Thread-safety: all methods are safe for concurrent use.
type Monitor struct {
	mu      sync.Mutex
	online  bool
	changes chan bool
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online:  online,
		changes: make(chan bool, 1),
	}
}

// Online returns the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set updates the connectivity state. A state change is signalled on the
// changes channel; repeated sets to the same state are ignored.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online

	// Coalesce: drop a stale pending signal, then push the latest.
	select {
	case <-m.changes:
	default:
	}
	m.changes <- online
}

// Changes returns the transition channel. Receivers get the state after each
// transition, with intermediate flaps coalesced.
func (m *Monitor) Changes() <-chan bool {
	return m.changes
}
