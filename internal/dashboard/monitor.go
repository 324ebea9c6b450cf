package dashboard

import (
	"sync"

	"invigilens/internal/relay"
)

// Emitter sends a control event on the relay. *relay.Client satisfies it.
type Emitter interface {
	Emit(event string, payload any) error
}

// MonitorState is the two-phase monitoring flag.
type MonitorState struct {
	// Active is what the UI shows: the last requested value.
	Active bool
	// Confirmed is the last value of this client's own requests that the
	// relay echoed back.
	Confirmed bool
	// Pending is true between a request and its echo.
	Pending bool
}

// Monitor mirrors the detection toggle as this client last requested it.
// Toggle flips Active right away and the relay echo confirms it; requests
// from other operators never change Active.
type Monitor struct {
	mu    sync.Mutex
	state MonitorState
}

// State returns the current flag.
func (m *Monitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Toggle requests the opposite of the displayed state.
func (m *Monitor) Toggle(e Emitter) (bool, error) {
	m.mu.Lock()
	next := !m.state.Active
	m.mu.Unlock()
	return next, m.Set(e, next)
}

// Set requests active. If the emit fails the displayed state reverts.
func (m *Monitor) Set(e Emitter, active bool) error {
	m.mu.Lock()
	prev := m.state
	m.state.Active = active
	m.state.Pending = true
	m.mu.Unlock()

	if err := e.Emit(relay.EventSetMonitoring, relay.MonitoringState{Active: active}); err != nil {
		m.mu.Lock()
		m.state.Active = prev.Active
		m.state.Pending = prev.Pending
		m.mu.Unlock()
		return err
	}
	return nil
}

// Observe applies a set_monitoring message seen on the relay. An echo that
// matches the pending request settles it; anything else is ignored.
func (m *Monitor) Observe(s relay.MonitoringState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Pending && m.state.Active == s.Active {
		m.state.Confirmed = s.Active
		m.state.Pending = false
	}
}
