package echo

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when a state change is not allowed from
// the current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the server's position in its accept/serve cycle.
type State int

const (
	StateStopped State = iota
	StateListening
	StateServing
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateListening:
		return "LISTENING"
	case StateServing:
		return "SERVING"
	default:
		return "UNKNOWN"
	}
}

// Machine tracks the two-state cycle Listening -> Serving(conn) -> Listening.
// Stopped is the state before Listen and after Stop.
// It is safe for concurrent use; Stop is typically called from another goroutine.
type Machine struct {
	mu    sync.Mutex
	state State
	conn  Conn
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Conn returns the connection being served, or nil.
func (m *Machine) Conn() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Listen moves Stopped -> Listening.
func (m *Machine) Listen() error {
	return m.transition(StateStopped, StateListening, nil)
}

// Accept moves Listening -> Serving(conn).
func (m *Machine) Accept(conn Conn) error {
	return m.transition(StateListening, StateServing, conn)
}

// Release moves Serving -> Listening after the peer has gone.
func (m *Machine) Release() error {
	return m.transition(StateServing, StateListening, nil)
}

// Stop moves any state to Stopped and returns the connection that was being
// served, if any, so the caller can close it.
func (m *Machine) Stop() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn := m.conn
	m.state = StateStopped
	m.conn = nil
	return conn
}

func (m *Machine) transition(from, to State, conn Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return fmt.Errorf("%w: %s -> %s while %s", ErrInvalidTransition, from, to, m.state)
	}
	m.state = to
	m.conn = conn
	return nil
}
