// Package fsm tracks the lifecycle of one streaming session.
package fsm

import (
	"fmt"
	"sync"
)

// State describes the lifecycle phase of a streaming session.
type State string

const (
	StateIdle        State = "idle"
	StateConnecting  State = "connecting"
	StateNegotiating State = "negotiating"
	StateStreaming   State = "streaming"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateClosed      State = "closed"
)

// allowed maps each state to the states reachable from it. Closed is
// reachable from everywhere via Close. Failed may re-enter connecting when a
// reconnect is attempted.
var allowed = map[State][]State{
	StateIdle:        {StateConnecting},
	StateConnecting:  {StateNegotiating, StateStreaming, StateFailed},
	StateNegotiating: {StateStreaming, StateFailed},
	StateStreaming:   {StateCompleted, StateFailed},
	StateCompleted:   {},
	StateFailed:      {StateConnecting},
	StateClosed:      {},
}

// Machine is a lightweight deterministic session state machine.
type Machine struct {
	mu    sync.RWMutex
	state State
}

// New creates a machine in the idle state.
func New() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// To transitions into next if the move is legal from the current state.
func (m *Machine) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == next {
		return nil
	}
	for _, candidate := range allowed[m.state] {
		if candidate == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", m.state, next)
}

// Close moves to the closed state. It is legal from every state and
// idempotent; it reports whether this call performed the transition.
func (m *Machine) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return false
	}
	m.state = StateClosed
	return true
}

// Terminal reports whether no further events may fire.
func (m *Machine) Terminal() bool {
	switch m.State() {
	case StateCompleted, StateClosed:
		return true
	default:
		return false
	}
}
