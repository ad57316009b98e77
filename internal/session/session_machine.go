// Package session implements the four-state recording lifecycle with a
// validated transition table and a single change-notification callback.
package session

import "sync"

// State is one of the machine's four reachable states (a tagged enum, not
// an inheritance hierarchy — the transition function is the only place
// that knows the table).
type State int

const (
	Idle State = iota
	Recording
	Paused
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Event is one of the five events the machine accepts.
type Event int

const (
	Start Event = iota
	Pause
	Resume
	Stop
	Finalized
)

// Machine is a SessionMachine: current state plus a single registered
// change callback. Transitions rejected by the table leave the state
// unchanged and invoke nothing.
type Machine struct {
	mu       sync.Mutex
	state    State
	onChange func(old, new State)
}

// New constructs a Machine starting in Idle.
func New() *Machine {
	return &Machine{state: Idle}
}

// SetOnChange registers the single callback invoked exactly once per
// successful transition. Replaces any previously registered callback.
func (m *Machine) SetOnChange(fn func(old, new State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition attempts the given event against the current state. It
// returns true iff the table has a ✓ cell for (state, event); on success
// it invokes the registered on_change callback exactly once.
func (m *Machine) Transition(event Event) bool {
	m.mu.Lock()

	old := m.state
	next, ok := nextState(old, event)
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.state = next
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(old, next)
	}
	return true
}

// nextState is the complete transition table from the component design.
func nextState(state State, event Event) (State, bool) {
	switch state {
	case Idle:
		if event == Start {
			return Recording, true
		}
	case Recording:
		switch event {
		case Pause:
			return Paused, true
		case Stop:
			return Stopping, true
		}
	case Paused:
		switch event {
		case Resume:
			return Recording, true
		case Stop:
			return Stopping, true
		}
	case Stopping:
		if event == Finalized {
			return Idle, true
		}
	}
	return state, false
}

// IsIdle, IsRecording, IsPaused, IsStopping are convenience predicates
// matching the component design's helper accessors.
func (m *Machine) IsIdle() bool      { return m.State() == Idle }
func (m *Machine) IsRecording() bool { return m.State() == Recording }
func (m *Machine) IsPaused() bool    { return m.State() == Paused }
func (m *Machine) IsStopping() bool  { return m.State() == Stopping }
