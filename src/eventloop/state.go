package eventloop

import (
	"fmt"
	"sync"
)

// State is the capture session state owned by the event loop.
type State int

const (
	Idle State = iota
	Capturing
	Selecting
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Selecting:
		return "selecting"
	case Processing:
		return "processing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Machine holds the current State. It changes only through its transition
// methods; every change is reported to the hook outside the lock.
type Machine struct {
	mu           sync.Mutex
	state        State
	onTransition func(from, to State)
}

func NewMachine(onTransition func(from, to State)) *Machine {
	return &Machine{onTransition: onTransition}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// BeginCapture moves Idle to Capturing and reports whether it did. Any other
// state makes it a no-op, which is what keeps a capture single-flight.
func (m *Machine) BeginCapture() bool {
	return m.move(Capturing, Idle) == nil
}

// Captured moves Capturing to Selecting.
func (m *Machine) Captured() error { return m.move(Selecting, Capturing) }

// Selected moves Selecting to Processing.
func (m *Machine) Selected() error { return m.move(Processing, Selecting) }

// Reset returns to Idle from any state.
func (m *Machine) Reset() {
	_ = m.move(Idle, Capturing, Selecting, Processing)
}

func (m *Machine) move(to State, from ...State) error {
	m.mu.Lock()
	cur := m.state
	allowed := false
	for _, f := range from {
		if cur == f {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition %s -> %s", cur, to)
	}
	m.state = to
	m.mu.Unlock()

	if m.onTransition != nil {
		m.onTransition(cur, to)
	}
	return nil
}
