// Package state implements the runtime's lifecycle state machine.
package state

import (
	"fmt"

	"github.com/scanrt/plcrt/internal/plcerr"
)

// State is one of the runtime's exclusive lifecycle states.
type State int

const (
	// Boot is the initial state before any initialization has run.
	Boot State = iota
	// PreOp means initialization succeeded; the engine and driver are
	// ready but the cycle loop has not started.
	PreOp
	// Run is normal cyclic operation.
	Run
	// Fault means a fault was reported; step is not invoked until reset.
	Fault
	// Shutdown is the terminal state after a clean or forced stop.
	Shutdown
)

func (s State) String() string {
	switch s {
	case Boot:
		return "BOOT"
	case PreOp:
		return "PRE_OP"
	case Run:
		return "RUN"
	case Fault:
		return "FAULT"
	case Shutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// canTransition reports whether target is a legal transition from s.
func canTransition(s, target State) bool {
	switch target {
	case Shutdown:
		// any -> Shutdown on signal
		return true
	case PreOp:
		// Boot -> PreOp on successful init; Fault -> PreOp on explicit reset
		return s == Boot || s == Fault
	case Run:
		// PreOp -> Run on explicit start
		return s == PreOp
	case Fault:
		// Run -> Fault on any reported fault
		return s == Run
	default:
		return false
	}
}

// Machine tracks the current state and enforces legal transitions.
//
// Not safe for concurrent use by multiple writers; the cycle thread is
// the sole owner, matching the scheduler's exclusive ownership of the
// process image and engine handle.
type Machine struct {
	current  State
	previous State
	faultLatch bool
	latched  bool
}

// New creates a state machine starting in Boot.
func New(faultLatch bool) *Machine {
	return &Machine{current: Boot, previous: Boot, faultLatch: faultLatch}
}

// Current returns the current state.
func (m *Machine) Current() State { return m.current }

// Previous returns the state before the last transition.
func (m *Machine) Previous() State { return m.previous }

// Transition attempts to move to target, returning a *plcerr.Error of
// KindInvalidState on an illegal transition.
func (m *Machine) Transition(target State) error {
	if target == PreOp && m.current == Fault && m.faultLatch && m.latched {
		return plcerr.New(plcerr.KindInvalidState, "fault is latched; manual acknowledgement required")
	}
	if !canTransition(m.current, target) {
		return plcerr.New(plcerr.KindInvalidState,
			fmt.Sprintf("illegal transition %s -> %s", m.current, target))
	}
	m.previous = m.current
	m.current = target
	if target == Fault {
		m.latched = true
	}
	if target == PreOp {
		m.latched = false
	}
	return nil
}

// EnterFault forces a transition to Fault from Run; it is a no-op if
// already faulted and always succeeds from Run per the runtime's
// fault-entry contract.
func (m *Machine) EnterFault() {
	if m.current == Run {
		m.previous = m.current
		m.current = Fault
		m.latched = true
	}
}

// Acknowledge clears a latched fault, permitting the next PreOp
// transition. It has no effect outside Fault.
func (m *Machine) Acknowledge() {
	if m.current == Fault {
		m.latched = false
	}
}

// IsOperational reports whether the runtime is actively cycling.
func (m *Machine) IsOperational() bool { return m.current == Run }
