// Package session implements the operator-facing state machine from
// the BOOTING → onboarding → RUNNING progression, and
// the inference gate latch that decides whether early Type2
// escalations fall back to pure heuristics. Adapted from
// internal/agent state handling (a small explicit state enum driving
// which handler a turn is dispatched to) generalized from a
// single "ready" boolean into takobot's full onboarding sequence.
package session

import "sync"

// State is one node in the session state machine.
type State string

const (
	Booting            State = "booting"
	OnboardingIdentity State = "onboarding_identity"
	OnboardingRoutines State = "onboarding_routines"
	AskXMTPHandle      State = "ask_xmtp_handle"
	PairingOutbound    State = "pairing_outbound"
	Paired             State = "paired"
	Running            State = "running"
)

// transitions is the legal-transition table below. It is
// consulted by Machine.Transition, which refuses anything not listed
// here rather than silently accepting an invalid state graph edge.
var transitions = map[State][]State{
	Booting:            {OnboardingIdentity, Paired},
	OnboardingIdentity: {OnboardingRoutines},
	OnboardingRoutines: {AskXMTPHandle, Running},
	AskXMTPHandle:      {PairingOutbound, Running},
	PairingOutbound:    {Paired},
	Paired:             {Running},
}

// Machine holds the current state and the latched inference gate.
// Both are guarded by the same mutex since a state transition and a
// gate check can race on the same input turn.
type Machine struct {
	mu    sync.Mutex
	state State

	gateOpen bool
}

// New starts a Machine in Booting.
func New() *Machine {
	return &Machine{state: Booting}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CanTransition reports whether to is a legal next state from the
// current one.
func (m *Machine) CanTransition(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return canTransition(m.state, to)
}

func canTransition(from, to State) bool {
	// "Any non-BOOTING state → RUNNING when onboarding completes."
	if to == Running && from != Booting {
		return true
	}
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Transition moves to the next state, refusing any edge not present
// in the transition table. Returns false without mutating state on an
// illegal edge.
func (m *Machine) Transition(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !canTransition(m.state, to) {
		return false
	}
	m.state = to
	return true
}

// gateEligibleStates is where the first non-empty turn opens the
// inference gate.
var gateEligibleStates = map[State]bool{
	AskXMTPHandle:      true,
	PairingOutbound:    true,
	OnboardingIdentity: true,
	OnboardingRoutines: true,
	Paired:             true,
	Running:            true,
}

// ObserveTurn opens the inference gate on the first non-empty input
// submitted while in an eligible state. It is idempotent: once open,
// further calls are no-ops. Returns true the one time the gate
// transitions from closed to open.
func (m *Machine) ObserveTurn(text string) (openedNow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gateOpen || text == "" || !gateEligibleStates[m.state] {
		return false
	}
	m.gateOpen = true
	return true
}

// GateOpen reports whether the inference gate has been latched open.
func (m *Machine) GateOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gateOpen
}
