package session

import "testing"

func TestInitialStateIsBooting(t *testing.T) {
	m := New()
	if m.State() != Booting {
		t.Fatalf("expected Booting, got %s", m.State())
	}
}

func TestBootingToOnboardingIdentity(t *testing.T) {
	m := New()
	if !m.Transition(OnboardingIdentity) {
		t.Fatalf("expected Booting -> OnboardingIdentity to be legal")
	}
	if m.State() != OnboardingIdentity {
		t.Fatalf("expected state OnboardingIdentity, got %s", m.State())
	}
}

func TestBootingToPairedWhenImprintFound(t *testing.T) {
	m := New()
	if !m.Transition(Paired) {
		t.Fatalf("expected Booting -> Paired to be legal")
	}
}

func TestIllegalTransitionRefused(t *testing.T) {
	m := New()
	if m.Transition(AskXMTPHandle) {
		t.Fatalf("expected Booting -> AskXMTPHandle to be illegal")
	}
	if m.State() != Booting {
		t.Fatalf("expected state to remain Booting after a refused transition")
	}
}

func TestAnyNonBootingStateCanReachRunning(t *testing.T) {
	for _, s := range []State{OnboardingIdentity, OnboardingRoutines, AskXMTPHandle, PairingOutbound, Paired} {
		m := &Machine{state: s}
		if !m.Transition(Running) {
			t.Fatalf("expected %s -> Running to be legal", s)
		}
	}
}

func TestBootingCannotJumpDirectlyToRunning(t *testing.T) {
	m := New()
	if m.Transition(Running) {
		t.Fatalf("expected Booting -> Running to require going through onboarding or Paired first")
	}
}

func TestObserveTurnOpensGateOnceOnFirstNonEmptyInput(t *testing.T) {
	m := &Machine{state: OnboardingIdentity}
	if m.GateOpen() {
		t.Fatalf("gate should start closed")
	}
	if opened := m.ObserveTurn(""); opened {
		t.Fatalf("empty input must not open the gate")
	}
	if m.GateOpen() {
		t.Fatalf("gate should still be closed after empty input")
	}
	if opened := m.ObserveTurn("hello"); !opened {
		t.Fatalf("expected the first non-empty turn to open the gate")
	}
	if !m.GateOpen() {
		t.Fatalf("expected gate to be open")
	}
	if opened := m.ObserveTurn("again"); opened {
		t.Fatalf("expected the gate open signal to fire only once")
	}
}

func TestObserveTurnIgnoredOutsideEligibleStates(t *testing.T) {
	m := &Machine{state: Booting}
	if opened := m.ObserveTurn("hello"); opened {
		t.Fatalf("Booting is not a gate-eligible state")
	}
	if m.GateOpen() {
		t.Fatalf("gate should remain closed while still Booting")
	}
}
