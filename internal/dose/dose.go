// Package dose implements the four-channel affective-state engine:
// Dopamine (exploration/novelty bias), Oxytocin (attachment/operator
// orientation), Serotonin (steadiness), and Endorphins
// (resilience/energy). All four channels live in [0,1] and are owned
// by a single actor — callers serialize through [Engine]'s mutex so
// the heartbeat tick and the event-bus fold never interleave.
package dose

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Label is the derived mode name shown to the operator.
type Label string

const (
	LabelCalm      Label = "calm"
	LabelBalanced  Label = "balanced"
	LabelStressed  Label = "stressed"
	LabelCurious   Label = "curious"
	LabelFocused   Label = "focused"
	LabelWithdrawn Label = "withdrawn"
)

// channel half-lives (tau) in seconds, and the single-tick cap on
// fractional movement toward baseline, freezing "the
// DOSE impulse table in the source is implicit" open question into one
// documented constant table (see DESIGN.md).
const (
	tauD = 900.0  // dopamine decays back to baseline over ~15 minutes
	tauO = 2400.0 // oxytocin is the stickiest channel: ~40 minutes
	tauS = 1200.0 // serotonin: ~20 minutes
	tauE = 1800.0 // endorphins: ~30 minutes

	// maxStep caps a single tick's fractional move toward baseline so
	// a multi-day offline gap cannot produce an instantaneous jump.
	maxStep = 0.25

	// calmStabilityThreshold is the single frozen constant for Type1's
	// "DOSE stability" heuristics (the other open design question).
	// Stability is the mean of S, E and (1 - D); above this, a
	// warn-severity event is tolerated as "light" instead of escalated.
	calmStabilityThreshold = 0.55
)

// State is the four scalars plus their current baselines. Baselines
// are mutable only through [Engine.SetBaselines] (a life-stage
// transition); the scalars themselves mutate via Tick and ApplyEvent.
type State struct {
	D, O, S, E                 float64
	BaselineD, BaselineO       float64
	BaselineS, BaselineE       float64
	LastUpdatedTs              time.Time
}

// Snapshot is State's JSON-serializable form for state/dose.json.
type Snapshot struct {
	D             float64   `json:"d"`
	O             float64   `json:"o"`
	S             float64   `json:"s"`
	E             float64   `json:"e"`
	BaselineD     float64   `json:"baseline_d"`
	BaselineO     float64   `json:"baseline_o"`
	BaselineS     float64   `json:"baseline_s"`
	BaselineE     float64   `json:"baseline_e"`
	LastUpdatedTs time.Time `json:"last_updated_ts"`
}

// Engine owns the DOSE state and serializes every mutation through mu,
// so the heartbeat task's Tick and the event-bus subscriber's
// ApplyEvent can never interleave on the same state.
type Engine struct {
	mu    sync.Mutex
	state State
	path  string // state/dose.json, empty disables persistence
}

// New creates an Engine with the given starting state. Baselines
// default to 0.5 on every channel (a neutral "balanced" stage) when
// the zero State is passed.
func New(initial State, persistPath string) *Engine {
	if initial.BaselineD == 0 && initial.BaselineO == 0 && initial.BaselineS == 0 && initial.BaselineE == 0 {
		initial.BaselineD, initial.BaselineO, initial.BaselineS, initial.BaselineE = 0.5, 0.5, 0.5, 0.5
	}
	if initial.D == 0 && initial.O == 0 && initial.S == 0 && initial.E == 0 {
		initial.D, initial.O, initial.S, initial.E = initial.BaselineD, initial.BaselineO, initial.BaselineS, initial.BaselineE
	}
	return &Engine{state: initial, path: persistPath}
}

// Load reads a persisted snapshot from path, falling back to a fresh
// balanced state if the file is missing. A corrupt file is treated the
// same way — this is best-effort state, never a startup blocker.
func Load(path string) *Engine {
	data, err := os.ReadFile(path)
	if err != nil {
		return New(State{}, path)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return New(State{}, path)
	}
	return New(State{
		D: snap.D, O: snap.O, S: snap.S, E: snap.E,
		BaselineD: snap.BaselineD, BaselineO: snap.BaselineO,
		BaselineS: snap.BaselineS, BaselineE: snap.BaselineE,
		LastUpdatedTs: snap.LastUpdatedTs,
	}, path)
}

// Snapshot returns the current state as a value copy, safe to read
// without holding Engine's lock afterward.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Label derives the current affective label from a threshold lattice
// over the four channels. Evaluated in priority order: stressed (low
// S, low E) and withdrawn (low O) take precedence over the more
// pleasant labels, since an operator-facing tone should never mask
// real distress.
func (e *Engine) Label() Label {
	e.mu.Lock()
	s := e.state
	e.mu.Unlock()
	return deriveLabel(s)
}

func deriveLabel(s State) Label {
	switch {
	case s.S < 0.3 && s.E < 0.3:
		return LabelStressed
	case s.O < 0.25:
		return LabelWithdrawn
	case s.D > 0.7 && s.S >= 0.4:
		return LabelCurious
	case s.E > 0.65 && s.D > 0.5:
		return LabelFocused
	case s.S >= 0.55 && s.D < 0.4 && math.Abs(s.E-0.5) < 0.2:
		return LabelCalm
	default:
		return LabelBalanced
	}
}

// Stability returns a single scalar in [0,1] used by Type1's DOSE
// "stability" heuristic: high serotonin and endorphins with low
// dopamine volatility reads as stable. See calmStabilityThreshold.
func (e *Engine) Stability() float64 {
	s := e.Snapshot()
	return clamp01((s.S + s.E + (1 - s.D)) / 3)
}

// IsCalm reports whether the current stability is at or above the
// frozen threshold that lets Type1 downgrade a warn-severity event
// from escalation to a tolerated "light" note.
func (e *Engine) IsCalm() bool {
	return e.Stability() >= calmStabilityThreshold
}

// Tick decays each channel toward its baseline. dt is clamped
// internally to a sane per-tick maximum movement so a long offline gap
// cannot produce a single catastrophic jump; callers should still pass
// the true elapsed seconds, not a pre-clamped value.
func (e *Engine) Tick(now time.Time, dt time.Duration) {
	if dt <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	secs := dt.Seconds()
	e.state.D = decay(e.state.D, e.state.BaselineD, secs, tauD)
	e.state.O = decay(e.state.O, e.state.BaselineO, secs, tauO)
	e.state.S = decay(e.state.S, e.state.BaselineS, secs, tauS)
	e.state.E = decay(e.state.E, e.state.BaselineE, secs, tauE)
	e.state.LastUpdatedTs = now
	e.persistLocked()
}

func decay(x, baseline, dtSeconds, tau float64) float64 {
	step := dtSeconds / tau
	if step > maxStep {
		step = maxStep
	}
	return clamp01(x + (baseline-x)*step)
}

// ApplyEvent folds a single bus event into the DOSE state using the
// frozen impulse table in table.go, keyed on (source, severity,
// type-prefix). Always clamps afterward.
func (e *Engine) ApplyEvent(now time.Time, eventType, severity, source string) {
	dD, dO, dS, dE := impulse(eventType, severity, source)
	if dD == 0 && dO == 0 && dS == 0 && dE == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.D = clamp01(e.state.D + dD)
	e.state.O = clamp01(e.state.O + dO)
	e.state.S = clamp01(e.state.S + dS)
	e.state.E = clamp01(e.state.E + dE)
	e.state.LastUpdatedTs = now
	e.persistLocked()
}

// SetChannel directly overrides one channel's current value, for the
// operator-facing "dose <channel> <0..1>" nudge. Baselines are
// untouched, so the channel drifts back toward its baseline on
// subsequent ticks rather than holding at the nudged value.
func (e *Engine) SetChannel(channel string, value float64) error {
	v := clamp01(value)
	e.mu.Lock()
	defer e.mu.Unlock()
	switch channel {
	case "d":
		e.state.D = v
	case "o":
		e.state.O = v
	case "s":
		e.state.S = v
	case "e":
		e.state.E = v
	default:
		return fmt.Errorf("dose: unknown channel %q", channel)
	}
	e.persistLocked()
	return nil
}

// SetBaselines installs new baselines (a life-stage transition) and
// recomputes nothing else: the scalars drift toward the new target on
// subsequent ticks rather than jumping.
func (e *Engine) SetBaselines(d, o, s, e2 float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.BaselineD = clamp01(d)
	e.state.BaselineO = clamp01(o)
	e.state.BaselineS = clamp01(s)
	e.state.BaselineE = clamp01(e2)
	e.persistLocked()
}

// Persist writes the current state to the configured path
// unconditionally. Safe to call with persistence disabled (no-op).
func (e *Engine) Persist() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistLocked()
}

func (e *Engine) persistLocked() error {
	if e.path == "" {
		return nil
	}
	snap := Snapshot{
		D: e.state.D, O: e.state.O, S: e.state.S, E: e.state.E,
		BaselineD: e.state.BaselineD, BaselineO: e.state.BaselineO,
		BaselineS: e.state.BaselineS, BaselineE: e.state.BaselineE,
		LastUpdatedTs: e.state.LastUpdatedTs,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("dose: marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0o700); err != nil {
		return fmt.Errorf("dose: create state dir: %w", err)
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("dose: write snapshot: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
