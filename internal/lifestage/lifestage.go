// Package lifestage defines the immutable per-stage behavior profile
// that reshapes scheduling, budgets, and tone as the agent matures.
// Stage transitions are operator-driven: the runtime swaps the active
// *Policy for a new one and recomputes downstream state (DOSE
// baselines, sensor set, Type2 budget) rather than mutating fields on
// an existing Policy in place.
package lifestage

import "time"

// Stage names the coarse behavior profile.
type Stage string

const (
	Hatchling Stage = "hatchling"
	Child     Stage = "child"
	Teen      Stage = "teen"
	Adult     Stage = "adult"
)

// Baselines is a per-channel baseline multiplier applied to a neutral
// 0.5 DOSE baseline to get the stage's effective baseline.
type Baselines struct {
	D, O, S, E float64
}

// Policy is immutable once constructed; a stage change swaps in a new
// *Policy rather than editing fields of the current one.
type Policy struct {
	Stage                    Stage
	Title                    string
	Tone                     string
	ExploreInterval          time.Duration
	Type2BudgetPerDay        int
	WorldWatchEnabled        bool
	WorldWatchPollMultiplier float64
	RoutinesActive           map[string]bool
	DoseBaselineMultipliers  Baselines
	Sensors                  []string // sensor names active at this stage
}

// policies is the frozen table of all four stages. Values come from
// the life-stage model's expansion of the CLI surface ("stage [show|set
// <name>]"); each stage widens scheduling cadence and budget as the
// agent is trusted with more autonomy.
var policies = map[Stage]*Policy{
	Hatchling: {
		Stage:                    Hatchling,
		Title:                    "Hatchling",
		Tone:                     "curious and tentative, asks before acting",
		ExploreInterval:          45 * time.Minute,
		Type2BudgetPerDay:        4,
		WorldWatchEnabled:        false,
		WorldWatchPollMultiplier: 1.0,
		RoutinesActive:          map[string]bool{"morning": true},
		DoseBaselineMultipliers: Baselines{D: 1.1, O: 1.0, S: 0.9, E: 0.9},
		Sensors:                 []string{"health"},
	},
	Child: {
		Stage:                    Child,
		Title:                    "Child",
		Tone:                     "eager to learn the world, reports what it finds",
		ExploreInterval:          25 * time.Minute,
		Type2BudgetPerDay:        10,
		WorldWatchEnabled:        true,
		WorldWatchPollMultiplier: 1.5,
		RoutinesActive:          map[string]bool{"morning": true, "outcomes": true},
		DoseBaselineMultipliers: Baselines{D: 1.2, O: 1.0, S: 1.0, E: 1.0},
		Sensors:                 []string{"health", "worldwatch"},
	},
	Teen: {
		Stage:                    Teen,
		Title:                    "Teen",
		Tone:                     "productivity-aware, pushes back politely",
		ExploreInterval:          20 * time.Minute,
		Type2BudgetPerDay:        20,
		WorldWatchEnabled:        true,
		WorldWatchPollMultiplier: 1.0,
		RoutinesActive:          map[string]bool{"morning": true, "outcomes": true, "weekly": true},
		DoseBaselineMultipliers: Baselines{D: 1.0, O: 1.1, S: 1.0, E: 1.1},
		Sensors:                 []string{"health", "worldwatch", "connwatch"},
	},
	Adult: {
		Stage:                    Adult,
		Title:                    "Adult",
		Tone:                     "calm, full scheduling autonomy",
		ExploreInterval:          15 * time.Minute,
		Type2BudgetPerDay:        40,
		WorldWatchEnabled:        true,
		WorldWatchPollMultiplier: 0.75,
		RoutinesActive:          map[string]bool{"morning": true, "outcomes": true, "weekly": true, "compress": true},
		DoseBaselineMultipliers: Baselines{D: 1.0, O: 1.0, S: 1.0, E: 1.0},
		Sensors:                 []string{"health", "worldwatch", "connwatch"},
	},
}

// stageOrder is the canonical progression, used by validation and by
// the "next stage" convenience some commands want.
var stageOrder = []Stage{Hatchling, Child, Teen, Adult}

// For returns the policy for a stage name. ok is false for an unknown
// stage name, letting the command handler surface an OperatorInputError
// instead of a panic.
func For(stage Stage) (*Policy, bool) {
	p, ok := policies[stage]
	return p, ok
}

// Default is the policy a fresh workspace starts in.
func Default() *Policy {
	return policies[Hatchling]
}

// Stages returns every known stage name in canonical progression order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// EffectiveBaselines applies the policy's multipliers to a neutral 0.5
// baseline on each channel, clamping to [0,1].
func (p *Policy) EffectiveBaselines() (d, o, s, e float64) {
	clamp := func(x float64) float64 {
		if x < 0 {
			return 0
		}
		if x > 1 {
			return 1
		}
		return x
	}
	return clamp(0.5 * p.DoseBaselineMultipliers.D),
		clamp(0.5 * p.DoseBaselineMultipliers.O),
		clamp(0.5 * p.DoseBaselineMultipliers.S),
		clamp(0.5 * p.DoseBaselineMultipliers.E)
}

// SensorEnabled reports whether the named sensor is in this policy's
// active set.
func (p *Policy) SensorEnabled(name string) bool {
	for _, s := range p.Sensors {
		if s == name {
			return true
		}
	}
	return false
}
