package sensors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pierce403/takobot/internal/eventbus"
)

// Check is a single named health probe. It returns a non-empty detail
// string when unhealthy, or "" when the check passes.
type Check struct {
	Name string
	Run  func(ctx context.Context) (detail string, healthy bool)
}

// HealthSensor runs a fixed battery of internal health checks; the
// core wires state directory writability and inference provider
// readiness. It is active at every life stage (lifestage.Hatchling
// included) since it never touches anything the operator has not
// already consented to.
type HealthSensor struct {
	interval time.Duration
	checks   []Check
}

// NewHealthSensor builds a sensor over checks, polled every interval.
func NewHealthSensor(interval time.Duration, checks []Check) *HealthSensor {
	return &HealthSensor{interval: interval, checks: checks}
}

func (h *HealthSensor) Name() string                { return "health" }
func (h *HealthSensor) PollInterval() time.Duration { return h.interval }

// Poll runs every check and returns one event per failing check, plus
// a single summary event when all checks pass. It never returns an
// error itself: a panicking or misbehaving check would otherwise take
// down the whole sensor, which must be caught and
// turned into a warn event instead.
func (h *HealthSensor) Poll(ctx context.Context) (events []eventbus.Event, err error) {
	var issues []string
	for _, c := range h.checks {
		detail, healthy := runCheckSafely(ctx, c)
		if healthy {
			continue
		}
		issues = append(issues, c.Name)
		events = append(events, eventbus.Event{
			Type:     "health.check.issue." + c.Name,
			Severity: eventbus.SeverityWarn,
			Source:   "health",
			Message:  detail,
		})
	}
	if len(issues) == 0 {
		events = append(events, eventbus.Event{
			Type:     "health.check.summary",
			Severity: eventbus.SeverityInfo,
			Source:   "health",
			Message:  "all health checks passing",
		})
	}
	return events, nil
}

func runCheckSafely(ctx context.Context, c Check) (detail string, healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			detail, healthy = fmt.Sprintf("check panicked: %v", r), false
		}
	}()
	return c.Run(ctx)
}

// StateDirWritableCheck reports unhealthy when dir cannot be written
// to, the most common cause of a silently stalled daily log or event
// log.
func StateDirWritableCheck(dir string) Check {
	return Check{
		Name: "state_dir_writable",
		Run: func(context.Context) (string, bool) {
			probe := filepath.Join(dir, ".health-probe")
			if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
				return fmt.Sprintf("cannot write to %s: %v", dir, err), false
			}
			_ = os.Remove(probe)
			return "", true
		},
	}
}

// InferenceReadyCheck reports unhealthy when ready reports false,
// meaning no inference provider currently has both CLI and
// credentials available.
func InferenceReadyCheck(ready func() bool) Check {
	return Check{
		Name: "inference_ready",
		Run: func(context.Context) (string, bool) {
			if ready() {
				return "", true
			}
			return "no inference provider is ready (missing CLI or credentials)", false
		},
	}
}
