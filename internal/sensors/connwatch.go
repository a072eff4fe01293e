package sensors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pierce403/takobot/internal/eventbus"
)

// ProbeFunc checks whether a watched service is reachable, returning
// nil when healthy. Adapted from connwatch.ProbeFunc.
type ProbeFunc func(ctx context.Context) error

// ServiceState names one watched service and its probe. The sensor
// keeps each service's last-known reachability itself, so Poll only
// emits an event on a state transition instead of repeating the same
// reconnect/crash event every tick.
type ServiceState struct {
	Name  string
	Probe ProbeFunc
}

// ConnWatchSensor probes a set of named services every poll and
// reports runtime.reconnect.<name> when a down service recovers and
// runtime.crash.<name> when an up service goes down, matching the
// event-type prefixes Type1's assess() rules key on. Adapted from the
// connwatch.Watcher's state-transition callbacks, collapsed
// from a background-goroutine-per-service design into one synchronous
// Poll invoked by the heartbeat, since the sensor contract is
// poll-driven rather than independently scheduled.
type ConnWatchSensor struct {
	interval time.Duration
	services []ServiceState
	timeout  time.Duration

	mu    sync.Mutex
	ready map[string]bool
	first map[string]bool
}

// NewConnWatchSensor builds a sensor polling every service in services
// every interval, with each probe call bounded by timeout.
func NewConnWatchSensor(interval, timeout time.Duration, services []ServiceState) *ConnWatchSensor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ready := make(map[string]bool, len(services))
	first := make(map[string]bool, len(services))
	for _, s := range services {
		first[s.Name] = true
	}
	return &ConnWatchSensor{interval: interval, services: services, timeout: timeout, ready: ready, first: first}
}

func (c *ConnWatchSensor) Name() string                { return "connwatch" }
func (c *ConnWatchSensor) PollInterval() time.Duration { return c.interval }

func (c *ConnWatchSensor) Poll(ctx context.Context) ([]eventbus.Event, error) {
	var events []eventbus.Event
	for _, svc := range c.services {
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := svc.Probe(probeCtx)
		cancel()
		healthy := err == nil

		c.mu.Lock()
		wasReady, known := c.ready[svc.Name]
		firstRun := c.first[svc.Name]
		c.ready[svc.Name] = healthy
		c.first[svc.Name] = false
		c.mu.Unlock()

		if firstRun {
			// Seed: a healthy starting state is recorded silently; an
			// unhealthy one is reported once as a crash.
			if !healthy {
				events = append(events, eventbus.Event{
					Type:     "runtime.crash." + svc.Name,
					Severity: eventbus.SeverityWarn,
					Source:   "connwatch",
					Message:  fmt.Sprintf("%s unreachable at startup: %v", svc.Name, err),
				})
			}
			continue
		}
		if !known {
			continue
		}
		switch {
		case wasReady && !healthy:
			events = append(events, eventbus.Event{
				Type:     "runtime.crash." + svc.Name,
				Severity: eventbus.SeverityWarn,
				Source:   "connwatch",
				Message:  fmt.Sprintf("%s became unreachable: %v", svc.Name, err),
			})
		case !wasReady && healthy:
			events = append(events, eventbus.Event{
				Type:     "runtime.reconnect." + svc.Name,
				Severity: eventbus.SeverityInfo,
				Source:   "connwatch",
				Message:  fmt.Sprintf("%s recovered", svc.Name),
			})
		}
	}
	return events, nil
}
