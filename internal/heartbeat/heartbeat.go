// Package heartbeat implements the single scheduler that owns cadence
// for the whole runtime: the heartbeat tick, exploration, sensor
// polling, the git auto-commit pass, and the periodic update check.
// Adapted from internal/scheduler/scheduler.go — the
// same start/stop idempotency, mutex-guarded running flag, and
// WaitGroup-drained background goroutine — adapted from per-task
// timers to a single jittered tick loop, since the heartbeat is
// one cadence driving several steps rather than independently
// scheduled tasks.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pierce403/takobot/internal/dose"
	"github.com/pierce403/takobot/internal/eventbus"
	"github.com/pierce403/takobot/internal/forge"
	"github.com/pierce403/takobot/internal/memlog"
)

// Sensor is a pure event producer polled on its own cadence within the
// heartbeat loop. Concrete sensors (internal/sensors) satisfy this
// without heartbeat importing that package, avoiding a cycle.
type Sensor interface {
	Name() string
	PollInterval() time.Duration
	Poll(ctx context.Context) ([]eventbus.Event, error)
}

// jitterFraction is the ±20% cadence jitter applied to
// avoid every loop synchronizing on the same wall-clock instant.
const jitterFraction = 0.20

// minTickInterval is the heartbeat's hard floor.
const minTickInterval = time.Second

// Deps are the heartbeat's collaborators. Fields left nil disable the
// corresponding tick step instead of erroring — a workspace without
// forge credentials, for instance, still runs with update-checks
// silently skipped.
type Deps struct {
	Bus    *eventbus.Bus
	Dose   *dose.Engine
	Memlog *memlog.Log
	Logger *slog.Logger

	Sensors []Sensor

	// ComputeOpenLoopsLabel re-derives the open-loops-aware DOSE label;
	// returning a different label from the previous tick triggers
	// dose.mode.changed.
	ComputeOpenLoopsLabel func(now time.Time) dose.Label

	// AutoCommit runs the git auto-commit pass. Nil disables step 4.
	AutoCommit func(ctx context.Context) (forge.AutoCommitResult, error)

	// CheckUpdate runs the periodic update check. Nil disables it.
	CheckUpdate func(ctx context.Context) (forge.UpdateInfo, error)

	// Explore runs the on-demand/timed exploration routine.
	Explore func(ctx context.Context, topic string) (topicSelected string, newWorldCount int, err error)

	TickInterval          time.Duration
	ExploreInterval       time.Duration
	PersistEveryNTicks    int
	UpdateCheckEveryTicks int

	Now func() time.Time
}

// Heartbeat is the single scheduler driving every periodic step.
type Heartbeat struct {
	deps Deps

	mu                    sync.Mutex
	running               bool
	stopCh                chan struct{}
	wg                    sync.WaitGroup
	lastDoseTs            time.Time
	lastExploreTs         time.Time
	lastLabel             dose.Label
	tickCount             int
	identityErrorReported bool
	sensorLastPolled      map[string]time.Time

	exploreRequests chan exploreRequest
}

type exploreRequest struct {
	topic string
	reply chan exploreReply
}

type exploreReply struct {
	topicSelected string
	newWorldCount int
	err           error
}

// New builds a Heartbeat over deps, filling defaults for any
// unset cadence fields.
func New(deps Deps) *Heartbeat {
	if deps.TickInterval < minTickInterval {
		deps.TickInterval = minTickInterval
	}
	if deps.ExploreInterval <= 0 {
		deps.ExploreInterval = 30 * time.Minute
	}
	if deps.PersistEveryNTicks <= 0 {
		deps.PersistEveryNTicks = 10
	}
	if deps.UpdateCheckEveryTicks <= 0 {
		deps.UpdateCheckEveryTicks = 360
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Heartbeat{
		deps:             deps,
		stopCh:           make(chan struct{}),
		sensorLastPolled: make(map[string]time.Time),
		exploreRequests:  make(chan exploreRequest, 4),
	}
}

// Start begins the tick loop. Idempotent: calling Start while already
// running is a no-op.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.lastDoseTs = h.deps.Now()
	h.mu.Unlock()

	h.wg.Add(1)
	go h.loop(ctx)
}

// Stop halts the tick loop and waits for the in-flight tick (if any)
// to finish. Idempotent.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.stopCh)
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Heartbeat) isRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer h.wg.Done()
	for {
		wait := jittered(h.deps.TickInterval)
		timer := time.NewTimer(wait)
		select {
		case <-h.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case req := <-h.exploreRequests:
			timer.Stop()
			h.serviceExploreRequest(ctx, req)
		case <-timer.C:
			h.tick(ctx)
		}
		if !h.isRunning() {
			return
		}
	}
}

// jittered returns d adjusted by up to ±jitterFraction, never below
// minTickInterval.
func jittered(d time.Duration) time.Duration {
	delta := float64(d) * jitterFraction * (2*rand.Float64() - 1)
	out := d + time.Duration(delta)
	if out < minTickInterval {
		return minTickInterval
	}
	return out
}

// tick runs the six-step contract below.
func (h *Heartbeat) tick(ctx context.Context) {
	now := h.deps.Now()
	h.mu.Lock()
	h.tickCount++
	tickN := h.tickCount
	dt := now.Sub(h.lastDoseTs)
	h.lastDoseTs = now
	h.mu.Unlock()

	// 1. Ensure today's daily log exists.
	if h.deps.Memlog != nil {
		if err := h.deps.Memlog.EnsureToday(now); err != nil {
			h.deps.Logger.Warn("heartbeat: ensure daily log", "error", err)
		}
	}

	// 2. DOSE tick.
	if h.deps.Dose != nil {
		h.deps.Dose.Tick(now, dt)
	}

	// 3. Re-derive open loops / label; publish on change.
	if h.deps.ComputeOpenLoopsLabel != nil {
		label := h.deps.ComputeOpenLoopsLabel(now)
		h.mu.Lock()
		changed := h.lastLabel != "" && label != h.lastLabel
		h.lastLabel = label
		h.mu.Unlock()
		if changed {
			h.deps.Bus.Publish("dose.mode.changed", eventbus.SeverityInfo, "heartbeat",
				fmt.Sprintf("affective mode changed to %s", label),
				map[string]any{"label": string(label)})
		}
	}

	// Sensor polling, within the tick loop.
	h.pollDueSensors(ctx, now)

	// 4. Git auto-commit pass.
	h.runAutoCommit(ctx)

	// 5. Exploration on interval (request_explore bypasses the timer
	// via serviceExploreRequest, handled outside tick()).
	h.mu.Lock()
	due := now.Sub(h.lastExploreTs) >= h.deps.ExploreInterval
	if due {
		h.lastExploreTs = now
	}
	h.mu.Unlock()
	if due && h.deps.Explore != nil {
		if _, _, err := h.deps.Explore(ctx, ""); err != nil {
			h.deps.Logger.Warn("heartbeat: exploration routine", "error", err)
		}
	}

	// 6. Persist DOSE snapshot every N ticks.
	if tickN%h.deps.PersistEveryNTicks == 0 && h.deps.Dose != nil {
		if err := h.deps.Dose.Persist(); err != nil {
			h.deps.Logger.Warn("heartbeat: persist dose snapshot", "error", err)
		}
	}

	// Periodic update check, a much coarser cadence than the tick itself.
	if h.deps.CheckUpdate != nil && tickN%h.deps.UpdateCheckEveryTicks == 0 {
		if info, err := h.deps.CheckUpdate(ctx); err != nil {
			h.deps.Logger.Debug("heartbeat: update check failed", "error", err)
		} else if info.HasUpdate {
			h.deps.Bus.Publish("heartbeat.update.available", eventbus.SeverityInfo, "heartbeat",
				fmt.Sprintf("update available: %s", info.LatestVersion),
				map[string]any{"current": info.CurrentVersion, "latest": info.LatestVersion, "url": info.ReleaseURL})
		}
	}
}

func (h *Heartbeat) pollDueSensors(ctx context.Context, now time.Time) {
	for _, s := range h.deps.Sensors {
		h.mu.Lock()
		last, ok := h.sensorLastPolled[s.Name()]
		due := !ok || now.Sub(last) >= s.PollInterval()
		if due {
			h.sensorLastPolled[s.Name()] = now
		}
		h.mu.Unlock()
		if !due {
			continue
		}

		events, err := s.Poll(ctx)
		if err != nil {
			h.deps.Bus.Publish("sensor.poll.failed", eventbus.SeverityWarn, s.Name(),
				fmt.Sprintf("sensor %q poll failed: %v", s.Name(), err), nil)
			continue
		}
		for _, e := range events {
			h.deps.Bus.Publish(e.Type, e.Severity, e.Source, e.Message, e.Metadata)
		}
	}
}

func (h *Heartbeat) runAutoCommit(ctx context.Context) {
	if h.deps.AutoCommit == nil {
		return
	}
	res, err := h.deps.AutoCommit(ctx)
	if err != nil {
		h.deps.Bus.Publish("forge.autocommit.failed", eventbus.SeverityWarn, "heartbeat", err.Error(), nil)
		return
	}
	if res.IdentityError {
		h.mu.Lock()
		already := h.identityErrorReported
		h.identityErrorReported = true
		h.mu.Unlock()
		if !already {
			h.deps.Bus.Publish("forge.identity.missing", eventbus.SeverityWarn, "heartbeat",
				"git user.name/user.email not configured; auto-commit cannot run", nil)
		}
		return
	}
	if res.Committed {
		h.deps.Bus.Publish("forge.autocommit.committed", eventbus.SeverityInfo, "heartbeat", res.Summary, nil)
	}
}

// SetSensors replaces the active sensor set, e.g. when a life-stage
// transition re-seeds which sensors run. Resets each sensor's
// last-polled timestamp so a newly activated sensor polls on the next
// tick rather than waiting out its own interval first.
func (h *Heartbeat) SetSensors(sensors []Sensor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps.Sensors = sensors
	h.sensorLastPolled = make(map[string]time.Time)
}

// RequestExplore asks the loop to run exploration immediately for
// topic, bypassing the interval timer, and blocks for the result.
func (h *Heartbeat) RequestExplore(ctx context.Context, topic string) (string, int, error) {
	reply := make(chan exploreReply, 1)
	select {
	case h.exploreRequests <- exploreRequest{topic: topic, reply: reply}:
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.topicSelected, r.newWorldCount, r.err
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
}

func (h *Heartbeat) serviceExploreRequest(ctx context.Context, req exploreRequest) {
	h.mu.Lock()
	h.lastExploreTs = h.deps.Now()
	h.mu.Unlock()

	var reply exploreReply
	if h.deps.Explore != nil {
		reply.topicSelected, reply.newWorldCount, reply.err = h.deps.Explore(ctx, req.topic)
	}
	req.reply <- reply
}

// HandleInput is the back-channel UI uses to nudge the DOSE engine on
// operator activity, without going through the full event bus.
func (h *Heartbeat) HandleInput(text string) {
	if h.deps.Dose == nil {
		return
	}
	h.deps.Dose.ApplyEvent(h.deps.Now(), "operator.input", string(eventbus.SeverityInfo), "router")
}

// TickCount reports how many ticks have run, for diagnostics/tests.
func (h *Heartbeat) TickCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tickCount
}
