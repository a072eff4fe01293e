// Package type1 implements the cheap, in-process triage stage of the
// dual-speed reasoning loop: a bounded queue of bus events, a pure
// classification rule table, and escalation into a Type2 task queue.
// Adapted from internal/metacognitive/metacognitive.go,
// which runs the same shape of perpetual self-regulating loop —
// drain a queue, classify, escalate — but over tool-call telemetry
// rather than affective-state events.
package type1

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pierce403/takobot/internal/eventbus"
)

// Depth is how much Type2 reasoning an escalation warrants.
type Depth string

const (
	DepthLight  Depth = "light"
	DepthMedium Depth = "medium"
	DepthDeep   Depth = "deep"
)

// Task is one escalated unit of Type2 work: the triggering event, the
// depth Type1 assigned, and a short human-readable reason.
type Task struct {
	Event  eventbus.Event
	Depth  Depth
	Reason string
}

// Queue is a bounded, non-blocking FIFO. Enqueue never blocks: a full
// queue drops the item and reports so, matching the "publish to
// Type1 is non-blocking" requirement.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
}

// NewQueue creates a queue that holds at most capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{capacity: capacity}
}

// TryEnqueue appends v, returning false (and dropping v) if the queue
// is already at capacity.
func (q *Queue[T]) TryEnqueue(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, v)
	return true
}

// Dequeue removes and returns the oldest item, if any.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	return v, true
}

// Len reports the current queue depth, for UI display.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// CalmChecker reports whether the current DOSE stability is at or
// above the calm threshold — satisfied by *dose.Engine.
type CalmChecker interface {
	IsCalm() bool
}

// Triage is the single consumer of the Type1 queue. It owns dedupe
// state (an event can never be escalated twice) and pushes onto a
// caller-supplied Type2 queue.
type Triage struct {
	bus        *eventbus.Bus
	calm       CalmChecker
	queue      *Queue[eventbus.Event]
	type2Queue *Queue[Task]

	mu   sync.Mutex
	seen map[int64]struct{}
}

// New builds a Triage that reads from its own bounded event queue and
// escalates into type2Queue.
func New(bus *eventbus.Bus, calm CalmChecker, capacity int, type2Queue *Queue[Task]) *Triage {
	return &Triage{
		bus:        bus,
		calm:       calm,
		queue:      NewQueue[eventbus.Event](capacity),
		type2Queue: type2Queue,
		seen:       make(map[int64]struct{}),
	}
}

// Enqueue offers e to the Type1 queue. On overflow it publishes a
// type1.queue.dropped warn event instead of blocking the caller —
// sized generously, this should not occur in practice.
func (t *Triage) Enqueue(e eventbus.Event) {
	if t.queue.TryEnqueue(e) {
		return
	}
	t.bus.Publish("type1.queue.dropped", eventbus.SeverityWarn, "type1",
		fmt.Sprintf("type1 queue full, dropped event %d (%s)", e.ID, e.Type),
		map[string]any{"event_id": e.ID, "event_type": e.Type})
}

// QueueDepth reports how many events are waiting for triage.
func (t *Triage) QueueDepth() int { return t.queue.Len() }

// RunOnce drains and classifies a single queued event, returning false
// if the queue was empty. A duplicate escalation for an already-seen
// event id is silently absorbed — dedupe, not an error.
func (t *Triage) RunOnce() bool {
	e, ok := t.queue.Dequeue()
	if !ok {
		return false
	}

	escalate, depth, reason := assess(e, t.isCalm())
	if !escalate {
		return true
	}

	t.mu.Lock()
	_, already := t.seen[e.ID]
	if !already {
		t.seen[e.ID] = struct{}{}
	}
	t.mu.Unlock()
	if already {
		return true
	}

	t.bus.Publish("type1.escalation", eventbus.SeverityInfo, "type1", reason,
		map[string]any{"event_id": e.ID, "event_type": e.Type, "depth": string(depth)})
	t.type2Queue.TryEnqueue(Task{Event: e, Depth: depth, Reason: reason})
	return true
}

func (t *Triage) isCalm() bool {
	if t.calm == nil {
		return false
	}
	return t.calm.IsCalm()
}

// assess implements the triage rule table below. It is a pure function
// of the event and the current calm reading so it can be exhaustively
// table-tested without a live bus or DOSE engine.
func assess(e eventbus.Event, calm bool) (escalate bool, depth Depth, reason string) {
	if e.Source == "type1" || e.Source == "type2" {
		return false, "", ""
	}

	switch e.Severity {
	case eventbus.SeverityCritical:
		return true, DepthDeep, "critical severity event"
	case eventbus.SeverityError:
		return true, DepthMedium, "error severity event"
	}

	lower := strings.ToLower(e.Message)
	if strings.Contains(lower, "another tako instance") || strings.Contains(lower, "instance lock") {
		return true, DepthDeep, "duplicate-instance risk"
	}

	switch {
	case strings.HasPrefix(e.Type, "health.check.issue"):
		if e.Severity == eventbus.SeverityWarn {
			if calm {
				return true, DepthLight, "health check issue (tolerated, calm)"
			}
			return true, DepthMedium, "health check issue"
		}
		return false, "", ""

	case strings.HasPrefix(e.Type, "runtime.crash"):
		return true, DepthMedium, "runtime crash"

	case strings.HasPrefix(e.Type, "runtime.polling"):
		if e.Severity == eventbus.SeverityWarn {
			if calm {
				return true, DepthLight, "polling warning (tolerated, calm)"
			}
			return true, DepthMedium, "polling warning"
		}
		return false, "", ""

	case strings.HasPrefix(e.Type, "runtime.reconnect"):
		if !calm {
			return true, DepthLight, "reconnect under cautious state"
		}
		return false, "", ""
	}

	return false, "", ""
}
