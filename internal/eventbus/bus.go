package eventbus

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// nowFunc is overridden in tests to produce deterministic timestamps.
var nowFunc = time.Now

// Handler observes a published event. A Handler that returns an error,
// or that panics, never prevents delivery to other subscribers and
// never unwinds Publish: the failure is itself converted into a
// subscriber_error event.
type Handler func(Event) error

type subscription struct {
	id   int64
	name string
	fn   Handler
}

// Bus is the synchronous, append-only event bus. Every Publish call
// assigns the next id, appends the event to the durable Log, and only
// then invokes subscribers in registration order. A nil *Bus is safe
// to call: Publish is a no-op and Subscribe returns 0.
type Bus struct {
	mu     sync.Mutex
	log    *Log
	nextID int64
	subs   []subscription
	subSeq int64
}

// New creates a Bus backed by log. nextID is the id that will be
// assigned to the first published event; callers normally derive it
// from LoadNextID so ids stay monotonic across restarts.
func New(log *Log, nextID int64) *Bus {
	if nextID < 1 {
		nextID = 1
	}
	return &Bus{log: log, nextID: nextID}
}

// Subscribe registers fn under name and returns a subscription id that
// can be passed to Unsubscribe. Subscribers are invoked in the order
// they were registered.
func (b *Bus) Subscribe(name string, fn Handler) int64 {
	if b == nil || fn == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subSeq++
	id := b.subSeq
	b.subs = append(b.subs, subscription{id: id, name: name, fn: fn})
	return id
}

// Unsubscribe removes a previously registered subscription.
func (b *Bus) Unsubscribe(id int64) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish assigns the next monotonic id, appends the event to the log,
// and then invokes every subscriber synchronously in registration
// order. The log write happens before any subscriber sees the event,
// and a failing subscriber never blocks or skips delivery to the rest.
func (b *Bus) Publish(typ string, severity Severity, source, message string, metadata map[string]any) Event {
	if b == nil {
		return Event{}
	}

	e, subs := b.commit(typ, severity, source, message, metadata)
	b.deliver(e, subs)
	return e
}

// commit performs the locked phase: assign id, append to the log, and
// snapshot the current subscriber list. It never invokes a subscriber.
func (b *Bus) commit(typ string, severity Severity, source, message string, metadata map[string]any) (Event, []subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := Event{
		ID:       b.nextID,
		Ts:       nowFunc().UTC(),
		Type:     typ,
		Severity: severity,
		Source:   source,
		Message:  sanitizeMessage(message),
		Metadata: metadata,
	}
	b.nextID++

	if err := b.log.Append(e); err != nil {
		// The event is still delivered in memory; the logging failure
		// is recorded on the event itself under the "log_error"
		// metadata key, where subscribers can see it.
		e.Metadata = mergeLogError(e.Metadata, err)
	}

	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	return e, subs
}

func mergeLogError(meta map[string]any, err error) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["log_error"] = err.Error()
	return out
}

// deliver invokes each subscriber outside the lock, isolating panics
// and errors from one another and from the caller.
func (b *Bus) deliver(e Event, subs []subscription) {
	for _, s := range subs {
		b.invoke(e, s)
	}
}

func (b *Bus) invoke(e Event, s subscription) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = s.fn(e)
	}()
	if err == nil {
		return
	}

	// Recursing into Publish happens with no lock held, so this can
	// never deadlock against commit(). A subscriber_error event is
	// never itself allowed to recurse indefinitely: if the failing
	// subscriber is the subscriber_error delivery itself, the error is
	// dropped rather than looping forever.
	if e.Type == eventTypeSubscriberError {
		return
	}
	b.Publish(eventTypeSubscriberError, SeverityWarn, "eventbus",
		fmt.Sprintf("subscriber %q failed handling event %d (%s): %v", s.name, e.ID, e.Type, err),
		map[string]any{"subscriber": s.name, "event_id": e.ID, "event_type": e.Type})
}

const eventTypeSubscriberError = "eventbus.subscriber_error"

// Close releases the underlying log file handle.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.log.Close()
}

// subscriberNames returns the currently registered subscriber names,
// sorted by name, for diagnostics.
func (b *Bus) subscriberNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.subs))
	for _, s := range b.subs {
		names = append(names, s.name)
	}
	sort.Strings(names)
	return names
}
