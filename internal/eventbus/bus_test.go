package eventbus

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestBus(t *testing.T) (*Bus, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	log, err := OpenLog(path)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return New(log, 1), path
}

func TestPublish_MonotonicIDs(t *testing.T) {
	b, _ := newTestBus(t)
	e1 := b.Publish("test.one", SeverityInfo, "test", "first", nil)
	e2 := b.Publish("test.two", SeverityInfo, "test", "second", nil)
	e3 := b.Publish("test.three", SeverityInfo, "test", "third", nil)

	if e1.ID != 1 || e2.ID != 2 || e3.ID != 3 {
		t.Errorf("ids = %d, %d, %d, want 1, 2, 3", e1.ID, e2.ID, e3.ID)
	}
}

func TestPublish_LogPrecedesSubscriber(t *testing.T) {
	b, path := newTestBus(t)
	seenInLog := false

	b.Subscribe("checker", func(e Event) error {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		seenInLog = len(data) > 0
		return nil
	})

	b.Publish("test.event", SeverityInfo, "test", "hello", nil)

	if !seenInLog {
		t.Error("expected log write to be visible to subscriber before it ran")
	}
}

func TestPublish_SubscriberPanicIsolated(t *testing.T) {
	b, _ := newTestBus(t)
	var calledB, calledC bool

	b.Subscribe("a-panics", func(e Event) error {
		panic("boom")
	})
	b.Subscribe("b-ok", func(e Event) error {
		calledB = true
		return nil
	})
	b.Subscribe("c-ok", func(e Event) error {
		calledC = true
		return nil
	})

	b.Publish("test.event", SeverityInfo, "test", "hello", nil)

	if !calledB || !calledC {
		t.Errorf("calledB=%v calledC=%v, want both true", calledB, calledC)
	}
}

func TestPublish_SubscriberErrorEmitsEvent(t *testing.T) {
	b, _ := newTestBus(t)
	var mu sync.Mutex
	var types []string

	b.Subscribe("failing", func(e Event) error {
		if e.Type == "test.event" {
			return errors.New("nope")
		}
		return nil
	})
	b.Subscribe("recorder", func(e Event) error {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
		return nil
	})

	b.Publish("test.event", SeverityInfo, "test", "hello", nil)

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, typ := range types {
		if typ == eventTypeSubscriberError {
			found = true
		}
	}
	if !found {
		t.Errorf("types = %v, want eventbus.subscriber_error present", types)
	}
}

func TestPublish_SubscriberErrorDoesNotRecurseForever(t *testing.T) {
	b, _ := newTestBus(t)
	var count int
	b.Subscribe("always-fails", func(e Event) error {
		count++
		return errors.New("fail")
	})

	b.Publish("test.event", SeverityInfo, "test", "hello", nil)

	if count > 2 {
		t.Errorf("subscriber invoked %d times, expected bounded recursion (<=2)", count)
	}
}

func TestSubscribe_OrderPreserved(t *testing.T) {
	b, _ := newTestBus(t)
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		b.Subscribe(name, func(e Event) error {
			order = append(order, name)
			return nil
		})
	}

	b.Publish("test.event", SeverityInfo, "test", "hello", nil)

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	b, _ := newTestBus(t)
	called := false
	id := b.Subscribe("temp", func(e Event) error {
		called = true
		return nil
	})
	b.Unsubscribe(id)

	b.Publish("test.event", SeverityInfo, "test", "hello", nil)

	if called {
		t.Error("expected unsubscribed handler not to be called")
	}
}

func TestLoadNextID_EmptyOrMissing(t *testing.T) {
	dir := t.TempDir()
	id, err := LoadNextID(filepath.Join(dir, "missing.jsonl"))
	if err != nil {
		t.Fatalf("LoadNextID: %v", err)
	}
	if id != 1 {
		t.Errorf("LoadNextID(missing) = %d, want 1", id)
	}
}

func TestLoadNextID_ResumesFromMax(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	log, err := OpenLog(path)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	b := New(log, 1)
	b.Publish("a", SeverityInfo, "s", "m", nil)
	b.Publish("b", SeverityInfo, "s", "m", nil)
	b.Publish("c", SeverityInfo, "s", "m", nil)
	log.Close()

	id, err := LoadNextID(path)
	if err != nil {
		t.Fatalf("LoadNextID: %v", err)
	}
	if id != 4 {
		t.Errorf("LoadNextID = %d, want 4", id)
	}
}

func TestLoadNextID_TolerantOfTrailingPartialLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	log, err := OpenLog(path)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	b := New(log, 1)
	b.Publish("a", SeverityInfo, "s", "m", nil)
	b.Publish("b", SeverityInfo, "s", "m", nil)
	log.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	f.WriteString(`{"id":3,"ts":"2026-01-01T00:00:00Z","type":"c","sever`)
	f.Close()

	id, err := LoadNextID(path)
	if err != nil {
		t.Fatalf("LoadNextID: %v", err)
	}
	if id != 3 {
		t.Errorf("LoadNextID = %d, want 3 (partial line ignored)", id)
	}
}

func TestAppend_WritesOneJSONLinePerEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	log, err := OpenLog(path)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	defer log.Close()

	for i := 0; i < 3; i++ {
		if err := log.Append(Event{ID: int64(i + 1), Ts: time.Now(), Type: "t"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var n int
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal line %d: %v", n, err)
		}
		n++
	}
	if n != 3 {
		t.Errorf("lines = %d, want 3", n)
	}
}

func TestSanitizeMessage_CollapsesControlCharacters(t *testing.T) {
	got := sanitizeMessage("hello\nworld\t\tfoo\r\n  bar  ")
	want := "hello world foo bar"
	if got != want {
		t.Errorf("sanitizeMessage = %q, want %q", got, want)
	}
}

func TestBus_NilSafe(t *testing.T) {
	var b *Bus
	if id := b.Subscribe("x", func(Event) error { return nil }); id != 0 {
		t.Errorf("nil Bus Subscribe = %d, want 0", id)
	}
	b.Unsubscribe(1)
	e := b.Publish("x", SeverityInfo, "s", "m", nil)
	if e.ID != 0 {
		t.Errorf("nil Bus Publish = %+v, want zero Event", e)
	}
	if err := b.Close(); err != nil {
		t.Errorf("nil Bus Close = %v, want nil", err)
	}
}
