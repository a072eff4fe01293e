package type2

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pierce403/takobot/internal/budget"
	"github.com/pierce403/takobot/internal/eventbus"
	"github.com/pierce403/takobot/internal/inference"
	"github.com/pierce403/takobot/internal/memlog"
	"github.com/pierce403/takobot/internal/type1"
)

func newTestDeps(t *testing.T, dailyLimit int, gateOpen bool) (Deps, *eventbus.Bus, func()) {
	t.Helper()
	log, err := eventbus.OpenLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	bus := eventbus.New(log, 1)

	store, err := budget.Open(filepath.Join(t.TempDir(), "budget.db"))
	if err != nil {
		t.Fatalf("budget.Open: %v", err)
	}

	ml := memlog.New(t.TempDir())

	deps := Deps{
		Bus:        bus,
		Budget:     store,
		Memlog:     ml,
		Inference:  inference.RunOptions{Runtime: inference.Runtime{}}, // never ready
		DailyLimit: func() int { return dailyLimit },
		GateOpen:   func() bool { return gateOpen },
		FocusLabel: func() string { return "calm" },
		Mission:    func() string { return "" },
	}
	cleanup := func() {
		_ = bus.Close()
		_ = store.Close()
	}
	return deps, bus, cleanup
}

func TestProcessUsesHeuristicWhenGateClosed(t *testing.T) {
	origSleep := sleepFunc
	sleepFunc = func(time.Duration) {}
	defer func() { sleepFunc = origSleep }()

	deps, bus, cleanup := newTestDeps(t, 10, false)
	defer cleanup()

	var captured eventbus.Event
	bus.Subscribe("capture", func(e eventbus.Event) error {
		if e.Type == "type2.result" {
			captured = e
		}
		return nil
	})

	task := type1.Task{
		Event:  eventbus.Event{ID: 1, Type: "runtime.crash.xmtp", Severity: eventbus.SeverityError, Source: "runtime"},
		Depth:  type1.DepthMedium,
		Reason: "runtime crash",
	}
	if err := New(deps).Process(context.Background(), time.Now(), task); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if captured.Metadata["provider"] != "heuristic:gate-closed" {
		t.Fatalf("expected heuristic:gate-closed provider, got %+v", captured.Metadata)
	}
	if captured.Message == "" {
		t.Fatalf("expected a non-empty recommendation")
	}
}

func TestProcessUsesHeuristicWhenInferenceNotReady(t *testing.T) {
	origSleep := sleepFunc
	sleepFunc = func(time.Duration) {}
	defer func() { sleepFunc = origSleep }()

	deps, bus, cleanup := newTestDeps(t, 10, true)
	defer cleanup()

	var captured eventbus.Event
	bus.Subscribe("capture", func(e eventbus.Event) error {
		if e.Type == "type2.result" {
			captured = e
		}
		return nil
	})

	task := type1.Task{
		Event:  eventbus.Event{ID: 2, Type: "health.check.issue.disk", Severity: eventbus.SeverityWarn, Source: "sensor"},
		Depth:  type1.DepthLight,
		Reason: "health check issue",
	}
	if err := New(deps).Process(context.Background(), time.Now(), task); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if captured.Metadata["provider"] != "heuristic" {
		t.Fatalf("expected plain heuristic provider, got %+v", captured.Metadata)
	}
}

func TestProcessPublishesBudgetExhausted(t *testing.T) {
	origSleep := sleepFunc
	sleepFunc = func(time.Duration) {}
	defer func() { sleepFunc = origSleep }()

	deps, bus, cleanup := newTestDeps(t, 0, true) // zero daily limit: always exhausted
	defer cleanup()

	var sawExhausted bool
	bus.Subscribe("capture", func(e eventbus.Event) error {
		if e.Type == "type2.budget.exhausted" {
			sawExhausted = true
		}
		return nil
	})

	task := type1.Task{Event: eventbus.Event{ID: 3, Type: "runtime.crash"}, Depth: type1.DepthLight, Reason: "x"}
	if err := New(deps).Process(context.Background(), time.Now(), task); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !sawExhausted {
		t.Fatalf("expected a type2.budget.exhausted event")
	}
}

func TestHeuristicRecommendationDuplicateInstance(t *testing.T) {
	got := heuristicRecommendation("some.event", "duplicate-instance risk")
	if got == "" {
		t.Fatalf("expected a non-empty recommendation")
	}
}

func TestHeuristicRecommendationLongestPrefixWins(t *testing.T) {
	got := heuristicRecommendation("runtime.crash.xmtp", "runtime crash")
	want := heuristicRecommendation("runtime.crash", "runtime crash")
	if got != want {
		t.Fatalf("expected longer-prefixed event type to still match the runtime.crash entry: got %q want %q", got, want)
	}
}

func TestHeuristicRecommendationUnknownEventType(t *testing.T) {
	got := heuristicRecommendation("some.unmapped.event", "")
	if got == "" {
		t.Fatalf("expected a default recommendation for unmapped event types")
	}
}

func TestCleanRecommendationStripsMarkdownAndBounds(t *testing.T) {
	raw := "**Do** this_now` and #also\nthis\ttoo " + stringsRepeat("x", 200)
	got := cleanRecommendation(raw)
	if len(got) > maxRecommendationChars {
		t.Fatalf("expected recommendation bounded to %d chars, got %d", maxRecommendationChars, len(got))
	}
	for _, bad := range []string{"*", "_", "`", "#"} {
		if containsRune(got, bad) {
			t.Fatalf("expected markdown marker %q stripped from %q", bad, got)
		}
	}
}

func stringsRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func containsRune(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestSortedHeuristicPrefixesHasNoDuplicates(t *testing.T) {
	prefixes := sortedHeuristicPrefixes()
	seen := map[string]bool{}
	for _, p := range prefixes {
		if seen[p] {
			t.Fatalf("duplicate heuristic prefix: %q", p)
		}
		seen[p] = true
	}
}
