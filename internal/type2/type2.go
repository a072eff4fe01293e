// Package type2 implements the bounded, budget-gated reasoning step
// that turns a Type1 escalation into a single sanitized advisory. It
// never performs external side effects — only the inference bridge
// and the event bus are touched. Adapted from
// internal/delegate/delegate.go: both packages consume one bounded
// work item at a time, spend a budget, and produce a Result instead
// of acting directly; type2 is the reflective/advisory half, not the
// tool-executing half.
package type2

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/pierce403/takobot/internal/budget"
	"github.com/pierce403/takobot/internal/eventbus"
	"github.com/pierce403/takobot/internal/inference"
	"github.com/pierce403/takobot/internal/memlog"
	"github.com/pierce403/takobot/internal/talents"
	"github.com/pierce403/takobot/internal/type1"
)

// maxRecommendationChars bounds the advisory Type2 ever emits —
// the Recommendation contract: a single sanitized line, never a
// plan or an action.
const maxRecommendationChars = 180

// thinkingDelay is how long Type2 sleeps before producing a result,
// proportional to depth, to throttle CPU and keep a UI "thinking"
// indicator visible even on the fast heuristic path.
var thinkingDelay = map[type1.Depth]time.Duration{
	type1.DepthLight:  150 * time.Millisecond,
	type1.DepthMedium: 400 * time.Millisecond,
	type1.DepthDeep:   900 * time.Millisecond,
}

// inferenceTimeout is the depth-dependent wall-clock budget for a
// real provider call.
var inferenceTimeout = map[type1.Depth]time.Duration{
	type1.DepthLight:  60 * time.Second,
	type1.DepthMedium: 85 * time.Second,
	type1.DepthDeep:   120 * time.Second,
}

// sleepFunc is overridden in tests so Process runs instantly.
var sleepFunc = time.Sleep

// Deps are the collaborators Process needs. Every field is read at
// call time, so DailyLimit/GateOpen/ActiveTags can reflect live
// life-stage or session state without the Reasoner caching stale
// values.
type Deps struct {
	Bus       *eventbus.Bus
	Budget    *budget.Store
	Memlog    *memlog.Log
	Inference inference.RunOptions

	DailyLimit func() int
	GateOpen   func() bool
	FocusLabel func() string
	Mission    func() string
	ActiveTags func() map[string]bool

	// Ragrep is the opaque semantic-recall helper: a plain
	// string-in/string-out function whose index the core never
	// inspects.
	Ragrep func(query string) string

	Talents           *talents.Loader
	MemoryExcerptPath string
}

// Reasoner consumes one Type2Task at a time and never runs two
// inference calls concurrently — the core's Type2 loop drains at
// most one escalation per invocation.
type Reasoner struct {
	deps Deps
}

// New builds a Reasoner over deps.
func New(deps Deps) *Reasoner {
	return &Reasoner{deps: deps}
}

// Process runs the full order of operations below for a
// single escalated task: roll/consume budget, sleep proportional to
// depth, compute a heuristic fallback, attempt real inference if the
// gate is open and a provider is ready, publish type2.result, and
// append a daily-log note.
func (r *Reasoner) Process(ctx context.Context, now time.Time, task type1.Task) error {
	limit := 0
	if r.deps.DailyLimit != nil {
		limit = r.deps.DailyLimit()
	}

	allowed, _, err := r.deps.Budget.Consume(ctx, now, limit)
	if err != nil {
		return fmt.Errorf("type2: consume budget: %w", err)
	}
	if !allowed {
		r.deps.Bus.Publish("type2.budget.exhausted", eventbus.SeverityWarn, "type2",
			fmt.Sprintf("type2 daily budget exhausted, dropping task for event %d", task.Event.ID),
			map[string]any{"event_id": task.Event.ID, "event_type": task.Event.Type})
		return nil
	}

	if delay, ok := thinkingDelay[task.Depth]; ok {
		sleepFunc(delay)
	}

	recommendation := heuristicRecommendation(task.Event.Type, task.Reason)
	provider := "heuristic"
	gateOpen := r.deps.GateOpen != nil && r.deps.GateOpen()
	if !gateOpen {
		provider = "heuristic:gate-closed"
	}

	var callErr error
	if gateOpen && r.deps.Inference.Runtime.Ready() {
		prompt := r.assemblePrompt(task)
		timeout := inferenceTimeout[task.Depth]
		if timeout == 0 {
			timeout = inferenceTimeout[type1.DepthMedium]
		}
		start := time.Now()
		res, err := inference.RunWithFallback(ctx, r.deps.Inference, prompt, timeout)
		elapsed := time.Since(start)
		callErr = err
		if err == nil {
			recommendation = cleanRecommendation(res.Text)
			provider = string(res.Provider)
		}
		_ = r.deps.Budget.RecordCall(ctx, budget.CallRecord{
			Provider:  firstNonEmpty(string(res.Provider), "unknown"),
			Depth:     string(task.Depth),
			OK:        err == nil,
			Elapsed:   elapsed,
			EventID:   task.Event.ID,
			Timestamp: now,
		})
	}

	meta := map[string]any{
		"event_id":   task.Event.ID,
		"event_type": task.Event.Type,
		"depth":      string(task.Depth),
		"reason":     task.Reason,
		"provider":   provider,
	}
	if callErr != nil {
		meta["inference_error"] = callErr.Error()
	}
	r.deps.Bus.Publish("type2.result", eventbus.SeverityInfo, "type2", recommendation, meta)

	if r.deps.Memlog != nil {
		note := fmt.Sprintf("[type2/%s] %s (provider=%s)", task.Depth, recommendation, provider)
		_ = r.deps.Memlog.AppendNote(now, note)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// assemblePrompt builds the Type2 prompt: event summary, depth,
// reason, a bounded MEMORY.md excerpt, a DOSE focus-label summary,
// and a ragrep recall result.
func (r *Reasoner) assemblePrompt(task type1.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s (severity=%s source=%s)\n", task.Event.Type, task.Event.Severity, task.Event.Source)
	fmt.Fprintf(&b, "Message: %s\n", task.Event.Message)
	fmt.Fprintf(&b, "Depth: %s\n", task.Depth)
	fmt.Fprintf(&b, "Reason: %s\n", task.Reason)

	if r.deps.Mission != nil {
		if mission := strings.TrimSpace(r.deps.Mission()); mission != "" {
			fmt.Fprintf(&b, "Mission: %s\n", mission)
		}
	}
	if r.deps.FocusLabel != nil {
		fmt.Fprintf(&b, "Focus label: %s\n", r.deps.FocusLabel())
	}
	if excerpt := readMemoryExcerpt(r.deps.MemoryExcerptPath, maxMemoryExcerptChars); excerpt != "" {
		fmt.Fprintf(&b, "Memory excerpt:\n%s\n", excerpt)
	}
	if r.deps.Talents != nil {
		if all, err := r.deps.Talents.LoadAll(); err == nil && len(all) > 0 {
			tags := map[string]bool(nil)
			if r.deps.ActiveTags != nil {
				tags = r.deps.ActiveTags()
			}
			if skills := talents.FilterByTags(all, tags); skills != "" {
				fmt.Fprintf(&b, "Skills excerpt:\n%s\n", truncate(skills, maxSkillsExcerptChars))
			}
		}
	}
	if r.deps.Ragrep != nil {
		if recall := r.deps.Ragrep(task.Event.Type + " " + task.Event.Message); recall != "" {
			fmt.Fprintf(&b, "Related memory:\n%s\n", truncate(recall, maxRagrepExcerptChars))
		}
	}

	b.WriteString("\nProduce one sanitized recommendation sentence, at most 180 characters, with no markdown formatting.\n")
	return b.String()
}

const (
	maxMemoryExcerptChars = 1200
	maxSkillsExcerptChars = 1500
	maxRagrepExcerptChars = 1000
)

// readMemoryExcerpt reads a bounded prefix of a MEMORY.md file. A
// missing or unreadable file yields an empty excerpt rather than an
// error — the prompt is assembled best-effort.
func readMemoryExcerpt(path string, maxChars int) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return truncate(string(data), maxChars)
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "…"
}

// heuristicEntry pairs an event-type prefix with canned advice.
type heuristicEntry struct {
	prefix string
	advice string
}

// heuristicTable is the documented event-type → advice table Type2
// falls back to when inference is unavailable or the gate is closed.
// Matched by longest matching prefix so a more specific entry (e.g.
// "runtime.crash.xmtp") never loses to a shorter one by map
// iteration order.
var heuristicTable = []heuristicEntry{
	{"runtime.crash", "Restart the affected component and inspect recent logs for the root cause."},
	{"runtime.polling", "Check network reachability and credentials for the polled service."},
	{"runtime.reconnect", "Monitor for repeated reconnect attempts; consider a longer backoff if this persists."},
	{"health.check.issue", "Investigate the failing health check's target for capacity or connectivity problems."},
}

func heuristicRecommendation(eventType, reason string) string {
	if strings.Contains(strings.ToLower(reason), "duplicate-instance") {
		return "Another takobot instance may be running against this workspace; confirm before proceeding."
	}

	best := ""
	bestLen := -1
	for _, entry := range heuristicTable {
		if strings.HasPrefix(eventType, entry.prefix) && len(entry.prefix) > bestLen {
			best = entry.advice
			bestLen = len(entry.prefix)
		}
	}
	if best != "" {
		return best
	}
	return "No specific guidance available; monitor the event and escalate manually if it recurs."
}

// cleanRecommendation strips markdown punctuation and control
// characters from a provider's raw reply and bounds it to a single
// line no longer than maxRecommendationChars.
func cleanRecommendation(raw string) string {
	s := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		switch r {
		case '*', '_', '`', '#':
			return -1
		}
		return r
	}, raw)
	s = strings.TrimSpace(strings.Join(strings.Fields(s), " "))
	runes := []rune(s)
	if len(runes) > maxRecommendationChars {
		s = strings.TrimSpace(string(runes[:maxRecommendationChars]))
	}
	return s
}

// sortedHeuristicPrefixes is exposed for tests asserting the table is
// unambiguous (no two entries share a prefix relationship that would
// make longest-match order-dependent in an unintended way).
func sortedHeuristicPrefixes() []string {
	prefixes := make([]string, 0, len(heuristicTable))
	for _, e := range heuristicTable {
		prefixes = append(prefixes, e.prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}
