// Package explore implements the on-demand/timed exploration routine
// the heartbeat's request_explore contract drives: pick a topic, and
// if it names a URL, fetch and summarize it as a daily-log research
// note. Adapted from the original implementation's
// take_research_notes/_summarize_text (research.py): a single fetch
// per call rather than a fixed URL batch, since this runtime has no
// operator-curated reading list to drive a larger sweep from.
package explore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pierce403/takobot/internal/fetch"
	"github.com/pierce403/takobot/internal/memlog"
	"github.com/pierce403/takobot/internal/sensors"
)

// maxSummaryChars bounds a fetched source's summary in the daily-log
// note, matching take_research_notes' default max_summary_chars.
const maxSummaryChars = 240

// Deps are explore's collaborators. Fetch and Memlog nil-out their
// step rather than erroring: a workspace with no daily log configured
// still answers request_explore, it just logs nothing.
type Deps struct {
	Fetch *fetch.Fetcher
	Memlog *memlog.Log

	// Seen dedupes fetched sources across restarts so re-exploring the
	// same URL never counts as a new-world item twice.
	Seen *sensors.Seen

	// DefaultTopic supplies a topic when request_explore is called with
	// none, e.g. the oldest open task's title.
	DefaultTopic func() string

	Now func() time.Time
}

// Runner runs one exploration pass per Run call.
type Runner struct {
	deps Deps
}

// New builds a Runner over deps, filling Now with time.Now if unset.
func New(deps Deps) *Runner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Runner{deps: deps}
}

// Run implements request_explore: select a topic, log it, and if the
// topic is itself a URL, fetch and summarize it, reporting 1 for
// newWorldCount if that source had not been seen before.
func (r *Runner) Run(ctx context.Context, topic string) (topicSelected string, newWorldCount int, err error) {
	selected := strings.TrimSpace(topic)
	if selected == "" && r.deps.DefaultTopic != nil {
		selected = strings.TrimSpace(r.deps.DefaultTopic())
	}
	if selected == "" {
		selected = "general"
	}

	now := r.deps.Now()
	r.appendNote(now, fmt.Sprintf("Exploration topic: %s", selected))

	if !looksLikeURL(selected) || r.deps.Fetch == nil {
		return selected, 0, nil
	}

	res, ferr := r.deps.Fetch.Fetch(ctx, selected, 0)
	if ferr != nil {
		r.appendNote(now, fmt.Sprintf("Research source failed: topic=%s; error=%v", selected, ferr))
		return selected, 0, nil
	}

	isNew := true
	if r.deps.Seen != nil {
		isNew = !r.deps.Seen.Contains(res.URL)
		if isNew {
			_ = r.deps.Seen.Mark(res.URL, now)
		}
	}

	title := res.Title
	if title == "" {
		title = "(untitled)"
	}
	summary := summarizeText(res.Content, maxSummaryChars)
	r.appendNote(now, fmt.Sprintf("Research note: topic=%s; source=%s; title=%s; summary=%s", selected, res.URL, title, summary))

	count := 0
	if isNew {
		count = 1
	}
	return selected, count, nil
}

func (r *Runner) appendNote(now time.Time, note string) {
	if r.deps.Memlog == nil {
		return
	}
	_ = r.deps.Memlog.AppendNote(now, note)
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// summarizeText collapses whitespace and truncates to maxChars,
// matching _summarize_text's "(no readable text)" fallback and
// trailing ellipsis on truncation.
func summarizeText(text string, maxChars int) string {
	compact := strings.Join(strings.Fields(text), " ")
	if compact == "" {
		return "(no readable text)"
	}
	runes := []rune(compact)
	if len(runes) <= maxChars {
		return compact
	}
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return strings.TrimRight(string(runes[:maxChars-3]), " ") + "..."
}
