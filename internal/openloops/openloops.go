// Package openloops derives a point-in-time index of outstanding
// tasks, blank daily outcomes, and recent warning/error signals for UI
// and Type2 prompt context. It is recomputed on every heartbeat tick;
// it is never the source of truth — state/open_loops.json
// is safe to delete at any time.
package openloops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pierce403/takobot/internal/eventbus"
)

// Signal is a recent warn/error/critical event surfaced for visibility.
type Signal struct {
	ID       int64             `json:"id"`
	Ts       time.Time         `json:"ts"`
	Type     string            `json:"type"`
	Severity eventbus.Severity `json:"severity"`
	Message  string            `json:"message"`
}

// Index is the derived snapshot.
type Index struct {
	ComputedAt      time.Time `json:"computed_at"`
	OpenTaskCount   int       `json:"open_task_count"`
	BlankOutcomeDays []string `json:"blank_outcome_days"`
	RecentSignals   []Signal  `json:"recent_signals"`
}

// maxSignals bounds how many recent signals ride in the index; the
// event log itself is the durable record, this is just a UI-facing
// excerpt.
const maxSignals = 20

// Compute builds an Index from the current open task count, the list
// of recent daily-log day stems that have no recorded outcomes, and
// the tail of the event log. recentEvents should already be filtered
// to warn-or-worse by the caller (the heartbeat task holds the event
// log); Compute takes the most recent maxSignals of them.
func Compute(now time.Time, openTaskCount int, blankOutcomeDays []string, recentEvents []eventbus.Event) Index {
	signals := make([]Signal, 0, len(recentEvents))
	for _, e := range recentEvents {
		if e.Severity != eventbus.SeverityWarn && e.Severity != eventbus.SeverityError && e.Severity != eventbus.SeverityCritical {
			continue
		}
		signals = append(signals, Signal{ID: e.ID, Ts: e.Ts, Type: e.Type, Severity: e.Severity, Message: e.Message})
	}
	if len(signals) > maxSignals {
		signals = signals[len(signals)-maxSignals:]
	}
	return Index{
		ComputedAt:       now,
		OpenTaskCount:    openTaskCount,
		BlankOutcomeDays: blankOutcomeDays,
		RecentSignals:    signals,
	}
}

// Persist writes the index to path, safe to call repeatedly; the file
// may be deleted externally at any time with no loss of correctness.
func Persist(path string, idx Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("openloops: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("openloops: create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("openloops: write: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a previously persisted index. A missing file returns the
// zero Index with no error.
func Load(path string) (Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Index{}, nil
		}
		return Index{}, fmt.Errorf("openloops: read: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, fmt.Errorf("openloops: parse: %w", err)
	}
	return idx, nil
}
