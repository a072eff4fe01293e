// Package memlog manages the per-day daily log under
// <workspace>/memory/dailies/YYYY-MM-DD.md: plain markdown on write,
// goldmark-rendered on read for any surface that wants an HTML
// excerpt. Supplemented from the original Python implementation's
// daily.py — the heartbeat tick #1
// ("ensure today's daily log exists") and Type2's "append a daily-log
// note" both assume this module exists.
package memlog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yuin/goldmark"
)

// dayFormat is the filename format for a daily log.
const dayFormat = "2006-01-02"

// Log manages daily-log files under dir (workspace's memory/dailies).
type Log struct {
	dir string
}

// New creates a Log rooted at dir.
func New(dir string) *Log {
	return &Log{dir: dir}
}

// pathFor returns the path for the daily log covering the calendar day
// containing now (UTC).
func (l *Log) pathFor(now time.Time) string {
	return filepath.Join(l.dir, now.UTC().Format(dayFormat)+".md")
}

// EnsureToday creates today's daily log file with a header if it does
// not already exist. Idempotent: calling it repeatedly within the same
// day is a no-op after the first call, matching the heartbeat tick's
// "ensure today's daily log exists" contract.
func (l *Log) EnsureToday(now time.Time) error {
	path := l.pathFor(now)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("memlog: stat %s: %w", path, err)
	}

	if err := os.MkdirAll(l.dir, 0o700); err != nil {
		return fmt.Errorf("memlog: create dailies dir: %w", err)
	}
	header := fmt.Sprintf("# %s\n\n", now.UTC().Format("Monday, January 2, 2006"))
	if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
		return fmt.Errorf("memlog: create %s: %w", path, err)
	}
	return nil
}

// AppendNote appends a timestamped bullet note to today's daily log,
// creating the file first if needed. Used by Type2's recommendation
// write-back and by life-stage transition records.
func (l *Log) AppendNote(now time.Time, note string) error {
	if err := l.EnsureToday(now); err != nil {
		return err
	}
	path := l.pathFor(now)
	line := fmt.Sprintf("- %s — %s\n", now.UTC().Format("15:04"), note)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("memlog: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("memlog: append note: %w", err)
	}
	return nil
}

// ReadToday returns today's raw markdown content. Returns an empty
// string with no error if the file does not exist yet.
func (l *Log) ReadToday(now time.Time) (string, error) {
	data, err := os.ReadFile(l.pathFor(now))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("memlog: read today: %w", err)
	}
	return string(data), nil
}

// RenderHTML converts markdown content to an HTML fragment, for any
// surface (e.g. a future web view) that wants rendered output instead
// of raw markdown.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("memlog: render markdown: %w", err)
	}
	return buf.String(), nil
}

// ListDays returns every daily-log filename stem (YYYY-MM-DD) present
// under dir, sorted ascending.
func (l *Log) ListDays() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("memlog: list days: %w", err)
	}
	var days []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".md" {
			days = append(days, name[:len(name)-len(".md")])
		}
	}
	return days, nil
}
