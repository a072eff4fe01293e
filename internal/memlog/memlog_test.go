package memlog

import (
	"strings"
	"testing"
	"time"
)

func TestEnsureTodayIsIdempotent(t *testing.T) {
	l := New(t.TempDir())
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	if err := l.EnsureToday(now); err != nil {
		t.Fatalf("EnsureToday first call: %v", err)
	}
	content1, err := l.ReadToday(now)
	if err != nil {
		t.Fatalf("ReadToday: %v", err)
	}

	if err := l.EnsureToday(now); err != nil {
		t.Fatalf("EnsureToday second call: %v", err)
	}
	content2, err := l.ReadToday(now)
	if err != nil {
		t.Fatalf("ReadToday: %v", err)
	}

	if content1 != content2 {
		t.Fatalf("expected idempotent EnsureToday, got %q then %q", content1, content2)
	}
}

func TestAppendNoteCreatesFileAndAppends(t *testing.T) {
	l := New(t.TempDir())
	now := time.Date(2026, 7, 31, 14, 30, 0, 0, time.UTC)

	if err := l.AppendNote(now, "type2 recommendation: check the logs"); err != nil {
		t.Fatalf("AppendNote: %v", err)
	}
	content, err := l.ReadToday(now)
	if err != nil {
		t.Fatalf("ReadToday: %v", err)
	}
	if !strings.Contains(content, "type2 recommendation: check the logs") {
		t.Fatalf("expected note in content, got %q", content)
	}
	if !strings.Contains(content, "14:30") {
		t.Fatalf("expected timestamp in note, got %q", content)
	}
}

func TestReadTodayMissingFileReturnsEmpty(t *testing.T) {
	l := New(t.TempDir())
	content, err := l.ReadToday(time.Now())
	if err != nil {
		t.Fatalf("ReadToday: %v", err)
	}
	if content != "" {
		t.Fatalf("expected empty content for missing file, got %q", content)
	}
}

func TestRenderHTMLConvertsMarkdown(t *testing.T) {
	html, err := RenderHTML("# Title\n\n- one\n- two\n")
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if !strings.Contains(html, "<h1") || !strings.Contains(html, "<li>") {
		t.Fatalf("expected rendered HTML structure, got %q", html)
	}
}

func TestListDaysReturnsStems(t *testing.T) {
	l := New(t.TempDir())
	d1 := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	if err := l.EnsureToday(d1); err != nil {
		t.Fatalf("EnsureToday d1: %v", err)
	}
	if err := l.EnsureToday(d2); err != nil {
		t.Fatalf("EnsureToday d2: %v", err)
	}
	days, err := l.ListDays()
	if err != nil {
		t.Fatalf("ListDays: %v", err)
	}
	if len(days) != 2 || days[0] != "2026-07-29" || days[1] != "2026-07-30" {
		t.Fatalf("unexpected days: %v", days)
	}
}
