// Package tasks implements the minimal local task list backing the
// `task`/`tasks`/`done` commands in the CLI surface. Full
// productivity-task CRUD (recurring tasks, projects, reminders) is the
// external collaborator this repo scopes out; this package is the
// narrow, fully-specified slice the core owns directly: a flat list of
// titled items with a done flag, persisted as one JSON file.
package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Task is one to-do item.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
}

// Done reports whether the task is complete.
func (t Task) Done() bool { return t.DoneAt != nil }

// Store is a JSON-file-backed task list.
type Store struct {
	path  string
	tasks []Task
}

// Load reads the task list from path. A missing file starts empty.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("tasks: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.tasks); err != nil {
		return nil, fmt.Errorf("tasks: parse %s: %w", path, err)
	}
	return s, nil
}

// Add creates a new open task and persists the list.
func (s *Store) Add(title string, now time.Time) (Task, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Task{}, fmt.Errorf("tasks: generate id: %w", err)
	}
	t := Task{ID: id.String(), Title: title, CreatedAt: now}
	s.tasks = append(s.tasks, t)
	return t, s.persist()
}

// Complete marks a task done by id. Returns an error if no task
// matches (the done command reports this to the operator as a reply,
// never a crash).
func (s *Store) Complete(id string, now time.Time) error {
	for i := range s.tasks {
		if s.tasks[i].ID == id || shortMatch(s.tasks[i].ID, id) {
			if s.tasks[i].DoneAt == nil {
				s.tasks[i].DoneAt = &now
			}
			return s.persist()
		}
	}
	return fmt.Errorf("tasks: no task matches id %q", id)
}

// shortMatch allows matching on a short id prefix, the form an
// operator would actually type.
func shortMatch(full, given string) bool {
	if len(given) < 4 {
		return false
	}
	return len(full) >= len(given) && full[:len(given)] == given
}

// List returns tasks, optionally filtered to only-open.
func (s *Store) List(openOnly bool) []Task {
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if openOnly && t.Done() {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// OpenCount returns the number of tasks not yet done, for the
// open-loops computation.
func (s *Store) OpenCount() int {
	n := 0
	for _, t := range s.tasks {
		if !t.Done() {
			n++
		}
	}
	return n
}

func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("tasks: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("tasks: create dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("tasks: write: %w", err)
	}
	return os.Rename(tmp, s.path)
}
