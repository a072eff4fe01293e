package eventbus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Log is the append-only JSONL backing store for every published
// event. It is never rewritten in place: Append always seeks to the
// end and writes one JSON object per line, flushing before returning
// so a crash immediately after Append cannot lose an acknowledged
// write.
type Log struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenLog opens (creating if necessary) the JSONL file at path for
// appending.
func OpenLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("eventbus: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("eventbus: open log %s: %w", path, err)
	}
	return &Log{path: path, f: f}, nil
}

// Append writes e as one JSON line and flushes to disk.
func (l *Log) Append(e Event) error {
	if l == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event %d: %w", e.ID, err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(data); err != nil {
		return fmt.Errorf("eventbus: write event %d: %w", e.ID, err)
	}
	return l.f.Sync()
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}

// LoadNextID scans an existing JSONL log for the highest event id seen
// and returns one greater, so a fresh Bus continues the same monotonic
// sequence across restarts. A missing file, an empty file, or a file
// whose every line is malformed all return 1 (the next id is 1). A
// trailing partial line (a crash mid-write) is tolerated and ignored.
func LoadNextID(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("eventbus: open log %s: %w", path, err)
	}
	defer f.Close()

	var maxID int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // tolerate a truncated or corrupt trailing line
		}
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	return maxID + 1, nil
}
