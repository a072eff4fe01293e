package lifestage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StageState is the small piece of operator-mutable state that rides
// alongside the (otherwise immutable) Policy table: the current stage
// name and the mission statement, persisted to state/stage.json.
// Supplemented from the original Python implementation's mission.py
// the CLI surface lists "mission
// show|set|add|clear" but never defines a backing store.
type StageState struct {
	Stage     Stage     `json:"stage"`
	Mission   string    `json:"mission"`
	ChangedAt time.Time `json:"changed_at"`
	Reason    string    `json:"reason,omitempty"`
}

// LoadState reads persisted stage state, defaulting to Hatchling with
// no mission if the file is missing or unreadable.
func LoadState(path string) StageState {
	data, err := os.ReadFile(path)
	if err != nil {
		return StageState{Stage: Hatchling}
	}
	var s StageState
	if err := json.Unmarshal(data, &s); err != nil {
		return StageState{Stage: Hatchling}
	}
	if _, ok := For(s.Stage); !ok {
		s.Stage = Hatchling
	}
	return s
}

// Save persists stage state atomically.
func Save(path string, s StageState) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("lifestage: marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("lifestage: create state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("lifestage: write state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Mission rendering limit for MissionExcerpt, used by the `mission`
// command's show output. Type2's prompt assembly does not apply it and
// includes the mission untruncated.
const maxMissionChars = 400

// MissionExcerpt truncates a mission string to maxMissionChars bytes,
// with a trailing marker if truncated.
func MissionExcerpt(mission string) string {
	if len(mission) <= maxMissionChars {
		return mission
	}
	return mission[:maxMissionChars] + "…"
}
