package inference

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is the on-disk form of a Runtime, persisted at
// state/inference.json with the exact field list
// documents — this is the file `doctor` and the status surface read
// without re-running discovery.
type Snapshot struct {
	UpdatedAt         time.Time               `json:"updated_at"`
	SelectedProvider  Name                    `json:"selected_provider,omitempty"`
	SelectedAuthKind  AuthKind                `json:"selected_auth_kind,omitempty"`
	SelectedKeyEnvVar string                  `json:"selected_key_env_var,omitempty"`
	SelectedKeySource string                  `json:"selected_key_source,omitempty"`
	Providers         map[Name]ProviderStatus `json:"providers"`
}

// ToSnapshot projects a Runtime into its persisted form, stamped with
// now (injected rather than taken internally, since callers may be
// replaying or testing against a fixed clock).
func (rt Runtime) ToSnapshot(now time.Time) Snapshot {
	snap := Snapshot{
		UpdatedAt:        now,
		SelectedProvider: rt.Selected,
		Providers:        rt.Providers,
	}
	if rt.Selected != "" {
		if s, ok := rt.Providers[rt.Selected]; ok {
			snap.SelectedAuthKind = s.AuthKind
			snap.SelectedKeyEnvVar = s.KeyEnvVar
			snap.SelectedKeySource = s.KeySource
		}
	}
	return snap
}

// PersistSnapshot atomically writes snap to path.
func PersistSnapshot(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("inference: marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("inference: create state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("inference: write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadSnapshot reads a persisted Snapshot, returning a zero Snapshot
// if the file does not exist yet (e.g. before the first discovery).
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("inference: read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("inference: parse snapshot: %w", err)
	}
	return snap, nil
}
