// Package identity holds the operator-imprint record that gates
// whether boot goes to ONBOARDING_IDENTITY or straight to PAIRED
// (the onboarding flow assumes this record exists without naming it).
// Supplemented from the original Python implementation's identity.py
// This is distinct from keys.json, which is
// wallet material, not operator profile data.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Imprint is the record of the single operator bound to this
// workspace. An empty/missing Imprint means no operator has onboarded
// yet.
type Imprint struct {
	Name        string    `json:"name"`
	AgentName   string    `json:"agent_name"` // operator-chosen name for the agent itself
	XMTPHandle  string    `json:"xmtp_handle,omitempty"`
	ImprintedAt time.Time `json:"imprinted_at"`
}

// Exists reports whether an operator has completed onboarding.
func (i Imprint) Exists() bool {
	return i.Name != "" && !i.ImprintedAt.IsZero()
}

// Load reads the imprint from path. A missing file returns a zero
// Imprint (Exists() == false) with no error: this is the common case
// for a brand-new workspace.
func Load(path string) (Imprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Imprint{}, nil
		}
		return Imprint{}, fmt.Errorf("identity: read %s: %w", path, err)
	}
	var imp Imprint
	if err := json.Unmarshal(data, &imp); err != nil {
		return Imprint{}, fmt.Errorf("identity: parse %s: %w", path, err)
	}
	return imp, nil
}

// Save persists the imprint atomically.
func Save(path string, imp Imprint) error {
	data, err := json.MarshalIndent(imp, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("identity: create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("identity: write: %w", err)
	}
	return os.Rename(tmp, path)
}
