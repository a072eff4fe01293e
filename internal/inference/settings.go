package inference

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings is the workspace-scoped operator preferences and secret
// store, persisted at state/inference-settings.json with user-only
// permissions.
type Settings struct {
	PreferredProvider string            `json:"preferred_provider"`
	OllamaModel       string            `json:"ollama_model,omitempty"`
	OllamaHost        string            `json:"ollama_host,omitempty"`
	APIKeys           map[string]string `json:"api_keys,omitempty"` // env var name -> secret
}

// LoadSettings reads the settings file, defaulting to an empty
// Settings{PreferredProvider: "auto"} if it does not exist yet.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{PreferredProvider: "auto", APIKeys: map[string]string{}}, nil
		}
		return Settings{}, fmt.Errorf("inference: read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("inference: parse settings: %w", err)
	}
	if s.APIKeys == nil {
		s.APIKeys = map[string]string{}
	}
	if s.PreferredProvider == "" {
		s.PreferredProvider = "auto"
	}
	return s, nil
}

// Save persists settings with 0600 permissions — this file holds raw
// API keys, never group- or world-readable.
func Save(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("inference: marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("inference: create state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("inference: write settings: %w", err)
	}
	return os.Rename(tmp, path)
}

// SetAPIKey records an operator-set key for envVar and persists.
func (s *Settings) SetAPIKey(envVar, value string) {
	if s.APIKeys == nil {
		s.APIKeys = map[string]string{}
	}
	s.APIKeys[envVar] = value
}
