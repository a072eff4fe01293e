// Package inference implements the provider-fallback bridge to
// subprocess-mediated LLM CLIs: discovery of installed providers and
// their credentials, synchronous execution with a wall-clock timeout,
// fallback across ready providers, and streaming with a silent-thinking
// watchdog. No provider is ever called over HTTP directly — the
// Non-goals rule out in-process LLM calls, so every provider is a
// child process the bridge spawns and kills, adapted from
// internal/mcp/stdio.go subprocess lifecycle and
// internal/tools/shell_exec.go's timeout/output-truncation idiom.
package inference

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// AuthKind classifies how a provider authenticates.
type AuthKind string

const (
	AuthAPIKey         AuthKind = "api_key"
	AuthOAuth          AuthKind = "oauth"
	AuthLocalModel     AuthKind = "local_model"
	AuthOAuthOrProfile AuthKind = "oauth_or_profile"
	AuthNone           AuthKind = "none"
)

// Name identifies one of the five supported provider CLIs.
type Name string

const (
	Codex  Name = "codex"
	Claude Name = "claude"
	Gemini Name = "gemini"
	Pi     Name = "pi"
	Ollama Name = "ollama"
)

// PriorityOrder is the fixed discovery and fallback order. The
// config's InferenceConfig.ProviderOrder is validated against these
// names but does not change this order.
var PriorityOrder = []Name{Codex, Claude, Gemini, Pi, Ollama}

// ProviderStatus is a point-in-time snapshot of one provider's
// reachability, matching the ProviderStatus record exactly.
type ProviderStatus struct {
	Name         Name     `json:"name"`
	CLIPath      string   `json:"cli_path,omitempty"`
	CLIInstalled bool     `json:"cli_installed"`
	AuthKind     AuthKind `json:"auth_kind"`
	KeyEnvVar    string   `json:"key_env_var,omitempty"`
	KeySource    string   `json:"key_source,omitempty"`
	KeyPresent   bool     `json:"key_present"`
	Ready        bool     `json:"ready"`
	Note         string   `json:"note,omitempty"`
}

// credentialEnvVars lists, per provider and in priority order, the
// environment variables the discovery pass checks first. Matches
// the documented env var table.
var credentialEnvVars = map[Name][]string{
	Codex:  {"OPENAI_API_KEY"},
	Claude: {"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"},
	Gemini: {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	Pi:     {"PI_API_KEY"},
	Ollama: {"OLLAMA_HOST"},
}

// credentialFiles lists, per provider, well-known credential file
// paths relative to the user's home directory, checked after
// environment variables and before the workspace settings file.
var credentialFiles = map[Name][]string{
	Codex:  {".codex/auth.json", ".config/openai/auth.json"},
	Claude: {".claude/.credentials.json", ".config/claude/credentials.json"},
	Gemini: {".gemini/credentials.json"},
	Pi:     {".pi/credentials.json", ".config/pi/auth.json"},
	Ollama: {},
}

// authKindFor returns each provider's fixed auth kind.
func authKindFor(name Name) AuthKind {
	switch name {
	case Codex, Claude, Gemini:
		return AuthOAuthOrProfile
	case Pi:
		return AuthOAuth
	case Ollama:
		return AuthLocalModel
	default:
		return AuthNone
	}
}

// cliExecutableName is the binary name probed on PATH for each
// provider; identical to the provider name for all five.
func cliExecutableName(name Name) string { return string(name) }

// lookPath finds an executable on PATH, plus — for "pi" only — a
// workspace-local node-runtime fallback.
func lookPath(logger *slog.Logger, name Name, workspaceRoot string) (string, bool) {
	if path, err := exec.LookPath(cliExecutableName(name)); err == nil {
		return path, true
	}
	if name == Pi {
		candidate := filepath.Join(workspaceRoot, "node_modules", ".bin", "pi")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	if logger != nil {
		logger.Debug("inference: provider CLI not found on PATH", "provider", name)
	}
	return "", false
}
