package inference

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Runtime is the discovery snapshot: every provider's status plus the
// selected provider and the secret values needed to populate child
// process environments. Mirrors the InferenceRuntime shape.
type Runtime struct {
	Providers map[Name]ProviderStatus
	Selected  Name // empty if none ready
	Secrets   map[Name]string
}

// Discover probes every provider in PriorityOrder and returns a full
// Runtime snapshot: CLI presence, credential evidence, and readiness.
// home is the user's home directory (injected for testability);
// workspaceRoot supports "pi"'s local node-runtime fallback.
func Discover(logger *slog.Logger, home, workspaceRoot string, settings Settings, forceProvider string) Runtime {
	rt := Runtime{
		Providers: make(map[Name]ProviderStatus, len(PriorityOrder)),
		Secrets:   make(map[Name]string, len(PriorityOrder)),
	}

	for _, name := range PriorityOrder {
		status, secret := probeProvider(logger, name, home, workspaceRoot, settings)
		rt.Providers[name] = status
		if secret != "" {
			rt.Secrets[name] = secret
		}
	}

	rt.Selected = selectProvider(rt, settings, forceProvider)
	return rt
}

// probeProvider builds one provider's ProviderStatus plus the secret
// value (if any) to inject into its child process environment.
func probeProvider(logger *slog.Logger, name Name, home, workspaceRoot string, settings Settings) (ProviderStatus, string) {
	path, installed := lookPath(logger, name, workspaceRoot)
	status := ProviderStatus{
		Name:         name,
		CLIPath:      path,
		CLIInstalled: installed,
		AuthKind:     authKindFor(name),
	}

	envVar, source, secret := findCredential(name, home, settings)
	status.KeyEnvVar = envVar
	status.KeySource = source
	status.KeyPresent = secret != "" || source != ""

	if name == Ollama {
		model := settings.OllamaModel
		if model == "" {
			model = os.Getenv("OLLAMA_MODEL")
		}
		if model == "" {
			status.Ready = false
			status.Note = "no ollama model configured"
			return status, secret
		}
		status.KeyPresent = true
		status.KeySource = "model:" + model
		status.Ready = installed
		if !installed {
			status.Note = "ollama CLI not found on PATH"
		}
		return status, secret
	}

	status.Ready = installed && status.KeyPresent
	if !installed {
		status.Note = fmt.Sprintf("%s CLI not found on PATH", name)
	} else if !status.KeyPresent {
		status.Note = "no credentials discovered"
	}
	return status, secret
}

// findCredential searches, in order: matching environment variables,
// well-known credential files in the user's home, then the
// workspace-scoped settings file. Returns the env var name the bridge
// should set on the child process, a provenance string for KeySource,
// and the secret value itself (empty if only file-based evidence was
// found, since a file credential doesn't need to be re-injected as an
// env var).
func findCredential(name Name, home string, settings Settings) (envVar, source, secret string) {
	for _, ev := range credentialEnvVars[name] {
		if v := os.Getenv(ev); v != "" {
			return ev, "env:" + ev, v
		}
	}

	for _, rel := range credentialFiles[name] {
		path := filepath.Join(home, rel)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			field := sniffCredentialField(path)
			src := "file:~/" + rel
			if field != "" {
				src += "#" + field
			}
			return "", src, ""
		}
	}

	if envVars := credentialEnvVars[name]; len(envVars) > 0 {
		primary := envVars[0]
		if v, ok := settings.APIKeys[primary]; ok && v != "" {
			return primary, "workspace-settings:" + primary, v
		}
	}

	return "", "", ""
}

// sniffCredentialField does a best-effort, non-fatal peek into a JSON
// credential file to report which top-level field holds the token,
// for a more useful KeySource provenance string. Never returns an
// error — an unreadable or non-JSON file just yields an empty field.
func sniffCredentialField(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	for _, candidate := range []string{"access_token", "api_key", "token", "key"} {
		if _, ok := m[candidate]; ok {
			return candidate
		}
	}
	return ""
}

// selectProvider picks the active provider: an explicit force
// (TAKO_INFERENCE_PROVIDER) if ready, else the persisted preference
// (if not "auto" and ready), else the first ready provider in
// PriorityOrder.
func selectProvider(rt Runtime, settings Settings, forceProvider string) Name {
	if forceProvider != "" {
		if s, ok := rt.Providers[Name(forceProvider)]; ok && s.Ready {
			return Name(forceProvider)
		}
	}
	if settings.PreferredProvider != "" && settings.PreferredProvider != "auto" {
		if s, ok := rt.Providers[Name(settings.PreferredProvider)]; ok && s.Ready {
			return Name(settings.PreferredProvider)
		}
	}
	for _, name := range PriorityOrder {
		if s, ok := rt.Providers[name]; ok && s.Ready {
			return name
		}
	}
	return ""
}

// Ready reports whether any provider is ready for use.
func (rt Runtime) Ready() bool {
	return rt.Selected != ""
}

// FallbackOrder returns PriorityOrder filtered to ready providers,
// with the selected provider moved to the front — the order
// run_with_fallback attempts providers in.
func (rt Runtime) FallbackOrder() []Name {
	var out []Name
	if rt.Selected != "" {
		out = append(out, rt.Selected)
	}
	for _, name := range PriorityOrder {
		if name == rt.Selected {
			continue
		}
		if s, ok := rt.Providers[name]; ok && s.Ready {
			out = append(out, name)
		}
	}
	return out
}
