package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pierce403/takobot/internal/secretmask"
)

// maxCapturedOutput bounds how much stdout/stderr a single provider
// call retains in memory, matching the shell-exec
// truncation idiom so a runaway CLI can't exhaust the runtime.
const maxCapturedOutput = 256 * 1024

// Result is one provider invocation's outcome.
type Result struct {
	Provider Name
	Text     string
	Duration time.Duration
}

// RunOptions carries everything Run needs to build one child process.
type RunOptions struct {
	Runtime       Runtime
	WorkspaceRoot string
	TmpDir        string
	OllamaHost    string
	OllamaModel   string
}

// Run spawns the given provider's CLI with its provider flags and the
// prompt as a single argument, waits up to timeout, and returns its captured stdout. The
// child's environment is the parent's environment plus the provider's
// discovered credential (if any) and a workspace-scoped TMPDIR so
// nothing escapes into shared system temp space.
func Run(ctx context.Context, opts RunOptions, provider Name, prompt string, timeout time.Duration) (Result, error) {
	status, ok := opts.Runtime.Providers[provider]
	if !ok || !status.Ready {
		return Result{}, fmt.Errorf("inference: provider %q is not ready", provider)
	}

	var outputFile string
	if provider == Codex {
		f, err := os.CreateTemp(opts.TmpDir, "codex-last-message-*.txt")
		if err != nil {
			return Result{}, fmt.Errorf("inference: create codex output file: %w", err)
		}
		outputFile = f.Name()
		_ = f.Close()
		defer os.Remove(outputFile)
	}

	args, err := buildArgs(provider, status.CLIPath, prompt, false, outputFile, opts.OllamaModel)
	if err != nil {
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, status.CLIPath, args...)
	cmd.Env = childEnv(opts, provider, status)
	cmd.Dir = opts.WorkspaceRoot
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &boundedWriter{buf: &stdout, limit: maxCapturedOutput}
	cmd.Stderr = &boundedWriter{buf: &stderr, limit: maxCapturedOutput}

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() != nil {
		killProcessGroup(cmd)
		return Result{Provider: provider, Duration: elapsed}, fmt.Errorf("inference: %s timed out after %s", provider, timeout)
	}
	if runErr != nil {
		summary := summarizeFailure(runErr, stderr.String())
		return Result{Provider: provider, Duration: elapsed}, fmt.Errorf("inference: %s failed: %s", provider, secretmask.MaskAllInText(summary))
	}

	text := strings.TrimSpace(stdout.String())
	if outputFile != "" {
		if data, readErr := os.ReadFile(outputFile); readErr == nil && len(data) > 0 {
			text = strings.TrimSpace(string(data))
		}
	}
	return Result{Provider: provider, Text: text, Duration: elapsed}, nil
}

// RunWithFallback attempts Runtime.FallbackOrder() in sequence,
// returning the first success. If every provider fails, the returned
// error aggregates a one-line summary per provider attempted.
func RunWithFallback(ctx context.Context, opts RunOptions, prompt string, timeout time.Duration) (Result, error) {
	order := opts.Runtime.FallbackOrder()
	if len(order) == 0 {
		return Result{}, errors.New("inference: no provider is ready")
	}

	var failures []string
	for _, provider := range order {
		res, err := Run(ctx, opts, provider, prompt, timeout)
		if err == nil {
			return res, nil
		}
		failures = append(failures, err.Error())
		if errors.Is(ctx.Err(), context.Canceled) {
			break
		}
	}
	return Result{}, fmt.Errorf("inference: all providers failed: %s", strings.Join(failures, "; "))
}

// childEnv builds the subprocess environment: the parent's
// environment, overridden with the provider's discovered credential
// (so an operator's ambient shell vars never silently win over a
// file- or settings-sourced secret) and a workspace-scoped TMPDIR.
// "pi" additionally gets its workspace-local node_modules/.bin
// prepended to PATH, matching lookPath's discovery fallback.
func childEnv(opts RunOptions, provider Name, status ProviderStatus) []string {
	env := os.Environ()
	if status.KeyEnvVar != "" {
		if secret, ok := opts.Runtime.Secrets[provider]; ok && secret != "" {
			env = setEnv(env, status.KeyEnvVar, secret)
		}
	}
	if provider == Ollama && opts.OllamaHost != "" {
		env = setEnv(env, "OLLAMA_HOST", opts.OllamaHost)
	}
	if opts.TmpDir != "" {
		env = setEnv(env, "TMPDIR", opts.TmpDir)
		env = setEnv(env, "TMP", opts.TmpDir)
		env = setEnv(env, "TEMP", opts.TmpDir)
	}
	if provider == Pi {
		binDir := filepath.Join(opts.WorkspaceRoot, "node_modules", ".bin")
		env = setEnv(env, "PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
	return env
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// summarizeFailure collapses a subprocess failure into a single line:
// the exec error plus the last non-empty line of stderr, since
// provider CLIs often bury the useful message at the end of a
// traceback.
func summarizeFailure(err error, stderr string) string {
	lastLine := ""
	for _, line := range strings.Split(strings.TrimSpace(stderr), "\n") {
		if strings.TrimSpace(line) != "" {
			lastLine = strings.TrimSpace(line)
		}
	}
	if lastLine == "" {
		return err.Error()
	}
	return fmt.Sprintf("%s: %s", err.Error(), lastLine)
}

// boundedWriter truncates after limit bytes instead of growing
// without bound, so a misbehaving provider CLI can't exhaust memory.
type boundedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}
