package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pierce403/takobot/internal/secretmask"
)

// EventKind classifies one callback invocation from Stream /
// StreamWithFallback, matching the on_event contract.
type EventKind string

const (
	EventProvider EventKind = "provider" // which provider is now active
	EventTask     EventKind = "task"     // a named sub-step started (e.g. "thinking")
	EventStatus   EventKind = "status"   // watchdog heartbeat, no new text
	EventDelta    EventKind = "delta"    // incremental text
)

// StreamEvent is one item delivered to an OnEvent callback.
type StreamEvent struct {
	Kind     EventKind
	Provider Name
	Text     string
}

// OnEvent receives stream events. Status events come from a watchdog
// goroutine while deltas come from the streaming goroutine, so the
// callback can be invoked concurrently with itself and must be safe
// for concurrent use.
type OnEvent func(StreamEvent)

// watchdogInterval is how often a status heartbeat fires while a
// provider call is in flight. Native streaming stops forwarding these
// once the first delta has arrived; replayed providers get them until
// the synchronous run returns.
const watchdogInterval = 4 * time.Second

// streamingCapable providers emit structured JSON events the bridge
// can parse incrementally. The rest are run synchronously and their
// final text is replayed as simulated deltas.
func streamingCapable(name Name) bool {
	return name == Codex || name == Gemini
}

// StreamWithFallback attempts Runtime.FallbackOrder() in sequence,
// streaming from the first provider that starts successfully. A
// provider that fails before producing any output falls through to
// the next; a provider that fails mid-stream does not retry, since
// partial output has already reached the caller.
func StreamWithFallback(ctx context.Context, opts RunOptions, prompt string, timeout time.Duration, onEvent OnEvent) (Result, error) {
	order := opts.Runtime.FallbackOrder()
	if len(order) == 0 {
		return Result{}, errors.New("inference: no provider is ready")
	}

	var failures []string
	for _, provider := range order {
		res, started, err := Stream(ctx, opts, provider, prompt, timeout, onEvent)
		if err == nil {
			return res, nil
		}
		failures = append(failures, err.Error())
		if started {
			return Result{}, fmt.Errorf("inference: %s failed mid-stream: %w", provider, err)
		}
	}
	return Result{}, fmt.Errorf("inference: all providers failed: %s", strings.Join(failures, "; "))
}

// Stream runs one provider with incremental output delivered via
// onEvent. The bool return reports whether any output reached the
// caller before failure, so StreamWithFallback knows whether falling
// back further would duplicate partial output.
func Stream(ctx context.Context, opts RunOptions, provider Name, prompt string, timeout time.Duration, onEvent OnEvent) (Result, bool, error) {
	if onEvent == nil {
		onEvent = func(StreamEvent) {}
	}
	onEvent(StreamEvent{Kind: EventProvider, Provider: provider})

	if !streamingCapable(provider) {
		return streamByReplay(ctx, opts, provider, prompt, timeout, onEvent)
	}
	return streamNative(ctx, opts, provider, prompt, timeout, onEvent)
}

// streamByReplay runs a non-streaming-capable provider synchronously
// (with a watchdog heartbeat ticking throughout) and replays its
// final text as a sequence of simulated deltas, so callers built
// around incremental output work uniformly across all five providers.
func streamByReplay(ctx context.Context, opts RunOptions, provider Name, prompt string, timeout time.Duration, onEvent OnEvent) (Result, bool, error) {
	onEvent(StreamEvent{Kind: EventTask, Provider: provider, Text: "thinking"})

	done := make(chan struct{})
	defer close(done)
	go watchdog(done, provider, onEvent)

	res, err := Run(ctx, opts, provider, prompt, timeout)
	if err != nil {
		return Result{}, false, err
	}

	for _, chunk := range chunkText(res.Text, 48) {
		onEvent(StreamEvent{Kind: EventDelta, Provider: provider, Text: chunk})
	}
	return res, true, nil
}

func watchdog(done <-chan struct{}, provider Name, onEvent OnEvent) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			onEvent(StreamEvent{Kind: EventStatus, Provider: provider})
		}
	}
}

func chunkText(text string, size int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// streamNative spawns a streaming-capable provider and parses its
// JSON event stream line by line, forwarding deltas as they arrive.
func streamNative(ctx context.Context, opts RunOptions, provider Name, prompt string, timeout time.Duration, onEvent OnEvent) (Result, bool, error) {
	status, ok := opts.Runtime.Providers[provider]
	if !ok || !status.Ready {
		return Result{}, false, fmt.Errorf("inference: provider %q is not ready", provider)
	}

	args, err := buildArgs(provider, status.CLIPath, prompt, true, "", opts.OllamaModel)
	if err != nil {
		return Result{}, false, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, status.CLIPath, args...)
	cmd.Env = childEnv(opts, provider, status)
	cmd.Dir = opts.WorkspaceRoot
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, false, fmt.Errorf("inference: stdout pipe: %w", err)
	}
	var stderrBuf strings.Builder
	cmd.Stderr = &stderrWriter{sb: &stderrBuf}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, false, fmt.Errorf("inference: start %s: %s", provider, secretmask.MaskAllInText(err.Error()))
	}

	var gotOutput atomic.Bool
	done := make(chan struct{})
	go func() {
		watchdog(done, provider, func(ev StreamEvent) {
			if !gotOutput.Load() || ev.Kind != EventStatus {
				onEvent(ev)
			}
		})
	}()

	var textBuf strings.Builder
	var mu sync.Mutex
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		delta := parseStreamLine(provider, line)
		if delta == "" {
			continue
		}
		gotOutput.Store(true)
		mu.Lock()
		textBuf.WriteString(delta)
		mu.Unlock()
		onEvent(StreamEvent{Kind: EventDelta, Provider: provider, Text: delta})
	}
	scanErr := scanner.Err()
	close(done)

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if runCtx.Err() != nil {
		killProcessGroup(cmd)
		return Result{Provider: provider, Duration: elapsed}, gotOutput.Load(), fmt.Errorf("inference: %s timed out after %s", provider, timeout)
	}
	if waitErr != nil {
		summary := summarizeFailure(waitErr, stderrBuf.String())
		return Result{Provider: provider, Duration: elapsed}, gotOutput.Load(), fmt.Errorf("inference: %s failed: %s", provider, secretmask.MaskAllInText(summary))
	}
	if scanErr != nil && scanErr != io.EOF {
		return Result{Provider: provider, Duration: elapsed}, gotOutput.Load(), fmt.Errorf("inference: %s stream read: %w", provider, scanErr)
	}

	return Result{Provider: provider, Text: strings.TrimSpace(textBuf.String()), Duration: elapsed}, gotOutput.Load(), nil
}

// parseStreamLine extracts incremental text from one line of a
// provider's JSON event stream, per the documented shapes.
// Unrecognized or non-content lines yield an empty delta and are
// skipped by the caller.
func parseStreamLine(provider Name, line string) string {
	switch provider {
	case Codex:
		var ev struct {
			Type string `json:"type"`
			Item struct {
				Type  string `json:"type"`
				Text  string `json:"text"`
				Delta string `json:"delta"`
			} `json:"item"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return ""
		}
		switch {
		case ev.Type == "item.delta":
			return ev.Item.Delta
		case ev.Type == "item.completed" && ev.Item.Type == "agent_message":
			return ev.Item.Text
		default:
			return ""
		}

	case Gemini:
		var ev struct {
			Type    string `json:"type"`
			Role    string `json:"role"`
			Content string `json:"content"`
			Delta   string `json:"delta"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return ""
		}
		if ev.Type != "message" || ev.Role == "user" {
			return ""
		}
		if ev.Delta != "" {
			return ev.Delta
		}
		return ev.Content

	default:
		return ""
	}
}

// stderrWriter caps captured stderr the same way boundedWriter does
// for Run, without pulling in bytes.Buffer semantics we don't need
// here since stderr is only read for a failure summary.
type stderrWriter struct {
	sb  *strings.Builder
	len int
}

func (w *stderrWriter) Write(p []byte) (int, error) {
	n := len(p)
	if w.len >= maxCapturedOutput {
		return n, nil
	}
	remaining := maxCapturedOutput - w.len
	if len(p) > remaining {
		p = p[:remaining]
	}
	w.sb.Write(p)
	w.len += len(p)
	return n, nil
}
