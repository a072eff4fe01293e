// Package router converts operator turns into command calls or chat
// inference calls. The scored-decision idiom here (rules evaluated,
// rules matched, a reasoning string) is repurposed from an LLM
// model-selection router into command-vs-chat classification and
// command-name extraction.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// ansiEscape matches CSI terminal escape sequences (OSC sequences are
// not matched) so pasted
// terminal output never reaches the command dispatcher or the LLM
// verbatim.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// Sanitize strips ANSI escapes and control characters, then collapses
// internal whitespace.
func Sanitize(input string) string {
	stripped := ansiEscape.ReplaceAllString(input, "")
	var b strings.Builder
	for _, r := range stripped {
		if r == '\n' || r == '\t' {
			b.WriteByte(' ')
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Kind is whether a sanitized turn is a command or a chat message.
type Kind string

const (
	KindCommand Kind = "command"
	KindChat    Kind = "chat"
)

// commandPrefixes are the explicit prefixes that always introduce
// as always introducing a command.
var commandPrefixes = []string{"/", "takobot ", "tako "}

// Classification is the scored decision behind a command/chat call,
// mirroring a scored Decision shape (rules evaluated/matched,
// reasoning) so the same audit-trail idiom survives the repurposing
// from model routing to turn routing.
type Classification struct {
	Kind           Kind
	CommandName    string
	Args           string
	RulesEvaluated []string
	RulesMatched   []string
	Confidence     float64
	Reasoning      string
}

// Classify decides whether sanitized text is a command or chat. A
// plain-command whitelist lets bare words like "status" dispatch
// without a prefix, per the local-command whitelist.
func Classify(text string, plainWhitelist map[string]bool) Classification {
	var rulesEvaluated, rulesMatched []string

	for _, p := range commandPrefixes {
		rulesEvaluated = append(rulesEvaluated, "prefix:"+strings.TrimSpace(p))
		if strings.HasPrefix(text, p) {
			rulesMatched = append(rulesMatched, "prefix:"+strings.TrimSpace(p))
			name, args := splitCommand(strings.TrimPrefix(text, p))
			return Classification{
				Kind: KindCommand, CommandName: name, Args: args,
				RulesEvaluated: rulesEvaluated, RulesMatched: rulesMatched,
				Confidence: 1.0,
				Reasoning:  fmt.Sprintf("matched explicit command prefix %q", p),
			}
		}
	}

	first, rest := splitCommand(text)
	rulesEvaluated = append(rulesEvaluated, "whitelist:"+first)
	if plainWhitelist[first] {
		rulesMatched = append(rulesMatched, "whitelist:"+first)
		return Classification{
			Kind: KindCommand, CommandName: first, Args: rest,
			RulesEvaluated: rulesEvaluated, RulesMatched: rulesMatched,
			Confidence: 0.9,
			Reasoning:  fmt.Sprintf("%q matches the local-command whitelist", first),
		}
	}

	return Classification{
		Kind:           KindChat,
		RulesEvaluated: rulesEvaluated,
		Confidence:     1.0,
		Reasoning:      "no command prefix or whitelist match; routed as chat",
	}
}

func splitCommand(s string) (name, args string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

// Handler runs one command, returning the text to show the operator.
type Handler func(ctx context.Context, args string) (string, error)

// Dispatcher is the name→handler map. An unknown command name always
// yields a friendly error value, never a parser crash.
// §4.10's closing sentence.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher builds a Dispatcher over the given handler map.
func NewDispatcher(handlers map[string]Handler) *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]Handler, len(handlers))}
	for k, v := range handlers {
		d.handlers[k] = v
	}
	return d
}

// Register adds or replaces a handler after construction (used for
// commands wired in after the core boots, e.g. installed skills).
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Names returns the currently registered command names.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for n := range d.handlers {
		names = append(names, n)
	}
	return names
}

// Dispatch runs the handler for name, or returns a friendly "unknown
// command" result if none is registered.
func (d *Dispatcher) Dispatch(ctx context.Context, name, args string) (string, error) {
	d.mu.RLock()
	h, ok := d.handlers[name]
	d.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("unknown command %q — try \"help\" for the full list", name), nil
	}
	return h(ctx, args)
}

// Flow is a multi-step prompt sequence (e.g. the morning-outcomes
// review) that claims every subsequent turn until it reports Done.
// An active flow intercepts routing before
// command/chat classification even runs.
type Flow interface {
	Handle(ctx context.Context, text string) (reply string, done bool, err error)
}

// ChatFunc produces a chat reply for non-command turns, normally a
// single internal/inference RunWithFallback call made by the caller.
type ChatFunc func(ctx context.Context, text string) (string, error)

// Gate reports whether the inference gate is open, satisfied by
// *session.Machine.
type Gate interface {
	GateOpen() bool
	ObserveTurn(text string) bool
}

// OnboardingHandler dispatches a turn while the session is in an
// onboarding state.
type OnboardingHandler func(ctx context.Context, text string) (string, error)

// Router ties together flow interception, onboarding dispatch, and
// RUNNING-state command/chat classification into the single Route
// entrypoint described below.
type Router struct {
	logger     *slog.Logger
	dispatcher *Dispatcher
	whitelist  map[string]bool
	chat       ChatFunc

	mu               sync.Mutex
	activeFlow       Flow
	onboardingRouter func(state string, text string) (string, bool, error)
}

// New builds a Router. onboardingRouter returns (reply, handled, err);
// handled=false means the caller's state is not an onboarding state at
// all, in which case Route falls through to command/chat dispatch.
func New(logger *slog.Logger, dispatcher *Dispatcher, whitelist map[string]bool, chat ChatFunc, onboarding func(state, text string) (string, bool, error)) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger, dispatcher: dispatcher, whitelist: whitelist, chat: chat, onboardingRouter: onboarding}
}

// SetFlow installs f as the active multi-step flow, or clears it when
// f is nil.
func (r *Router) SetFlow(f Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeFlow = f
}

// HasActiveFlow reports whether a multi-step flow currently owns
// input routing.
func (r *Router) HasActiveFlow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeFlow != nil
}

// Route implements the four-step input routing: sanitize,
// then flow, then onboarding, then RUNNING command/chat dispatch.
func (r *Router) Route(ctx context.Context, state string, rawText string) (reply string, classification *Classification, err error) {
	text := Sanitize(rawText)

	r.mu.Lock()
	flow := r.activeFlow
	r.mu.Unlock()
	if flow != nil {
		reply, done, ferr := flow.Handle(ctx, text)
		if done {
			r.SetFlow(nil)
		}
		return reply, nil, ferr
	}

	if r.onboardingRouter != nil {
		if reply, handled, oerr := r.onboardingRouter(state, text); handled {
			return reply, nil, oerr
		}
	}

	c := Classify(text, r.whitelist)
	if c.Kind == KindCommand {
		reply, err = r.dispatcher.Dispatch(ctx, c.CommandName, c.Args)
		return reply, &c, err
	}
	reply, err = r.chat(ctx, text)
	return reply, &c, err
}
