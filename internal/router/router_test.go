package router

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSanitizeStripsAnsiAndControlChars(t *testing.T) {
	in := "\x1b[31mhello\x1b[0m\tworld\x07"
	got := Sanitize(in)
	want := "hello world"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeCollapsesWhitespace(t *testing.T) {
	got := Sanitize("  a   b\n\nc  ")
	want := "a b c"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestClassifySlashPrefix(t *testing.T) {
	c := Classify("/status", nil)
	if c.Kind != KindCommand || c.CommandName != "status" {
		t.Fatalf("unexpected classification %+v", c)
	}
	if len(c.RulesMatched) == 0 {
		t.Fatalf("expected at least one matched rule")
	}
}

func TestClassifyTakobotPrefix(t *testing.T) {
	c := Classify("takobot task buy milk", nil)
	if c.Kind != KindCommand || c.CommandName != "task" || c.Args != "buy milk" {
		t.Fatalf("unexpected classification %+v", c)
	}
}

func TestClassifyWhitelistBareWord(t *testing.T) {
	c := Classify("status", map[string]bool{"status": true})
	if c.Kind != KindCommand || c.CommandName != "status" {
		t.Fatalf("unexpected classification %+v", c)
	}
}

func TestClassifyFallsBackToChat(t *testing.T) {
	c := Classify("how is the weather today", map[string]bool{"status": true})
	if c.Kind != KindChat {
		t.Fatalf("expected chat, got %+v", c)
	}
}

func TestDispatcherUnknownCommandIsFriendly(t *testing.T) {
	d := NewDispatcher(nil)
	reply, err := d.Dispatch(context.Background(), "nope", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(reply, "unknown command") {
		t.Fatalf("expected friendly unknown-command reply, got %q", reply)
	}
}

func TestDispatcherRegisterAndDispatch(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register("echo", func(ctx context.Context, args string) (string, error) {
		return "echo:" + args, nil
	})
	reply, err := d.Dispatch(context.Background(), "echo", "hi")
	if err != nil || reply != "echo:hi" {
		t.Fatalf("got reply=%q err=%v", reply, err)
	}
}

func TestRouterRoutesCommand(t *testing.T) {
	d := NewDispatcher(map[string]Handler{
		"status": func(ctx context.Context, args string) (string, error) { return "ok", nil },
	})
	chatCalled := false
	r := New(nil, d, nil, func(ctx context.Context, text string) (string, error) {
		chatCalled = true
		return "chat reply", nil
	}, nil)
	reply, c, err := r.Route(context.Background(), "running", "/status")
	if err != nil || reply != "ok" {
		t.Fatalf("got reply=%q err=%v", reply, err)
	}
	if c == nil || c.Kind != KindCommand {
		t.Fatalf("expected command classification, got %+v", c)
	}
	if chatCalled {
		t.Fatalf("chat should not have been invoked")
	}
}

func TestRouterRoutesChat(t *testing.T) {
	d := NewDispatcher(nil)
	r := New(nil, d, nil, func(ctx context.Context, text string) (string, error) {
		return "chat:" + text, nil
	}, nil)
	reply, c, err := r.Route(context.Background(), "running", "how are you")
	if err != nil || reply != "chat:how are you" {
		t.Fatalf("got reply=%q err=%v", reply, err)
	}
	if c == nil || c.Kind != KindChat {
		t.Fatalf("expected chat classification, got %+v", c)
	}
}

func TestRouterActiveFlowInterceptsBeforeClassification(t *testing.T) {
	d := NewDispatcher(map[string]Handler{
		"status": func(ctx context.Context, args string) (string, error) { return "ok", nil },
	})
	r := New(nil, d, nil, func(ctx context.Context, text string) (string, error) {
		return "chat reply", nil
	}, nil)

	calls := 0
	r.SetFlow(flowFunc(func(ctx context.Context, text string) (string, bool, error) {
		calls++
		return "flow step " + text, calls >= 2, nil
	}))

	reply, c, err := r.Route(context.Background(), "running", "/status")
	if err != nil || reply != "flow step /status" {
		t.Fatalf("got reply=%q err=%v", reply, err)
	}
	if c != nil {
		t.Fatalf("expected no classification while a flow is active, got %+v", c)
	}
	if !r.HasActiveFlow() {
		t.Fatalf("flow should still be active after one step")
	}

	reply, _, err = r.Route(context.Background(), "running", "done")
	if err != nil || reply != "flow step done" {
		t.Fatalf("got reply=%q err=%v", reply, err)
	}
	if r.HasActiveFlow() {
		t.Fatalf("flow should have cleared itself after reporting done")
	}
}

func TestRouterOnboardingInterceptsBeforeClassification(t *testing.T) {
	d := NewDispatcher(nil)
	chatCalled := false
	onboarding := func(state, text string) (string, bool, error) {
		if state != "onboarding_identity" {
			return "", false, nil
		}
		return "welcome, " + text, true, nil
	}
	r := New(nil, d, nil, func(ctx context.Context, text string) (string, error) {
		chatCalled = true
		return "chat reply", nil
	}, onboarding)

	reply, c, err := r.Route(context.Background(), "onboarding_identity", "Ada")
	if err != nil || reply != "welcome, Ada" {
		t.Fatalf("got reply=%q err=%v", reply, err)
	}
	if c != nil {
		t.Fatalf("expected no classification during onboarding handling, got %+v", c)
	}
	if chatCalled {
		t.Fatalf("chat should not run while onboarding handles the turn")
	}
}

func TestRouterFallsThroughWhenOnboardingDoesNotHandleState(t *testing.T) {
	d := NewDispatcher(nil)
	onboarding := func(state, text string) (string, bool, error) {
		return "", false, nil
	}
	r := New(nil, d, nil, func(ctx context.Context, text string) (string, error) {
		return "chat:" + text, nil
	}, onboarding)

	reply, c, err := r.Route(context.Background(), "running", "hello there")
	if err != nil || reply != "chat:hello there" {
		t.Fatalf("got reply=%q err=%v", reply, err)
	}
	if c == nil || c.Kind != KindChat {
		t.Fatalf("expected chat classification, got %+v", c)
	}
}

func TestRouterPropagatesChatError(t *testing.T) {
	d := NewDispatcher(nil)
	wantErr := errors.New("provider unavailable")
	r := New(nil, d, nil, func(ctx context.Context, text string) (string, error) {
		return "", wantErr
	}, nil)
	_, _, err := r.Route(context.Background(), "running", "hello")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

type flowFunc func(ctx context.Context, text string) (string, bool, error)

func (f flowFunc) Handle(ctx context.Context, text string) (string, bool, error) {
	return f(ctx, text)
}
