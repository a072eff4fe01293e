package sensors

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pierce403/takobot/internal/eventbus"
)

func TestHealthSensorAllPassingReportsSummary(t *testing.T) {
	hs := NewHealthSensor(time.Minute, []Check{
		{Name: "always_ok", Run: func(context.Context) (string, bool) { return "", true }},
	})
	events, err := hs.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 1 || events[0].Type != "health.check.summary" {
		t.Fatalf("expected a single summary event, got %+v", events)
	}
}

func TestHealthSensorFailingCheckEmitsWarnEvent(t *testing.T) {
	hs := NewHealthSensor(time.Minute, []Check{
		{Name: "disk", Run: func(context.Context) (string, bool) { return "disk full", false }},
	})
	events, err := hs.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 1 || events[0].Type != "health.check.issue.disk" || events[0].Severity != eventbus.SeverityWarn {
		t.Fatalf("expected one warn issue event, got %+v", events)
	}
}

func TestHealthSensorPanickingCheckIsCaught(t *testing.T) {
	hs := NewHealthSensor(time.Minute, []Check{
		{Name: "boom", Run: func(context.Context) (string, bool) { panic("kaboom") }},
	})
	events, err := hs.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll should never return an error: %v", err)
	}
	if len(events) != 1 || events[0].Type != "health.check.issue.boom" {
		t.Fatalf("expected the panic to be converted into a warn event, got %+v", events)
	}
}

func TestStateDirWritableCheckDetectsMissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	check := StateDirWritableCheck(missing)
	if _, healthy := check.Run(context.Background()); healthy {
		t.Fatalf("expected an unwritable (nonexistent) directory to fail the check")
	}
}

func TestStateDirWritableCheckPassesOnRealDir(t *testing.T) {
	check := StateDirWritableCheck(t.TempDir())
	if _, healthy := check.Run(context.Background()); !healthy {
		t.Fatalf("expected a writable temp dir to pass the check")
	}
}

func TestInferenceReadyCheck(t *testing.T) {
	notReady := InferenceReadyCheck(func() bool { return false })
	if _, healthy := notReady.Run(context.Background()); healthy {
		t.Fatalf("expected not-ready to fail the check")
	}
	ready := InferenceReadyCheck(func() bool { return true })
	if _, healthy := ready.Run(context.Background()); !healthy {
		t.Fatalf("expected ready to pass the check")
	}
}
