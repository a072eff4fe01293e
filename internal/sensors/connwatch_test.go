package sensors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConnWatchSensorSeedsFirstRunSilentlyWhenHealthy(t *testing.T) {
	cw := NewConnWatchSensor(time.Minute, time.Second, []ServiceState{
		{Name: "broker", Probe: func(context.Context) error { return nil }},
	})
	events, err := cw.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events on a healthy first poll, got %+v", events)
	}
}

func TestConnWatchSensorReportsDownAtStartup(t *testing.T) {
	cw := NewConnWatchSensor(time.Minute, time.Second, []ServiceState{
		{Name: "broker", Probe: func(context.Context) error { return errors.New("refused") }},
	})
	events, err := cw.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 1 || events[0].Type != "runtime.crash.broker" {
		t.Fatalf("expected a startup crash event, got %+v", events)
	}
}

func TestConnWatchSensorReportsTransitions(t *testing.T) {
	healthy := true
	cw := NewConnWatchSensor(time.Minute, time.Second, []ServiceState{
		{Name: "broker", Probe: func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("down")
		}},
	})

	// First poll seeds silently.
	if events, _ := cw.Poll(context.Background()); len(events) != 0 {
		t.Fatalf("expected silent seed, got %+v", events)
	}

	healthy = false
	events, err := cw.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 1 || events[0].Type != "runtime.crash.broker" {
		t.Fatalf("expected a crash event on down transition, got %+v", events)
	}

	healthy = true
	events, err = cw.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 1 || events[0].Type != "runtime.reconnect.broker" {
		t.Fatalf("expected a reconnect event on recovery, got %+v", events)
	}

	// Steady-state healthy poll reports nothing further.
	events, err = cw.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events once steady, got %+v", events)
	}
}

func TestConnWatchSensorName(t *testing.T) {
	cw := NewConnWatchSensor(time.Minute, 0, nil)
	if cw.Name() != "connwatch" {
		t.Fatalf("unexpected name %q", cw.Name())
	}
	if cw.PollInterval() != time.Minute {
		t.Fatalf("unexpected interval %v", cw.PollInterval())
	}
}
