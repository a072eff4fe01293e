package sensors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newWorldFeedServer(t *testing.T, sightings []Sighting) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, s := range sightings {
			data, _ := json.Marshal(s)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		// keep the connection open briefly so the client has time to read
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWorldWatchSensorReceivesAndDedupesSightings(t *testing.T) {
	ts := newWorldFeedServer(t, []Sighting{
		{Topic: "release", Summary: "v2 shipped", URL: "https://example.invalid/v2"},
		{Topic: "release", Summary: "v2 shipped", URL: "https://example.invalid/v2"}, // duplicate
	})

	seen, err := LoadSeen(t.TempDir() + "/seen.json")
	if err != nil {
		t.Fatalf("LoadSeen: %v", err)
	}
	ws := NewWorldWatchSensor(wsURL(ts.URL), 10*time.Millisecond, seen, nil)
	defer ws.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	var total []string
	for time.Now().Before(deadline) {
		events, err := ws.Poll(ctx)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		for _, e := range events {
			total = append(total, e.Message)
		}
		if len(total) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if len(total) != 1 {
		t.Fatalf("expected exactly one deduped sighting event, got %v", total)
	}
}

func TestWorldWatchSensorEmptyURLNeverDials(t *testing.T) {
	ws := NewWorldWatchSensor("", time.Minute, nil, nil)
	events, err := ws.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events when no URL is configured, got %+v", events)
	}
}

func TestSightingKeyIsStableAndDistinguishesContent(t *testing.T) {
	a := Sighting{Topic: "x", Summary: "y"}
	b := Sighting{Topic: "x", Summary: "y"}
	c := Sighting{Topic: "x", Summary: "z"}
	if sightingKey(a) != sightingKey(b) {
		t.Fatalf("expected identical sightings to hash identically")
	}
	if sightingKey(a) == sightingKey(c) {
		t.Fatalf("expected different sightings to hash differently")
	}
}
