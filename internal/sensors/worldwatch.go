package sensors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pierce403/takobot/internal/eventbus"
)

// Sighting is a single item the world-watch feed reported.
type Sighting struct {
	Topic   string `json:"topic"`
	Summary string `json:"summary"`
	URL     string `json:"url,omitempty"`
}

// WorldWatchSensor maintains a long-lived websocket subscription to a
// configured world-feed URL and surfaces new sightings as events,
// deduped against a durable seen set keyed on a content hash. Grounded
// on homeassistant.WSClient: a background read loop with
// reconnect-with-backoff feeding a buffered channel, adapted here from
// Home Assistant's typed state-changed events to an arbitrary
// topic/summary sighting since takobot has no fixed upstream schema.
type WorldWatchSensor struct {
	url      string
	interval time.Duration
	seen     *Seen
	logger   *slog.Logger

	mu      sync.Mutex
	buf     []Sighting
	started bool
	cancel  context.CancelFunc
}

// NewWorldWatchSensor builds a sensor that connects to url on first
// Poll and buffers inbound sightings until drained.
func NewWorldWatchSensor(url string, pollInterval time.Duration, seen *Seen, logger *slog.Logger) *WorldWatchSensor {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorldWatchSensor{url: url, interval: pollInterval, seen: seen, logger: logger}
}

func (w *WorldWatchSensor) Name() string                { return "worldwatch" }
func (w *WorldWatchSensor) PollInterval() time.Duration { return w.interval }

// Poll starts the background subscription on first call (lazily, so a
// sensor built but never activated for the current life stage never
// dials out) and drains whatever sightings have buffered since the
// last poll.
func (w *WorldWatchSensor) Poll(ctx context.Context) ([]eventbus.Event, error) {
	w.ensureStarted(ctx)

	w.mu.Lock()
	pending := w.buf
	w.buf = nil
	w.mu.Unlock()

	now := time.Now()
	var events []eventbus.Event
	for _, s := range pending {
		key := sightingKey(s)
		if w.seen != nil && w.seen.Contains(key) {
			continue
		}
		events = append(events, eventbus.Event{
			Type:     "world.sighting",
			Severity: eventbus.SeverityInfo,
			Source:   "worldwatch",
			Message:  s.Topic + ": " + s.Summary,
			Metadata: map[string]any{"topic": s.Topic, "url": s.URL},
		})
		if w.seen != nil {
			if err := w.seen.Mark(key, now); err != nil {
				w.logger.Warn("worldwatch: mark seen", "error", err)
			}
		}
	}
	return events, nil
}

func sightingKey(s Sighting) string {
	sum := sha256.Sum256([]byte(s.Topic + "|" + s.Summary + "|" + s.URL))
	return hex.EncodeToString(sum[:])
}

func (w *WorldWatchSensor) ensureStarted(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.url == "" {
		w.mu.Unlock()
		return
	}
	w.started = true
	bgCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.mu.Unlock()

	go w.runWithBackoff(bgCtx)
}

// Stop tears down the background subscription, if one was started.
func (w *WorldWatchSensor) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runWithBackoff keeps a websocket connection alive, reconnecting with
// capped exponential backoff on any read/dial error, matching the
// cadence the connwatch package documents (2s up to 60s).
func (w *WorldWatchSensor) runWithBackoff(ctx context.Context) {
	delay := 2 * time.Second
	const maxDelay = 60 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.readLoop(ctx); err != nil {
			w.logger.Debug("worldwatch: connection ended", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (w *WorldWatchSensor) readLoop(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var s Sighting
		if err := json.Unmarshal(data, &s); err != nil {
			w.logger.Debug("worldwatch: malformed sighting", "error", err)
			continue
		}
		if s.Topic == "" {
			continue
		}
		w.mu.Lock()
		w.buf = append(w.buf, s)
		w.mu.Unlock()
	}
}
