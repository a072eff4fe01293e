// Package transport defines the narrow message-transport boundary
// this package scopes the concrete XMTP wire protocol out of: an
// async inbound-message stream and an outbound send operation. This
// package ships one concrete, fully-implemented adapter over MQTT —
// adapted from internal/mqtt/publisher.go's connection
// lifecycle (autopaho.ConnectionManager, birth/will availability
// messages, reconnect handled entirely inside the library) — narrowed
// from Home-Assistant discovery/sensor publishing down to the two
// operations the core actually needs: Send and an inbound channel.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// InboundMessage is one message arriving on a subscribed topic.
type InboundMessage struct {
	Topic   string
	Payload []byte
	Ts      time.Time
}

// Config configures the MQTT adapter. ClientID should be stable across
// restarts (the operator's instance id) so retained-session behavior
// and last-will delivery are predictable.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// Topics are subscribed on connect; inbound messages on any of
	// them are delivered on the Inbound channel.
	Topics []string

	// AvailabilityTopic, if set, carries a retained "online"/"offline"
	// birth/will message the way Publisher does.
	AvailabilityTopic string
}

// Transport is a narrow async pub/sub boundary: Start begins the
// connection (reconnecting forever in the background, per autopaho's
// design), Inbound delivers messages as they arrive, and Send
// publishes outbound ones. It never interprets message content — that
// is the router's job.
type Transport struct {
	cfg     Config
	logger  *slog.Logger
	cm      *autopaho.ConnectionManager
	inbound chan InboundMessage
}

// New builds a Transport. Call Start to connect.
func New(cfg Config, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{cfg: cfg, logger: logger, inbound: make(chan InboundMessage, 64)}
}

// Start connects to the broker and begins delivering inbound messages.
// It blocks until the first connection succeeds or ctx expires;
// afterward autopaho keeps reconnecting in the background for the
// lifetime of ctx, the same resilience model as
// Publisher.Start.
func (t *Transport) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(t.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("transport: parse broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: t.cfg.Username,
		ConnectPassword: []byte(t.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			t.logger.Info("transport: connected", "broker", t.cfg.BrokerURL)
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			t.subscribe(subCtx, cm)
			t.publishAvailability(subCtx, cm, "online")
		},
		OnConnectError: func(err error) {
			t.logger.Warn("transport: connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: t.cfg.ClientID,
		},
	}

	if t.cfg.AvailabilityTopic != "" {
		pahoCfg.WillMessage = &paho.WillMessage{
			Topic:   t.cfg.AvailabilityTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		}
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("transport: connect: %w", err)
	}
	t.cm = cm

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		t.deliver(InboundMessage{
			Topic:   pr.Packet.Topic,
			Payload: pr.Packet.Payload,
			Ts:      time.Now(),
		})
		return true, nil
	})

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		t.logger.Warn("transport: initial connection timed out, retrying in background", "error", err)
	}
	return nil
}

func (t *Transport) deliver(m InboundMessage) {
	select {
	case t.inbound <- m:
	default:
		t.logger.Warn("transport: inbound channel full, dropping message", "topic", m.Topic)
	}
}

func (t *Transport) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	if len(t.cfg.Topics) == 0 {
		return
	}
	subs := make([]paho.SubscribeOptions, 0, len(t.cfg.Topics))
	for _, topic := range t.cfg.Topics {
		subs = append(subs, paho.SubscribeOptions{Topic: topic, QoS: 0})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		t.logger.Warn("transport: subscribe failed", "error", err)
	}
}

func (t *Transport) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, state string) {
	if t.cfg.AvailabilityTopic == "" {
		return
	}
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   t.cfg.AvailabilityTopic,
		Payload: []byte(state),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		t.logger.Warn("transport: publish availability failed", "error", err)
	}
}

// Inbound returns the channel inbound messages arrive on.
func (t *Transport) Inbound() <-chan InboundMessage {
	return t.inbound
}

// Send publishes payload to topic. It never raises for a transient
// disconnect — autopaho queues and retries internally — only for
// conditions the caller must react to (Start never called, ctx
// cancelled).
func (t *Transport) Send(ctx context.Context, topic string, payload []byte) error {
	if t.cm == nil {
		return fmt.Errorf("transport: not started")
	}
	_, err := t.cm.Publish(ctx, &paho.Publish{Topic: topic, Payload: payload, QoS: 0})
	if err != nil {
		return fmt.Errorf("transport: publish: %w", err)
	}
	return nil
}

// Close disconnects gracefully, publishing an offline availability
// message first if one is configured.
func (t *Transport) Close(ctx context.Context) error {
	if t.cm == nil {
		return nil
	}
	t.publishAvailability(ctx, t.cm, "offline")
	return t.cm.Disconnect(ctx)
}
