package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fsmosquito/fsmosquito-client/internal/infrastructure/config"
)

// TransportHandlers receive broker-side signals for one session.
type TransportHandlers struct {
	// OnConnectionLost is called when an open session drops without a
	// Disconnect call.
	OnConnectionLost func(err error)

	// OnMessage is called for every message on a subscribed filter.
	OnMessage func(topic string, payload []byte)
}

// Transport is the minimal broker session the Client drives.
// PahoTransport is the production implementation.
type Transport interface {
	// Connect opens a new session; the last will is part of it.
	Connect(ctx context.Context, h TransportHandlers) error

	// Subscribe adds filters to the current session.
	Subscribe(filters []string, qos byte) error

	// Publish sends one message and waits for the broker's acknowledgment.
	Publish(msg OutboundMessage, qos byte) error

	// Disconnect ends the session cleanly; the last will is not sent.
	Disconnect(quiesce time.Duration)
}

// PahoTransport connects with github.com/eclipse/paho.mqtt.golang.
//
// Every Connect builds a fresh paho client so a session never inherits
// state from a dropped one.
type PahoTransport struct {
	cfg      config.MQTTConfig
	clientID string
	qos      byte

	mu     sync.Mutex
	client pahomqtt.Client
}

var _ Transport = (*PahoTransport)(nil)

// NewPahoTransport creates a transport for clientID.
func NewPahoTransport(cfg config.MQTTConfig, clientID string) *PahoTransport {
	return &PahoTransport{cfg: cfg, clientID: clientID, qos: byte(cfg.QoS)} //nolint:gosec // validated 0-2
}

// Connect opens a session and waits for the broker's acknowledgment,
// the context or the configured connect timeout, whichever comes first.
func (t *PahoTransport) Connect(ctx context.Context, h TransportHandlers) error {
	opts := buildClientOptions(t.cfg, t.clientID)
	configureLWT(opts, t.clientID, t.qos)

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if h.OnConnectionLost != nil {
			h.OnConnectionLost(err)
		}
	})
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if h.OnMessage != nil {
			h.OnMessage(msg.Topic(), msg.Payload())
		}
	})

	client := pahomqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), opts.ConnectTimeout); err != nil {
		client.Disconnect(0)
		return err
	}

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
	return nil
}

// Subscribe registers filters without a per-filter callback, so matching
// messages reach the default publish handler.
func (t *PahoTransport) Subscribe(filters []string, qos byte) error {
	client := t.current()
	if client == nil {
		return ErrNotConnected
	}

	m := make(map[string]byte, len(filters))
	for _, f := range filters {
		m[f] = qos
	}
	return waitToken(context.Background(), client.SubscribeMultiple(m, nil), t.publishTimeout())
}

// Publish sends msg. The content type is not carried by MQTT 3.1.1.
func (t *PahoTransport) Publish(msg OutboundMessage, qos byte) error {
	client := t.current()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return waitToken(context.Background(), client.Publish(msg.Topic, qos, msg.Retain, msg.Payload), t.publishTimeout())
}

// Disconnect ends the current session, if any.
func (t *PahoTransport) Disconnect(quiesce time.Duration) {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client != nil {
		client.Disconnect(uint(quiesce.Milliseconds())) //nolint:gosec // quiesce is a small positive duration
	}
}

func (t *PahoTransport) current() pahomqtt.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

func (t *PahoTransport) publishTimeout() time.Duration {
	if t.cfg.Timeouts.Publish > 0 {
		return time.Duration(t.cfg.Timeouts.Publish) * time.Second
	}
	return defaultPublishTimeout
}

// waitToken waits for token, ctx or timeout and returns the token's error.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
