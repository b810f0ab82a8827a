package mqtt

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsmosquito/fsmosquito-client/internal/infrastructure/config"
	"github.com/fsmosquito/fsmosquito-client/internal/schedule"
	"github.com/fsmosquito/fsmosquito-client/internal/topics"
)

// Reconnect defaults, used when the config leaves them unset.
const (
	defaultReconnectBaseDelay     = 5 * time.Second
	defaultReconnectMinMultiplier = 2
	defaultReconnectMaxMultiplier = 11
)

// State is the connection state of a Client.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Stats holds operational statistics.
type Stats struct {
	Queued          int
	Published       uint64
	Sent            uint64
	SendFailures    uint64
	Received        uint64
	ConnectAttempts uint64
	Connected       bool
}

// Client owns the session with the message broker.
//
// It subscribes to this client's ingress topics on every connect, routes
// inbound messages to typed events, and delivers outbound messages through
// a FIFO queue that survives disconnects. After an unexpected drop it waits
// a randomised multiple of the base delay and makes a single reconnect
// attempt.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Exactly one goroutine drains the queue at a time.
//   - Events are published without holding the client lock.
type Client struct {
	cfg       config.MQTTConfig
	clientID  string
	qos       byte
	transport Transport
	sched     schedule.Scheduler
	router    *topics.Router
	queue     *queue
	evts      *Events

	mu         sync.Mutex
	state      State
	closed     bool
	halted     bool
	generation uint64
	reconnect  schedule.Task

	// drainMu serialises queue drains so messages leave in order.
	drainMu sync.Mutex

	// randIntN picks the reconnect multiplier offset; replaced in tests.
	randIntN func(n int) int

	logger   Logger
	loggerMu sync.RWMutex

	published       atomic.Uint64
	sent            atomic.Uint64
	sendFailures    atomic.Uint64
	received        atomic.Uint64
	connectAttempts atomic.Uint64
}

// NewClient creates a disconnected client for clientID.
func NewClient(cfg config.MQTTConfig, clientID string, transport Transport, sched schedule.Scheduler) *Client {
	c := &Client{
		cfg:       cfg,
		clientID:  clientID,
		qos:       byte(cfg.QoS), //nolint:gosec // validated 0-2
		transport: transport,
		sched:     sched,
		router:    topics.NewRouter(clientID),
		queue:     newQueue(),
		randIntN:  rand.IntN,
	}
	c.evts = NewEvents(func(r any) {
		c.logError("MQTT event handler panic recovered", fmt.Errorf("%v", r))
	})
	return c
}

// Events returns the client's event buses.
func (c *Client) Events() *Events {
	return c.evts
}

// ClientID returns the id substituted into every topic.
func (c *Client) ClientID() string {
	return c.clientID
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Connect opens a session with the broker.
//
// On success the ingress filters are subscribed, Opened is raised, the
// outbound queue is flushed and a retained "Connected" status published.
//
// Returns:
//   - ErrClosed after Close
//   - ErrInvalidQoS when the configured QoS is outside 0-2
//   - ErrAlreadyConnected while a session is open or being opened
//   - ErrConnectionFailed when the broker cannot be reached
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.stopReconnectLocked()
	c.mu.Unlock()

	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.cfg.QoS < 0 || c.cfg.QoS > maxQoS {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidQoS, c.cfg.QoS)
	}
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrAlreadyConnected, state)
	}
	c.state = StateConnecting
	gen := c.generation + 1
	c.mu.Unlock()

	c.connectAttempts.Add(1)
	c.logInfo("connecting to MQTT broker", "server", c.cfg.ServerURL, "client_id", c.clientID)

	err := c.transport.Connect(ctx, TransportHandlers{
		OnConnectionLost: func(err error) { c.handleConnectionLost(gen, err) },
		OnMessage:        c.handleMessage,
	})

	c.mu.Lock()
	if err != nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if c.closed {
		c.state = StateDisconnected
		c.mu.Unlock()
		c.transport.Disconnect(0)
		return ErrClosed
	}
	c.state = StateConnected
	c.generation = gen
	c.mu.Unlock()

	c.handleConnect(gen)
	return nil
}

// handleConnect runs once per session after the transport connects.
func (c *Client) handleConnect(gen uint64) {
	c.logInfo("connected to MQTT broker", "server", c.cfg.ServerURL)

	if err := c.transport.Subscribe(c.router.Filters(), c.qos); err != nil {
		c.logError("subscribing to ingress topics failed", fmt.Errorf("%w: %w", ErrSubscribeFailed, err))
	}

	c.evts.Opened.Publish(Opened{})

	c.mu.Lock()
	if c.generation == gen {
		c.halted = false
	}
	c.mu.Unlock()

	c.drain()

	if err := c.PublishClientStatus(topics.StatusConnected); err != nil {
		c.logError("publishing client status failed", err)
	}
}

// handleConnectionLost is called by the transport when session gen drops.
func (c *Client) handleConnectionLost(gen uint64, err error) {
	c.mu.Lock()
	if c.state != StateConnected || c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected

	var delay time.Duration
	if !c.closed {
		delay = c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	c.logWarn("MQTT connection lost", "error", err, "retry_in", delay.String())
	c.evts.Closed.Publish(Closed{Err: err})
}

// ScheduleReconnect arms the single randomised reconnect attempt used after
// a dropped session. It is a no-op after Close, while a session is open or
// being opened, and while an attempt is already pending.
func (c *Client) ScheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected || c.reconnect != nil {
		c.mu.Unlock()
		return
	}
	delay := c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.logInfo("MQTT reconnect scheduled", "retry_in", delay.String())
}

func (c *Client) scheduleReconnectLocked() time.Duration {
	delay := c.reconnectDelay()
	c.stopReconnectLocked()
	c.reconnect = c.sched.After(delay, c.onReconnect)
	return delay
}

// reconnectDelay is the base delay times a multiplier drawn uniformly from
// [MinMultiplier, MaxMultiplier].
func (c *Client) reconnectDelay() time.Duration {
	r := c.cfg.Reconnect
	base := time.Duration(r.BaseDelay) * time.Second
	if base <= 0 {
		base = defaultReconnectBaseDelay
	}
	lo, hi := r.MinMultiplier, r.MaxMultiplier
	if lo < 1 || hi < lo {
		lo, hi = defaultReconnectMinMultiplier, defaultReconnectMaxMultiplier
	}
	return base * time.Duration(lo+c.randIntN(hi-lo+1))
}

// onReconnect makes the single attempt scheduled after a drop.
func (c *Client) onReconnect() {
	c.mu.Lock()
	c.reconnect = nil
	c.mu.Unlock()

	timeout := time.Duration(c.cfg.Timeouts.Connect) * time.Second
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := c.connect(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyConnected), errors.Is(err, ErrClosed):
	default:
		c.logWarn("MQTT reconnection failed, giving up", "error", err)
	}
}

func (c *Client) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// Disconnect ends the session cleanly, so the last will is not published.
// No reconnect is scheduled.
//
// Returns:
//   - ErrClosed after Close
//   - ErrNotConnected when no session is open
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.stopReconnectLocked()
	c.state = StateDisconnected
	c.generation++
	c.mu.Unlock()

	c.transport.Disconnect(defaultDisconnectQuiesce)
	c.logInfo("disconnected from MQTT broker")
	c.evts.Closed.Publish(Closed{})
	return nil
}

// Close disconnects if needed and cancels any pending reconnect.
// Queued messages are discarded. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopReconnectLocked()
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.generation++
	c.mu.Unlock()

	if wasConnected {
		c.transport.Disconnect(defaultDisconnectQuiesce)
		c.evts.Closed.Publish(Closed{})
	}
	return nil
}

// IsConnected returns true while a session is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueLen returns the number of messages waiting for delivery.
func (c *Client) QueueLen() int {
	return c.queue.Len()
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		Queued:          c.queue.Len(),
		Published:       c.published.Load(),
		Sent:            c.sent.Load(),
		SendFailures:    c.sendFailures.Load(),
		Received:        c.received.Load(),
		ConnectAttempts: c.connectAttempts.Load(),
		Connected:       c.IsConnected(),
	}
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, args...)
	}
}

func (c *Client) logInfo(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, err error, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, args...)...)
	}
}
