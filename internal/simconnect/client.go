package simconnect

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsmosquito/fsmosquito-client/internal/schedule"
)

// Default timer intervals.
const (
	defaultPulseInterval     = time.Second
	defaultReconnectInterval = 15 * time.Second

	// defaultStalePulses is how many pulses a poll may stay unanswered
	// before its subscription is polled again.
	defaultStalePulses = 10

	// defaultRequestIDCeiling is where poll request ids wrap back to zero.
	defaultRequestIDCeiling = 1<<31 - 2

	// defaultDialTimeout bounds timer-driven reconnect attempts.
	defaultDialTimeout = 10 * time.Second
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

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds TelemetryClient settings. Zero values select defaults.
type Config struct {
	// AppName is announced to the simulation host.
	AppName string

	// PulseInterval is the poll period. Default: 1 second.
	PulseInterval time.Duration

	// ReconnectInterval is the fixed retry period. Default: 15 seconds.
	ReconnectInterval time.Duration

	// StalePulses releases polls left unanswered for this many pulses.
	// Default: 10.
	StalePulses int

	// DefinitionIDs and RequestIDs allocate provider handles. When nil a
	// private sequence is created (request ids wrap at 2^31-2).
	DefinitionIDs *Sequence
	RequestIDs    *Sequence
}

// Stats holds operational statistics.
type Stats struct {
	Subscriptions   int
	PendingRequests int
	PollsIssued     uint64
	Responses       uint64
	StaleResponses  uint64
	ValuesChanged   uint64
	ConnectAttempts uint64
	Connected       bool
}

// Client owns the session with the simulation host.
//
// It registers subscriptions, polls them on every pulse, turns responses
// into ValueChanged events, and reconnects on a fixed interval whenever the
// host is unreachable. Reconnect attempts never stop until Close.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Provider calls are serialised under the client lock, except
//     ReceiveMessage which runs on the caller's goroutine so handlers can
//     take the lock.
//   - Events are published after the lock is released.
type Client struct {
	cfg    Config
	dialer Dialer
	sched  schedule.Scheduler

	table    *SubscriptionTable
	defIDs   *Sequence
	reqIDs   *Sequence
	evts     *Events
	writeDef map[writeKey]uint32

	mu         sync.Mutex
	state      State
	closed     bool
	handle     Handle
	provider   Provider
	generation uint64
	pulse      schedule.Task
	reconnect  schedule.Task
	pulseCount uint64

	logger   Logger
	loggerMu sync.RWMutex

	pollsIssued     atomic.Uint64
	responses       atomic.Uint64
	staleResponses  atomic.Uint64
	valuesChanged   atomic.Uint64
	connectAttempts atomic.Uint64
}

// writeKey identifies a definition created only for writing.
type writeKey struct {
	name string
	kind DataType
}

// NewClient creates a disconnected client.
func NewClient(cfg Config, dialer Dialer, sched schedule.Scheduler) *Client {
	if cfg.PulseInterval <= 0 {
		cfg.PulseInterval = defaultPulseInterval
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.StalePulses <= 0 {
		cfg.StalePulses = defaultStalePulses
	}
	if cfg.DefinitionIDs == nil {
		cfg.DefinitionIDs = NewSequence(0)
	}
	if cfg.RequestIDs == nil {
		cfg.RequestIDs = NewSequence(defaultRequestIDCeiling)
	}

	c := &Client{
		cfg:      cfg,
		dialer:   dialer,
		sched:    sched,
		defIDs:   cfg.DefinitionIDs,
		reqIDs:   cfg.RequestIDs,
		table:    NewSubscriptionTable(cfg.DefinitionIDs),
		writeDef: make(map[writeKey]uint32),
	}
	c.evts = NewEvents(func(r any) {
		c.logError("event handler panic", fmt.Errorf("%v", r))
	})
	return c
}

// Events returns the client's event buses.
func (c *Client) Events() *Events {
	return c.evts
}

// Table returns the subscription table.
func (c *Client) Table() *SubscriptionTable {
	return c.table
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Connect opens a session with the host identified by handle.
//
// A single attempt is made synchronously. If it fails the error is logged
// and the reconnect timer takes over; Connect itself still returns nil.
//
// Returns:
//   - ErrClosed after Close
//   - ErrAlreadyConnected while a session is open or being opened
func (c *Client) Connect(ctx context.Context, handle Handle) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrAlreadyConnected, c.state)
	}
	c.handle = handle
	c.mu.Unlock()

	c.attempt(ctx)
	return nil
}

// attempt makes one connection attempt with the last known handle.
func (c *Client) attempt(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	gen := c.generation + 1
	handle := c.handle
	c.mu.Unlock()

	c.connectAttempts.Add(1)
	c.logInfo("connecting to simulation host", "handle", string(handle))

	p, err := c.dialer.Dial(ctx, handle, c.cfg.AppName, c.handlers(gen))

	c.mu.Lock()
	if err != nil {
		c.state = StateDisconnected
		if !c.closed {
			c.startReconnectLocked()
		}
		c.mu.Unlock()
		c.logError("unable to connect to simulation host", err,
			"retry_in", c.cfg.ReconnectInterval.String())
		return
	}
	if c.closed {
		c.state = StateDisconnected
		c.mu.Unlock()
		p.Close()
		return
	}

	c.provider = p
	c.state = StateConnected
	c.generation = gen
	c.pulseCount = 0
	// Registrations never survive a session, including ones stored while
	// disconnected.
	c.table.ClearAll()
	c.writeDef = make(map[writeKey]uint32)
	c.stopReconnectLocked()
	c.startPulseLocked()
	c.mu.Unlock()

	c.logInfo("connected to simulation host", "handle", string(handle))

	// Frames that arrived between the handshake and now were signalled
	// while connecting and skipped by SignalReceiveMessage.
	c.SignalReceiveMessage()
}

// handlers binds provider signals to session generation gen so signals
// from a torn-down session are ignored.
func (c *Client) handlers(gen uint64) Handlers {
	return Handlers{
		OnOpen:      func(appName string) { c.onOpen(gen, appName) },
		OnQuit:      func() { c.onQuit(gen) },
		OnException: func(code uint32) { c.onException(gen, code) },
		OnData: func(requestID, objectID uint32, value float64) {
			c.onData(gen, requestID, objectID, value)
		},
	}
}

// currentLocked reports whether gen is the live session.
func (c *Client) currentLocked(gen uint64) bool {
	return c.state == StateConnected && c.generation == gen
}

func (c *Client) onOpen(gen uint64, appName string) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.startPulseLocked()
	c.mu.Unlock()

	c.logInfo("simulation host session opened", "app", appName)
	c.evts.Opened.Publish(Opened{AppName: appName})
}

func (c *Client) onQuit(gen uint64) {
	c.logInfo("simulation host quit")
	c.drop(gen, "quit")
}

func (c *Client) onException(gen uint64, code uint32) {
	c.logWarn("simulation host exception", "code", code)

	c.mu.Lock()
	if c.currentLocked(gen) {
		c.startReconnectLocked()
	}
	c.mu.Unlock()
}

func (c *Client) onData(gen uint64, requestID, objectID uint32, value float64) {
	c.mu.Lock()
	live := c.currentLocked(gen)
	c.mu.Unlock()
	if !live {
		return
	}

	c.responses.Add(1)
	c.evts.DataReceived.Publish(DataReceived{RequestID: requestID})

	sub, changed, ok := c.table.Resolve(requestID, value)
	if !ok {
		c.staleResponses.Add(1)
		return
	}
	if !changed {
		return
	}

	c.valuesChanged.Add(1)
	c.evts.ValueChanged.Publish(ValueChanged{
		DatumName: sub.DatumName,
		Units:     sub.Units,
		ObjectID:  objectID,
		Value:     value,
	})
}

// drop tears down session gen after a quit or a transport failure and
// hands over to the reconnect timer.
func (c *Client) drop(gen uint64, reason string) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.stopPulseLocked()
	p := c.releaseLocked()
	if !c.closed {
		c.startReconnectLocked()
	}
	c.mu.Unlock()

	if err := p.Close(); err != nil {
		c.logDebug("provider close failed", "error", err)
	}
	c.evts.Closed.Publish(Closed{Reason: reason})
}

// releaseLocked detaches the provider and forgets every registration.
// Timers must already be stopped.
func (c *Client) releaseLocked() Provider {
	p := c.provider
	c.provider = nil
	c.state = StateDisconnected
	c.table.ClearAll()
	c.writeDef = make(map[writeKey]uint32)
	return p
}

func (c *Client) startPulseLocked() {
	if c.pulse != nil {
		return
	}
	c.pulse = c.sched.Every(c.cfg.PulseInterval, c.onPulse)
}

func (c *Client) stopPulseLocked() {
	if c.pulse != nil {
		c.pulse.Stop()
		c.pulse = nil
	}
}

func (c *Client) startReconnectLocked() {
	if c.reconnect != nil {
		return
	}
	c.reconnect = c.sched.Every(c.cfg.ReconnectInterval, c.onReconnect)
}

func (c *Client) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// onPulse polls every subscription without an outstanding request.
func (c *Client) onPulse() {
	c.mu.Lock()
	if c.state != StateConnected || c.provider == nil {
		c.mu.Unlock()
		return
	}
	c.pulseCount++
	pulse := c.pulseCount
	if stale := uint64(c.cfg.StalePulses); pulse > stale {
		if n := c.table.ExpirePending(pulse - stale + 1); n > 0 {
			c.logDebug("released unanswered polls", "count", n)
		}
	}

	issued := 0
	for _, sub := range c.table.DueForPoll() {
		reqID := c.reqIDs.Next()
		if !c.table.MarkPending(sub.ID, reqID, pulse) {
			continue
		}
		if err := c.provider.RequestDataOnSimObjectType(reqID, sub.ID, ObjectTypeUser); err != nil {
			c.table.Release(reqID)
			c.logError("poll request failed", err, "datum", sub.DatumName)
			continue
		}
		issued++
	}
	c.mu.Unlock()

	if issued > 0 {
		c.pollsIssued.Add(uint64(issued))
		c.evts.DataRequested.Publish(DataRequested{Count: issued})
	}
}

// onReconnect retries the last handle while disconnected.
func (c *Client) onReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.state == StateConnected {
		c.stopReconnectLocked()
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()
	c.attempt(ctx)
}

// Subscribe starts polling datumName in units.
//
// A name that is already tracked is a no-op. While disconnected the entry
// is stored without any provider call; it is dropped when the next session
// opens and must be requested again. When the definition cannot be
// registered the entry is removed and ErrSubscribeFailed returned; it is
// not retried.
func (c *Client) Subscribe(datumName, units string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	id, created := c.table.Subscribe(datumName, units)
	if !created || c.state != StateConnected {
		return nil
	}

	if err := c.define(id, datumName, units, DataTypeFloat64); err != nil {
		c.table.Remove(id)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, datumName, err)
	}

	c.logDebug("subscribed", "datum", datumName, "units", units, "definition", id)
	return nil
}

// define registers a one-datum definition. Caller holds c.mu and the
// client is connected.
func (c *Client) define(defID uint32, datumName, units string, kind DataType) error {
	if err := c.provider.AddToDataDefinition(defID, datumName, units, kind); err != nil {
		return fmt.Errorf("add to data definition: %w", err)
	}
	if err := c.provider.RegisterDataDefineStruct(defID, kind); err != nil {
		return fmt.Errorf("register data struct: %w", err)
	}
	return nil
}

// Set writes v to datumName on objectID.
//
// Numeric writes to a subscribed datum reuse its definition. Anything else
// gets a write-only definition from the same id sequence, cached until the
// session ends.
func (c *Client) Set(datumName string, objectID uint32, v Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateConnected {
		return ErrNotConnected
	}

	kind := v.DataType()
	defID, err := c.writeDefinitionLocked(datumName, kind)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSetFailed, datumName, err)
	}

	if err := c.provider.SetDataOnSimObject(defID, objectID, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSetFailed, datumName, err)
	}

	c.logDebug("set datum", "datum", datumName, "object_id", objectID, "value", v.String())
	return nil
}

func (c *Client) writeDefinitionLocked(datumName string, kind DataType) (uint32, error) {
	sub, subscribed := c.table.Lookup(datumName)
	if subscribed && kind == DataTypeFloat64 {
		return sub.ID, nil
	}

	key := writeKey{name: datumName, kind: kind}
	if id, ok := c.writeDef[key]; ok {
		return id, nil
	}

	units := ""
	if subscribed {
		units = sub.Units
	}
	id := c.defIDs.Next()
	if err := c.define(id, datumName, units, kind); err != nil {
		return 0, err
	}
	c.writeDef[key] = id
	return id, nil
}

// SignalReceiveMessage dispatches pending provider messages. A failure
// tears the session down and hands over to the reconnect timer; it is
// never returned to the caller.
func (c *Client) SignalReceiveMessage() {
	c.mu.Lock()
	if c.closed || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	p := c.provider
	gen := c.generation
	c.mu.Unlock()

	if err := p.ReceiveMessage(); err != nil {
		c.logError("receive message failed, reconnecting", err)
		c.drop(gen, "receive failed")
	}
}

// Disconnect ends the session. Timers are stopped before the provider is
// released and every subscription is discarded. No reconnect is scheduled.
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
	c.stopPulseLocked()
	c.stopReconnectLocked()
	p := c.releaseLocked()
	c.generation++
	c.mu.Unlock()

	if err := p.Close(); err != nil {
		c.logDebug("provider close failed", "error", err)
	}
	c.logInfo("disconnected from simulation host")
	c.evts.Closed.Publish(Closed{Reason: "disconnect"})
	return nil
}

// Close disconnects if needed and stops every timer for good.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopPulseLocked()
	c.stopReconnectLocked()

	var p Provider
	if c.state == StateConnected {
		p = c.releaseLocked()
		c.generation++
	}
	c.mu.Unlock()

	if p == nil {
		return nil
	}
	err := p.Close()
	c.evts.Closed.Publish(Closed{Reason: "close"})
	return err
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

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		Subscriptions:   c.table.Len(),
		PendingRequests: c.table.PendingLen(),
		PollsIssued:     c.pollsIssued.Load(),
		Responses:       c.responses.Load(),
		StaleResponses:  c.staleResponses.Load(),
		ValuesChanged:   c.valuesChanged.Load(),
		ConnectAttempts: c.connectAttempts.Load(),
		Connected:       c.IsConnected(),
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
