package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fsmosquito/fsmosquito-client/internal/infrastructure/mqtt"
	"github.com/fsmosquito/fsmosquito-client/internal/simconnect"
	"github.com/fsmosquito/fsmosquito-client/internal/topics"
)

// Status sources written to the Recorder.
const (
	sourceSimConnect = "simconnect"
	sourceMQTT       = "mqtt"
)

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("bridge: adapter stopped")

// Telemetry is the simulation host side of the bridge.
// It is satisfied by *simconnect.Client.
type Telemetry interface {
	Connect(ctx context.Context, handle simconnect.Handle) error
	Close() error
	IsConnected() bool
	Subscribe(datumName, units string) error
	Set(datumName string, objectID uint32, v simconnect.Value) error
	SignalReceiveMessage()
	Events() *simconnect.Events
	Stats() simconnect.Stats
}

// Broker is the message broker side of the bridge.
// It is satisfied by *mqtt.Client.
type Broker interface {
	Connect(ctx context.Context) error
	ScheduleReconnect()
	Close() error
	IsConnected() bool
	PublishClientStatus(status string) error
	PublishSimConnectStatus(status string) error
	PublishVariableValue(datumName string, objectID uint32, value float64) error
	Events() *mqtt.Events
	Stats() mqtt.Stats
}

// Recorder keeps a history of values and connection changes.
// It is satisfied by *influxdb.Client and is optional.
type Recorder interface {
	WriteVariableValue(datumName, units string, objectID uint32, value float64)
	WriteStatus(source, status string)
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Stats combines both clients' statistics with the adapter's own counters.
type Stats struct {
	Telemetry simconnect.Stats
	Broker    mqtt.Stats

	PollsRequested      uint64
	ResponsesReceived   uint64
	MessagesReceived    uint64
	MessagesTransmitted uint64
	ValuesPublished     uint64
	RequestsDropped     uint64
}

// Adapter joins a Telemetry and a Broker.
//
// Telemetry status changes and value changes are published to the broker.
// Status, subscribe and set-value requests from the broker are forwarded to
// telemetry. Requests that arrive while telemetry is disconnected are
// dropped; consumers re-issue them once they see the "Opened" status.
//
// Thread Safety: All methods are safe for concurrent use.
type Adapter struct {
	telemetry Telemetry
	broker    Broker
	recorder  Recorder

	mu          sync.Mutex
	stopped     bool
	unsubscribe []func()

	logger   Logger
	loggerMu sync.RWMutex

	pollsRequested      atomic.Uint64
	responsesReceived   atomic.Uint64
	messagesReceived    atomic.Uint64
	messagesTransmitted atomic.Uint64
	valuesPublished     atomic.Uint64
	requestsDropped     atomic.Uint64
}

// NewAdapter creates an adapter and subscribes it to both clients' events.
// recorder may be nil.
func NewAdapter(telemetry Telemetry, broker Broker, recorder Recorder) *Adapter {
	a := &Adapter{
		telemetry: telemetry,
		broker:    broker,
		recorder:  recorder,
	}

	te := telemetry.Events()
	be := broker.Events()
	a.unsubscribe = []func(){
		te.Opened.Subscribe(a.onTelemetryOpened),
		te.Closed.Subscribe(a.onTelemetryClosed),
		te.ValueChanged.Subscribe(a.onValueChanged),
		te.DataRequested.Subscribe(func(ev simconnect.DataRequested) {
			a.pollsRequested.Add(uint64(ev.Count)) //nolint:gosec // count is never negative
		}),
		te.DataReceived.Subscribe(func(simconnect.DataReceived) {
			a.responsesReceived.Add(1)
		}),
		be.Opened.Subscribe(a.onBrokerOpened),
		be.Closed.Subscribe(a.onBrokerClosed),
		be.StatusRequested.Subscribe(a.onStatusRequested),
		be.SubscribeRequested.Subscribe(a.onSubscribeRequested),
		be.SetValueRequested.Subscribe(a.onSetValueRequested),
		be.MessageReceived.Subscribe(func(mqtt.MessageReceived) {
			a.messagesReceived.Add(1)
		}),
		be.MessageTransmitted.Subscribe(func(mqtt.MessageTransmitted) {
			a.messagesTransmitted.Add(1)
		}),
	}
	return a
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(logger Logger) {
	a.loggerMu.Lock()
	a.logger = logger
	a.loggerMu.Unlock()
}

// Start connects telemetry and then the broker, skipping whichever is
// already connected. Neither side being unreachable is an error: telemetry
// keeps retrying on its own timer and the broker gets one randomised
// reconnect attempt. Only precondition failures such as ErrStopped or a
// closed client are returned.
func (a *Adapter) Start(ctx context.Context, handle simconnect.Handle) error {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	if !a.telemetry.IsConnected() {
		err := a.telemetry.Connect(ctx, handle)
		if err != nil && !errors.Is(err, simconnect.ErrAlreadyConnected) {
			return fmt.Errorf("connecting telemetry: %w", err)
		}
	}

	if !a.broker.IsConnected() {
		err := a.broker.Connect(ctx)
		switch {
		case err == nil, errors.Is(err, mqtt.ErrAlreadyConnected):
		case errors.Is(err, mqtt.ErrConnectionFailed):
			a.logWarn("broker unreachable, retrying later", "error", err)
			a.broker.ScheduleReconnect()
		default:
			return fmt.Errorf("connecting broker: %w", err)
		}
	}

	a.logInfo("bridge started",
		"telemetry_connected", a.telemetry.IsConnected(),
		"broker_connected", a.broker.IsConnected())
	return nil
}

// Stop shuts the bridge down for good.
//
// Telemetry is closed first so its "Closed" status still reaches the
// broker, then a retained "Disconnected" client status is published and the
// broker session ends. Safe to call multiple times.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	a.mu.Unlock()

	var errs []error
	if err := a.telemetry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing telemetry: %w", err))
	}

	if a.broker.IsConnected() {
		if err := a.broker.PublishClientStatus(topics.StatusDisconnected); err != nil {
			a.logError("publishing disconnected status failed", err)
		}
	}
	if err := a.broker.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing broker: %w", err))
	}

	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()
	for _, fn := range unsubscribe {
		fn()
	}

	a.logInfo("bridge stopped")
	return errors.Join(errs...)
}

// SignalReceiveMessage hands a "messages waiting" notification from the
// telemetry transport to the telemetry client.
func (a *Adapter) SignalReceiveMessage() {
	a.telemetry.SignalReceiveMessage()
}

// Stats returns current statistics.
func (a *Adapter) Stats() Stats {
	return Stats{
		Telemetry:           a.telemetry.Stats(),
		Broker:              a.broker.Stats(),
		PollsRequested:      a.pollsRequested.Load(),
		ResponsesReceived:   a.responsesReceived.Load(),
		MessagesReceived:    a.messagesReceived.Load(),
		MessagesTransmitted: a.messagesTransmitted.Load(),
		ValuesPublished:     a.valuesPublished.Load(),
		RequestsDropped:     a.requestsDropped.Load(),
	}
}

func (a *Adapter) onTelemetryOpened(ev simconnect.Opened) {
	a.logInfo("simulation host opened", "app_name", ev.AppName)
	a.publishSimConnectStatus(topics.StatusOpened)
}

func (a *Adapter) onTelemetryClosed(ev simconnect.Closed) {
	a.logInfo("simulation host closed", "reason", ev.Reason)
	a.publishSimConnectStatus(topics.StatusClosed)
}

func (a *Adapter) publishSimConnectStatus(status string) {
	if err := a.broker.PublishSimConnectStatus(status); err != nil {
		a.logError("publishing simconnect status failed", err, "status", status)
	}
	if a.recorder != nil {
		a.recorder.WriteStatus(sourceSimConnect, status)
	}
}

func (a *Adapter) onValueChanged(ev simconnect.ValueChanged) {
	if a.recorder != nil {
		a.recorder.WriteVariableValue(ev.DatumName, ev.Units, ev.ObjectID, ev.Value)
	}

	// Value changes are never queued while the broker is away.
	if !a.broker.IsConnected() {
		return
	}
	if err := a.broker.PublishVariableValue(ev.DatumName, ev.ObjectID, ev.Value); err != nil {
		a.logError("publishing variable value failed", err, "datum", ev.DatumName)
		return
	}
	a.valuesPublished.Add(1)
}

func (a *Adapter) onBrokerOpened(mqtt.Opened) {
	if a.recorder != nil {
		a.recorder.WriteStatus(sourceMQTT, topics.StatusConnected)
	}
}

func (a *Adapter) onBrokerClosed(ev mqtt.Closed) {
	if ev.Err != nil {
		a.logWarn("broker connection lost", "error", ev.Err)
	}
	if a.recorder != nil {
		a.recorder.WriteStatus(sourceMQTT, topics.StatusDisconnected)
	}
}

func (a *Adapter) onStatusRequested(ev mqtt.StatusRequested) {
	status := topics.StatusClosed
	if a.telemetry.IsConnected() {
		status = topics.StatusOpened
	}
	a.logDebug("status requested", "directed", ev.Directed, "status", status)
	if err := a.broker.PublishSimConnectStatus(status); err != nil {
		a.logError("publishing simconnect status failed", err, "status", status)
	}
}

func (a *Adapter) onSubscribeRequested(ev mqtt.SubscribeRequested) {
	if !a.telemetry.IsConnected() {
		a.requestsDropped.Add(uint64(len(ev.Datums)))
		a.logDebug("dropping subscribe request, simulation host not connected", "datums", len(ev.Datums))
		return
	}

	for _, d := range ev.Datums {
		if err := a.telemetry.Subscribe(d.DatumName, d.Units); err != nil {
			a.logError("subscribe failed", err, "datum", d.DatumName, "units", d.Units)
		}
	}
}

func (a *Adapter) onSetValueRequested(ev mqtt.SetValueRequested) {
	req := ev.Request
	if !a.telemetry.IsConnected() {
		a.requestsDropped.Add(1)
		a.logDebug("dropping set request, simulation host not connected", "datum", req.DatumName)
		return
	}

	v := simconnect.NumberValue(req.Number)
	if req.IsText {
		v = simconnect.TextValue(req.Text)
	}
	if err := a.telemetry.Set(req.DatumName, req.ObjectID, v); err != nil {
		a.logError("set failed", err, "datum", req.DatumName, "object_id", req.ObjectID)
	}
}

func (a *Adapter) getLogger() Logger {
	a.loggerMu.RLock()
	defer a.loggerMu.RUnlock()
	return a.logger
}

func (a *Adapter) logDebug(msg string, keysAndValues ...any) {
	if logger := a.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (a *Adapter) logInfo(msg string, keysAndValues ...any) {
	if logger := a.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (a *Adapter) logWarn(msg string, keysAndValues ...any) {
	if logger := a.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (a *Adapter) logError(msg string, err error, keysAndValues ...any) {
	if logger := a.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
