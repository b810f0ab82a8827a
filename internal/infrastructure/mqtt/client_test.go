package mqtt

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/fsmosquito/fsmosquito-client/internal/infrastructure/config"
	"github.com/fsmosquito/fsmosquito-client/internal/schedule"
	"github.com/fsmosquito/fsmosquito-client/internal/topics"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		ServerURL: "tcp://broker.local:1883",
		QoS:       1,
		KeepAlive: 15,
		Timeouts: config.MQTTTimeoutConfig{
			Connect: 10,
			Publish: 5,
		},
		Reconnect: config.MQTTReconnectConfig{
			BaseDelay:     5,
			MinMultiplier: 2,
			MaxMultiplier: 11,
		},
	}
}

// mockTransport records every call and lets tests inject failures.
type mockTransport struct {
	mu            sync.Mutex
	connectErr    error
	subscribeErr  error
	failPublishes int

	connects    int
	disconnects int
	handlers    []TransportHandlers
	filters     [][]string
	published   []OutboundMessage
}

func (m *mockTransport) Connect(_ context.Context, h TransportHandlers) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.connectErr != nil {
		return m.connectErr
	}
	m.handlers = append(m.handlers, h)
	return nil
}

func (m *mockTransport) Subscribe(filters []string, _ byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filters)
	return m.subscribeErr
}

func (m *mockTransport) Publish(msg OutboundMessage, _ byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPublishes > 0 {
		m.failPublishes--
		return errors.New("broker unavailable")
	}
	m.published = append(m.published, msg)
	return nil
}

func (m *mockTransport) Disconnect(time.Duration) {
	m.mu.Lock()
	m.disconnects++
	m.mu.Unlock()
}

func (m *mockTransport) SetConnectErr(err error) {
	m.mu.Lock()
	m.connectErr = err
	m.mu.Unlock()
}

func (m *mockTransport) FailPublishes(n int) {
	m.mu.Lock()
	m.failPublishes = n
	m.mu.Unlock()
}

func (m *mockTransport) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

func (m *mockTransport) Published() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutboundMessage(nil), m.published...)
}

func (m *mockTransport) PublishedTopics() []string {
	var out []string
	for _, msg := range m.Published() {
		out = append(out, msg.Topic+"="+string(msg.Payload))
	}
	return out
}

// Handlers returns the handlers of the most recent session.
func (m *mockTransport) Handlers() TransportHandlers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[len(m.handlers)-1]
}

// recorder captures client events.
type recorder struct {
	mu        sync.Mutex
	opened    int
	closed    []error
	status    []StatusRequested
	subscribe []SubscribeRequested
	set       []SetValueRequested
	received  []string
	sent      []string
}

func record(c *Client) *recorder {
	r := &recorder{}
	e := c.Events()
	e.Opened.Subscribe(func(Opened) { r.mu.Lock(); r.opened++; r.mu.Unlock() })
	e.Closed.Subscribe(func(ev Closed) { r.mu.Lock(); r.closed = append(r.closed, ev.Err); r.mu.Unlock() })
	e.StatusRequested.Subscribe(func(ev StatusRequested) { r.mu.Lock(); r.status = append(r.status, ev); r.mu.Unlock() })
	e.SubscribeRequested.Subscribe(func(ev SubscribeRequested) {
		r.mu.Lock()
		r.subscribe = append(r.subscribe, ev)
		r.mu.Unlock()
	})
	e.SetValueRequested.Subscribe(func(ev SetValueRequested) { r.mu.Lock(); r.set = append(r.set, ev); r.mu.Unlock() })
	e.MessageReceived.Subscribe(func(ev MessageReceived) { r.mu.Lock(); r.received = append(r.received, ev.Topic); r.mu.Unlock() })
	e.MessageTransmitted.Subscribe(func(ev MessageTransmitted) { r.mu.Lock(); r.sent = append(r.sent, ev.Topic); r.mu.Unlock() })
	return r
}

func newTestClient(t *testing.T) (*Client, *mockTransport, *schedule.Manual) {
	t.Helper()
	tr := &mockTransport{}
	sched := schedule.NewManual()
	c := NewClient(testConfig(), "alice", tr, sched)
	c.randIntN = func(int) int { return 0 }
	t.Cleanup(func() { c.Close() })
	return c, tr, sched
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_SubscribesAndAnnounces(t *testing.T) {
	c, tr, _ := newTestClient(t)
	rec := record(c)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("IsConnected() = false, want true")
	}

	wantFilters := []string{
		"fsm/client/all/simconnect/report_status",
		"fsm/client/alice/simconnect/report_status",
		"fsm/client/alice/simconnect/subscribe",
		"fsm/client/alice/simconnect/set_data/+/+",
	}
	if len(tr.filters) != 1 || !reflect.DeepEqual(tr.filters[0], wantFilters) {
		t.Errorf("filters = %v, want %v", tr.filters, wantFilters)
	}
	if rec.opened != 1 {
		t.Errorf("Opened raised %d times, want 1", rec.opened)
	}

	pub := tr.Published()
	if len(pub) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub))
	}
	want := OutboundMessage{
		Topic:       "fsm/client/alice/status",
		Payload:     []byte("Connected"),
		ContentType: ContentText,
		Retain:      true,
	}
	if !reflect.DeepEqual(pub[0], want) {
		t.Errorf("status message = %+v, want %+v", pub[0], want)
	}
}

func TestConnect_SubscribeFailureKeepsSession(t *testing.T) {
	c, tr, _ := newTestClient(t)
	tr.subscribeErr = errors.New("not authorised")

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after subscribe failure")
	}
}

func TestConnect_Preconditions(t *testing.T) {
	c, _, _ := newTestClient(t)

	if err := c.Disconnect(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Disconnect() before Connect = %v, want ErrNotConnected", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() = %v, want ErrAlreadyConnected", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() after Close = %v, want ErrClosed", err)
	}
	if err := c.Disconnect(); !errors.Is(err, ErrClosed) {
		t.Errorf("Disconnect() after Close = %v, want ErrClosed", err)
	}
	if err := c.Publish(topics.ClientStatus, Text("x"), false); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after Close = %v, want ErrClosed", err)
	}
}

func TestConnect_InvalidQoS(t *testing.T) {
	cfg := testConfig()
	cfg.QoS = 3
	tr := &mockTransport{}
	c := NewClient(cfg, "alice", tr, schedule.NewManual())
	defer c.Close()

	if err := c.Connect(context.Background()); !errors.Is(err, ErrInvalidQoS) {
		t.Fatalf("Connect() = %v, want ErrInvalidQoS", err)
	}
	if tr.Connects() != 0 {
		t.Errorf("transport connects = %d, want 0", tr.Connects())
	}
}

func TestConnect_Failure(t *testing.T) {
	c, tr, sched := newTestClient(t)
	tr.SetConnectErr(errors.New("connection refused"))

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() = %v, want ErrConnectionFailed", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
	if sched.Pending() != 0 {
		t.Errorf("Pending() = %d, want no reconnect after an explicit Connect", sched.Pending())
	}
}

func TestDisconnect_NoReconnect(t *testing.T) {
	c, tr, sched := newTestClient(t)
	rec := record(c)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	if tr.disconnects != 1 {
		t.Errorf("transport disconnects = %d, want 1", tr.disconnects)
	}
	if len(rec.closed) != 1 || rec.closed[0] != nil {
		t.Errorf("Closed events = %v, want one with nil error", rec.closed)
	}
	if sched.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", sched.Pending())
	}
}

// =============================================================================
// Reconnect Tests
// =============================================================================

func TestConnectionLost_SingleRandomisedAttempt(t *testing.T) {
	c, tr, sched := newTestClient(t)
	rec := record(c)

	var gotN int
	c.randIntN = func(n int) int { gotN = n; return 9 }

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	lost := errors.New("keepalive timeout")
	tr.Handlers().OnConnectionLost(lost)

	if c.IsConnected() {
		t.Fatal("IsConnected() = true after connection lost")
	}
	if len(rec.closed) != 1 || !errors.Is(rec.closed[0], lost) {
		t.Errorf("Closed events = %v", rec.closed)
	}
	if gotN != 10 {
		t.Errorf("randIntN(%d), want 10 choices for multipliers 2..11", gotN)
	}

	// 5s * (2 + 9) = 55s
	sched.Advance(54 * time.Second)
	if tr.Connects() != 1 {
		t.Fatalf("reconnected early after 54s")
	}
	sched.Advance(time.Second)
	if tr.Connects() != 2 {
		t.Fatalf("Connects() = %d, want 2 after 55s", tr.Connects())
	}
	if !c.IsConnected() || rec.opened != 2 {
		t.Errorf("connected = %v, opened = %d", c.IsConnected(), rec.opened)
	}
}

func TestConnectionLost_ReconnectFailureGivesUp(t *testing.T) {
	c, tr, sched := newTestClient(t)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	tr.SetConnectErr(errors.New("connection refused"))
	tr.Handlers().OnConnectionLost(errors.New("EOF"))

	sched.Advance(time.Minute)
	sched.Advance(time.Hour)

	if tr.Connects() != 2 {
		t.Errorf("Connects() = %d, want exactly one retry", tr.Connects())
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true")
	}
	if sched.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", sched.Pending())
	}
}

func TestConnectionLost_StaleSessionIgnored(t *testing.T) {
	c, tr, sched := newTestClient(t)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	old := tr.Handlers()
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	old.OnConnectionLost(errors.New("late signal"))

	if !c.IsConnected() {
		t.Error("stale connection-lost signal dropped the live session")
	}
	if sched.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", sched.Pending())
	}
}

func TestClose_CancelsPendingReconnect(t *testing.T) {
	c, tr, sched := newTestClient(t)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	tr.Handlers().OnConnectionLost(errors.New("EOF"))
	c.Close()

	sched.Advance(time.Hour)
	if tr.Connects() != 1 {
		t.Errorf("Connects() = %d, want 1", tr.Connects())
	}
}

func TestScheduleReconnect_AfterFailedConnect(t *testing.T) {
	c, tr, sched := newTestClient(t)
	tr.SetConnectErr(errors.New("connection refused"))

	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() = %v, want ErrConnectionFailed", err)
	}
	c.ScheduleReconnect()
	c.ScheduleReconnect()
	if sched.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", sched.Pending())
	}

	tr.SetConnectErr(nil)
	// 5s * 2 with randIntN pinned to 0
	sched.Advance(9 * time.Second)
	if tr.Connects() != 1 {
		t.Fatalf("reconnected early after 9s")
	}
	sched.Advance(time.Second)
	if tr.Connects() != 2 || !c.IsConnected() {
		t.Errorf("Connects() = %d, connected = %v after 10s", tr.Connects(), c.IsConnected())
	}
}

func TestScheduleReconnect_NoOp(t *testing.T) {
	c, tr, sched := newTestClient(t)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c.ScheduleReconnect()
	if sched.Pending() != 0 {
		t.Errorf("Pending() = %d while connected, want 0", sched.Pending())
	}

	c.Close()
	c.ScheduleReconnect()
	if sched.Pending() != 0 {
		t.Errorf("Pending() = %d after Close, want 0", sched.Pending())
	}
	sched.Advance(time.Hour)
	if tr.Connects() != 1 {
		t.Errorf("Connects() = %d, want 1", tr.Connects())
	}
}

// =============================================================================
// Queue Tests
// =============================================================================

func TestPublish_FIFOAcrossReconnect(t *testing.T) {
	c, tr, _ := newTestClient(t)

	if err := c.Publish(topics.SimConnectStatus, Text("A"), false); err != nil {
		t.Fatalf("Publish(A) error = %v", err)
	}
	if err := c.Publish(topics.SimConnectStatus, Text("B"), false); err != nil {
		t.Fatalf("Publish(B) error = %v", err)
	}
	if c.QueueLen() != 2 || len(tr.Published()) != 0 {
		t.Fatalf("QueueLen() = %d, published = %d; want 2 queued, none sent", c.QueueLen(), len(tr.Published()))
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	want := []string{
		"fsm/client/alice/simconnect/status=A",
		"fsm/client/alice/simconnect/status=B",
		"fsm/client/alice/status=Connected",
	}
	if got := tr.PublishedTopics(); !reflect.DeepEqual(got, want) {
		t.Errorf("published = %v, want %v", got, want)
	}
	if c.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0", c.QueueLen())
	}
}

func TestPublish_FailureRequeuesAtHeadAndHalts(t *testing.T) {
	c, tr, sched := newTestClient(t)
	rec := record(c)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tr.FailPublishes(1)
	if err := c.Publish(topics.SimConnectStatus, Text("A"), false); err != nil {
		t.Fatalf("Publish(A) error = %v", err)
	}
	if err := c.Publish(topics.SimConnectStatus, Text("B"), false); err != nil {
		t.Fatalf("Publish(B) error = %v", err)
	}

	// A failed once; B must not overtake it even though the transport
	// would now accept it.
	if got := len(tr.Published()); got != 1 {
		t.Fatalf("published %d messages while halted, want only the first status", got)
	}
	if c.QueueLen() != 2 {
		t.Fatalf("QueueLen() = %d, want 2", c.QueueLen())
	}
	if s := c.Stats(); s.SendFailures != 1 || s.Queued != 2 {
		t.Errorf("Stats() = %+v", s)
	}

	tr.Handlers().OnConnectionLost(errors.New("EOF"))
	sched.Advance(10 * time.Second)

	want := []string{
		"fsm/client/alice/status=Connected",
		"fsm/client/alice/simconnect/status=A",
		"fsm/client/alice/simconnect/status=B",
		"fsm/client/alice/status=Connected",
	}
	if got := tr.PublishedTopics(); !reflect.DeepEqual(got, want) {
		t.Errorf("published = %v, want %v", got, want)
	}
	if len(rec.sent) != 4 {
		t.Errorf("MessageTransmitted raised %d times, want 4", len(rec.sent))
	}
}

func TestPublish_Helpers(t *testing.T) {
	c, tr, _ := newTestClient(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.PublishVariableValue("PLANE ALTITUDE", 0, 3500.5); err != nil {
		t.Fatalf("PublishVariableValue() error = %v", err)
	}
	if err := c.PublishSimConnectStatus(topics.StatusOpened); err != nil {
		t.Fatalf("PublishSimConnectStatus() error = %v", err)
	}

	pub := tr.Published()
	value := pub[len(pub)-2]
	if value.Topic != "fsm/client/alice/v/0/plane_altitude" || string(value.Payload) != "3500.5" ||
		value.ContentType != ContentJSON || !value.Retain {
		t.Errorf("variable value = %+v", value)
	}
	status := pub[len(pub)-1]
	if status.Topic != "fsm/client/alice/simconnect/status" || string(status.Payload) != "Opened" || status.Retain {
		t.Errorf("simconnect status = %+v", status)
	}
}

func TestPublish_Invalid(t *testing.T) {
	c, _, _ := newTestClient(t)

	if err := c.Publish("", Text("x"), false, "ignored"); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: err = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish(topics.ClientStatus, Structured(func() {}), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("unencodable payload: err = %v, want ErrPublishFailed", err)
	}
	big := make([]byte, maxPayloadSize+1)
	if err := c.Publish(topics.ClientStatus, Bytes(big), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload: err = %v, want ErrPublishFailed", err)
	}
	if c.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, rejected messages were queued", c.QueueLen())
	}
}

// =============================================================================
// Inbound Routing Tests
// =============================================================================

func TestInbound_Routing(t *testing.T) {
	tests := []struct {
		name      string
		topic     string
		payload   string
		status    []StatusRequested
		subscribe int
		set       []topics.SetValue
	}{
		{
			name:   "broadcast status request",
			topic:  "fsm/client/all/simconnect/report_status",
			status: []StatusRequested{{Directed: false}},
		},
		{
			name:    "directed status request with message",
			topic:   "fsm/client/alice/simconnect/report_status",
			payload: `{"message":"REPORT_STATUS"}`,
			status:  []StatusRequested{{Directed: true}},
		},
		{
			name:    "status request with other message",
			topic:   "fsm/client/alice/simconnect/report_status",
			payload: `{"message":"hello"}`,
		},
		{
			name:      "subscribe request",
			topic:     "fsm/client/alice/simconnect/subscribe",
			payload:   `[{"datumName":"PLANE ALTITUDE","units":"feet"},{"datumName":"GENERAL ENG RPM:1","units":"rpm"}]`,
			subscribe: 1,
		},
		{
			name:    "set value request",
			topic:   "fsm/client/alice/simconnect/set_data/1/THROTTLE_LEVER",
			payload: `{"value":50}`,
			set:     []topics.SetValue{{DatumName: "THROTTLE LEVER", ObjectID: 1, Number: 50}},
		},
		{
			name:    "malformed subscribe body",
			topic:   "fsm/client/alice/simconnect/subscribe",
			payload: `{"datumName":`,
		},
		{
			name:    "other client's topic",
			topic:   "fsm/client/bob/simconnect/subscribe",
			payload: `[{"datumName":"PLANE ALTITUDE","units":"feet"}]`,
		},
		{
			name:    "non UTF-8 payload",
			topic:   "fsm/client/alice/simconnect/subscribe",
			payload: "\xff\xfe",
		},
		{
			name:  "unrelated topic",
			topic: "fsm/client/alice/something/else",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, tr, _ := newTestClient(t)
			rec := record(c)
			if err := c.Connect(context.Background()); err != nil {
				t.Fatalf("Connect() error = %v", err)
			}

			tr.Handlers().OnMessage(tt.topic, []byte(tt.payload))

			if !reflect.DeepEqual(rec.status, tt.status) {
				t.Errorf("status requests = %v, want %v", rec.status, tt.status)
			}
			if len(rec.subscribe) != tt.subscribe {
				t.Errorf("subscribe requests = %d, want %d", len(rec.subscribe), tt.subscribe)
			}
			var set []topics.SetValue
			for _, ev := range rec.set {
				set = append(set, ev.Request)
			}
			if !reflect.DeepEqual(set, tt.set) {
				t.Errorf("set requests = %+v, want %+v", set, tt.set)
			}
			if !reflect.DeepEqual(rec.received, []string{tt.topic}) {
				t.Errorf("MessageReceived = %v, want [%s]", rec.received, tt.topic)
			}
		})
	}
}

func TestInbound_SubscribeDatumsInOrder(t *testing.T) {
	c, tr, _ := newTestClient(t)
	rec := record(c)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tr.Handlers().OnMessage("fsm/client/alice/simconnect/subscribe",
		[]byte(`[{"datumName":"B","units":"x"},{"datumName":"A","units":"y"}]`))

	want := []topics.Datum{{DatumName: "B", Units: "x"}, {DatumName: "A", Units: "y"}}
	if len(rec.subscribe) != 1 || !reflect.DeepEqual(rec.subscribe[0].Datums, want) {
		t.Errorf("datums = %+v, want %+v", rec.subscribe, want)
	}
	if c.Stats().Received != 1 {
		t.Errorf("Stats().Received = %d, want 1", c.Stats().Received)
	}
}

func TestInbound_HandlerPanicRecovered(t *testing.T) {
	c, tr, _ := newTestClient(t)
	logger := &mockLogger{}
	c.SetLogger(logger)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	c.Events().StatusRequested.Subscribe(func(StatusRequested) { panic("boom") })
	tr.Handlers().OnMessage("fsm/client/all/simconnect/report_status", nil)

	if len(logger.Errors()) == 0 {
		t.Error("panic in event handler was not logged")
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "pilot", Password: "secret"}

	opts := buildClientOptions(cfg, "alice")
	configureLWT(opts, "alice", 1)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.local:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "alice" || opts.Username != "pilot" || opts.Password != "secret" {
		t.Errorf("identity = %q %q %q", opts.ClientID, opts.Username, opts.Password)
	}
	if !opts.CleanSession || opts.AutoReconnect || opts.ConnectRetry {
		t.Errorf("session flags: clean=%v auto=%v retry=%v", opts.CleanSession, opts.AutoReconnect, opts.ConnectRetry)
	}
	if opts.KeepAlive != 15 {
		t.Errorf("KeepAlive = %d, want 15", opts.KeepAlive)
	}
	if opts.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", opts.ConnectTimeout)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set for tcp scheme")
	}

	if !opts.WillEnabled || opts.WillTopic != "fsm/client/alice/status" ||
		string(opts.WillPayload) != "Disconnected" || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("last will = %v %q %q retained=%v qos=%d",
			opts.WillEnabled, opts.WillTopic, opts.WillPayload, opts.WillRetained, opts.WillQos)
	}
}

func TestBuildClientOptions_SecureSchemes(t *testing.T) {
	tests := []struct {
		url     string
		wantTLS bool
	}{
		{"tcp://broker:1883", false},
		{"ws://broker/mqtt", false},
		{"ssl://broker:8883", true},
		{"wss://broker/mqtt", true},
		{"mqtts://broker:8883", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := testConfig()
			cfg.ServerURL = tt.url
			opts := buildClientOptions(cfg, "alice")
			if (opts.TLSConfig != nil) != tt.wantTLS {
				t.Errorf("TLS configured = %v, want %v", opts.TLSConfig != nil, tt.wantTLS)
			}
		})
	}
}

func TestPayload_Encode(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    string
		ct      ContentType
	}{
		{"bytes pass through", Bytes([]byte{0x01, 0x02}), "\x01\x02", ContentBinary},
		{"text is UTF-8", Text("Connected"), "Connected", ContentText},
		{"number is JSON", Number(-0.5), "-0.5", ContentJSON},
		{"structured is JSON", Structured(map[string]int{"a": 1}), `{"a":1}`, ContentJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ct, err := tt.payload.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(b) != tt.want || ct != tt.ct {
				t.Errorf("Encode() = %q %s, want %q %s", b, ct, tt.want, tt.ct)
			}
		})
	}
}

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *mockLogger) Debug(string, ...any) {}
func (l *mockLogger) Info(string, ...any)  {}
func (l *mockLogger) Warn(string, ...any)  {}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}
