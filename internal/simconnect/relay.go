package simconnect

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Relay defaults.
const (
	defaultRelayConnectTimeout = 10 * time.Second
	defaultRelayWriteTimeout   = 5 * time.Second
	defaultRelayAddress        = "localhost:5557"

	// inboxSize is the number of received frames buffered between pumps.
	inboxSize = 256
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// RelayDialer opens sessions with a SimConnect relay: a process on the
// simulator machine that forwards SimConnect calls over a socket.
//
// The relay pushes frames at any time. They are buffered and Notify is
// called; the owner then calls Client.SignalReceiveMessage, which drains
// the buffer on its own goroutine, like a window message pump.
type RelayDialer struct {
	// ConnectTimeout bounds dial plus handshake. Default: 10 seconds.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each frame write. Default: 5 seconds.
	WriteTimeout time.Duration

	// Notify is called from the receive goroutine whenever frames are
	// waiting. It must not block. May be nil.
	Notify func()

	// Logger is optional.
	Logger Logger
}

var _ Dialer = (*RelayDialer)(nil)

// RelayStats holds per-session counters.
type RelayStats struct {
	FramesTx      uint64
	FramesRx      uint64
	FramesDropped uint64
}

// relayProvider is one relay session.
type relayProvider struct {
	conn         net.Conn
	handlers     Handlers
	notify       func()
	writeTimeout time.Duration
	logger       Logger

	writeMu sync.Mutex
	inbox   chan []byte

	done      *closeOnce
	wg        sync.WaitGroup
	shutdown  sync.Once
	closeErr  error

	// readErr is set once by the receive goroutine when the stream breaks.
	readErr atomic.Pointer[error]

	framesTx      atomic.Uint64
	framesRx      atomic.Uint64
	framesDropped atomic.Uint64
}

var _ Provider = (*relayProvider)(nil)

// Dial connects to the relay at handle, announces appName and starts the
// receive goroutine.
func (d *RelayDialer) Dial(ctx context.Context, handle Handle, appName string, h Handlers) (Provider, error) {
	connectTimeout := d.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultRelayConnectTimeout
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = defaultRelayWriteTimeout
	}

	network, address, err := parseRelayURL(string(handle))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	p := newRelayProvider(conn, h, d.Notify, writeTimeout, d.Logger)
	if err := p.hello(connectCtx, appName); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}

	p.wg.Add(1)
	go p.receiveLoop()

	return p, nil
}

func newRelayProvider(conn net.Conn, h Handlers, notify func(), writeTimeout time.Duration, logger Logger) *relayProvider {
	return &relayProvider{
		conn:         conn,
		handlers:     h,
		notify:       notify,
		writeTimeout: writeTimeout,
		logger:       logger,
		inbox:        make(chan []byte, inboxSize),
		done:         newCloseOnce(),
	}
}

// parseRelayURL parses a relay URL into network and address.
func parseRelayURL(relayURL string) (network, address string, err error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		if u.Path == "" {
			return "", "", errors.New("unix URL has no socket path")
		}
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = defaultRelayAddress
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// hello performs the synchronous handshake, honouring the context deadline.
func (p *relayProvider) hello(ctx context.Context, appName string) error {
	frame, err := encodeHello(appName)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(p.writeTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := p.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	if _, err := p.conn.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	msgType, _, err := readFrame(p.conn)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if msgType != msgHelloAck {
		return fmt.Errorf("%w: unexpected response type 0x%04X", ErrProtocol, msgType)
	}

	// Clear deadlines: the receive loop blocks until data or Close.
	if err := p.conn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clear deadline: %w", err)
	}
	return nil
}

// readFrame reads one complete frame from r.
func readFrame(r io.Reader) (uint16, []byte, error) {
	var size [2]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return 0, nil, fmt.Errorf("read size: %w", err)
	}

	msgSize := binary.BigEndian.Uint16(size[:])
	if msgSize < 2 {
		return 0, nil, fmt.Errorf("%w: invalid frame size %d", ErrProtocol, msgSize)
	}

	frame := make([]byte, 2+int(msgSize))
	copy(frame, size[:])
	if _, err := io.ReadFull(r, frame[2:]); err != nil {
		return 0, nil, fmt.Errorf("read frame: %w", err)
	}
	return parseFrame(frame)
}

// receiveLoop buffers inbound frames until the stream breaks or Close.
func (p *relayProvider) receiveLoop() {
	defer p.wg.Done()

	for {
		msgType, payload, err := readFrame(p.conn)
		if err != nil {
			if !p.isClosed() {
				p.readErr.Store(&err)
				p.logError("relay read failed", err)
				p.signal()
			}
			return
		}

		p.framesRx.Add(1)
		frame := make([]byte, 2+len(payload))
		binary.BigEndian.PutUint16(frame[:2], msgType)
		copy(frame[2:], payload)

		if !p.enqueue(msgType, frame) {
			return
		}
		p.signal()
	}
}

// enqueue buffers frame. Data frames are dropped when the inbox is full
// (stale-poll expiry re-polls them); control frames wait for room. It
// returns false when the session closed while waiting.
func (p *relayProvider) enqueue(msgType uint16, frame []byte) bool {
	if msgType == msgData {
		select {
		case p.inbox <- frame:
		default:
			p.framesDropped.Add(1)
			p.logError("relay inbox full, dropping frame", nil, "type", msgType)
		}
		return true
	}

	select {
	case p.inbox <- frame:
		return true
	default:
	}
	p.signal()
	select {
	case p.inbox <- frame:
		return true
	case <-p.done.Done():
		return false
	}
}

func (p *relayProvider) signal() {
	if p.notify != nil {
		p.notify()
	}
}

// ReceiveMessage dispatches every buffered frame, then reports a broken
// stream if the receive goroutine hit one.
func (p *relayProvider) ReceiveMessage() error {
	if p.isClosed() {
		return ErrClosed
	}

	for {
		select {
		case frame := <-p.inbox:
			p.dispatch(binary.BigEndian.Uint16(frame[:2]), frame[2:])
			if p.isClosed() {
				// A handler released the session.
				return nil
			}
		default:
			if errp := p.readErr.Load(); errp != nil {
				return fmt.Errorf("%w: %w", ErrConnectionFailed, *errp)
			}
			return nil
		}
	}
}

func (p *relayProvider) dispatch(msgType uint16, payload []byte) {
	h := p.handlers
	switch msgType {
	case msgOpen:
		name, err := decodeOpen(payload)
		if err != nil {
			p.logError("bad open frame", err)
			return
		}
		if h.OnOpen != nil {
			h.OnOpen(name)
		}
	case msgQuit:
		if h.OnQuit != nil {
			h.OnQuit()
		}
	case msgException:
		code, err := decodeException(payload)
		if err != nil {
			p.logError("bad exception frame", err)
			return
		}
		if h.OnException != nil {
			h.OnException(code)
		}
	case msgData:
		d, err := decodeData(payload)
		if err != nil {
			p.logError("bad data frame", err)
			return
		}
		if h.OnData != nil {
			h.OnData(d.requestID, d.objectID, d.value)
		}
	default:
		p.logError("unknown relay frame", nil, "type", msgType)
	}
}

func (p *relayProvider) AddToDataDefinition(defID uint32, datumName, units string, kind DataType) error {
	frame, err := encodeAddToDataDefinition(defID, datumName, units, kind)
	if err != nil {
		return err
	}
	return p.send(frame)
}

func (p *relayProvider) RegisterDataDefineStruct(defID uint32, kind DataType) error {
	frame, err := encodeRegisterStruct(defID, kind)
	if err != nil {
		return err
	}
	return p.send(frame)
}

func (p *relayProvider) RequestDataOnSimObjectType(requestID, defID uint32, objectType ObjectType) error {
	frame, err := encodeRequestDataByType(requestID, defID, objectType)
	if err != nil {
		return err
	}
	return p.send(frame)
}

func (p *relayProvider) SetDataOnSimObject(defID, objectID uint32, v Value) error {
	frame, err := encodeSetData(defID, objectID, v)
	if err != nil {
		return err
	}
	return p.send(frame)
}

// send writes one frame with the write deadline applied.
func (p *relayProvider) send(frame []byte) error {
	if p.isClosed() {
		return ErrClosed
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := p.conn.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	p.framesTx.Add(1)
	return nil
}

// Close says goodbye, closes the socket and waits for the receive
// goroutine. Safe to call multiple times.
func (p *relayProvider) Close() error {
	p.shutdown.Do(func() {
		if frame, err := encodeFrame(msgGoodbye, nil); err == nil {
			//nolint:errcheck // best effort, the relay also notices the socket closing
			p.send(frame)
		}

		p.done.Close()
		p.closeErr = p.conn.Close()
		p.wg.Wait()
	})
	return p.closeErr
}

func (p *relayProvider) isClosed() bool {
	select {
	case <-p.done.Done():
		return true
	default:
		return false
	}
}

// Stats returns per-session counters.
func (p *relayProvider) Stats() RelayStats {
	return RelayStats{
		FramesTx:      p.framesTx.Load(),
		FramesRx:      p.framesRx.Load(),
		FramesDropped: p.framesDropped.Load(),
	}
}

func (p *relayProvider) logError(msg string, err error, keysAndValues ...any) {
	if p.logger != nil {
		p.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
