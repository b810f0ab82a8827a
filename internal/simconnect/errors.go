package simconnect

import "errors"

// Domain-specific errors for telemetry operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyConnected is returned by Connect while a session is open or being opened.
	ErrAlreadyConnected = errors.New("simconnect: already connected")

	// ErrNotConnected is returned when an operation needs an open session.
	ErrNotConnected = errors.New("simconnect: not connected")

	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("simconnect: client closed")

	// ErrConnectionFailed is returned when the relay cannot be reached or the
	// handshake fails.
	ErrConnectionFailed = errors.New("simconnect: connection failed")

	// ErrSubscribeFailed is returned when a data definition cannot be registered.
	ErrSubscribeFailed = errors.New("simconnect: subscribe failed")

	// ErrSetFailed is returned when a value cannot be written to a sim object.
	ErrSetFailed = errors.New("simconnect: set failed")

	// ErrProtocol is returned when a relay frame is malformed.
	ErrProtocol = errors.New("simconnect: protocol error")
)
