package session

import "errors"

var (
	// ErrNotEstablished is returned by media operations before Establish.
	ErrNotEstablished = errors.New("voice session not established")

	// ErrNoTransport indicates a session was created without a transport.
	ErrNoTransport = errors.New("session requires a transport")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("voice session closed")
)
