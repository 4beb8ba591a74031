package transport

import (
	"context"
	"errors"
	"net"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport closed")

// Transport is the datagram primitive the voice player and reader share.
// Send and Receive may be called concurrently; Receive is called by a
// single reader goroutine.
type Transport interface {
	// Send transmits one datagram to addr. UDP is fire-and-forget: no
	// timeout is applied.
	Send(data []byte, addr net.Addr) error

	// Receive blocks until a datagram arrives, ctx is cancelled or the
	// transport is closed. The returned buffer belongs to the caller until
	// it is handed back through Release.
	Receive(ctx context.Context) ([]byte, error)

	// Release returns a buffer obtained from Receive.
	Release(buf []byte)

	// LocalAddr returns the local address the transport is listening on.
	LocalAddr() net.Addr

	// Close shuts down the transport. Pending Receive calls return ErrClosed.
	Close() error
}

// Stats counts datagrams handled by a transport.
type Stats struct {
	Sent     uint64
	Received uint64
	Dropped  uint64
}
