package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/pool/pbytes"
	"github.com/opd-ai/voicelink/limits"
	"github.com/sirupsen/logrus"
)

// readPollInterval bounds how long a read blocks before the context and the
// closed flag are checked again.
const readPollInterval = 100 * time.Millisecond

// UDPTransport implements Transport over a net.PacketConn. Receive buffers
// are drawn from a shared byte pool and returned through Release.
type UDPTransport struct {
	conn      net.PacketConn
	closed    atomic.Bool
	closeOnce sync.Once

	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

// NewUDPTransport creates a UDP transport listening on listenAddr, such as
// ":0" for an ephemeral port.
func NewUDPTransport(listenAddr string) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "NewUDPTransport",
			"listen_addr": listenAddr,
			"error":       err.Error(),
		}).Error("Failed to open UDP socket")
		return nil, fmt.Errorf("listen udp %s: %w", listenAddr, err)
	}
	return NewPacketTransport(conn), nil
}

// NewPacketTransport wraps an existing packet connection. The transport
// takes ownership of conn and closes it on Close.
func NewPacketTransport(conn net.PacketConn) *UDPTransport {
	logrus.WithFields(logrus.Fields{
		"function":   "NewPacketTransport",
		"local_addr": conn.LocalAddr().String(),
	}).Info("UDP transport created")

	return &UDPTransport{conn: conn}
}

// Send transmits data to addr after checking the datagram size limits.
func (t *UDPTransport) Send(data []byte, addr net.Addr) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := limits.ValidateOutgoing(data); err != nil {
		return err
	}

	if _, err := t.conn.WriteTo(data, addr); err != nil {
		if t.closed.Load() {
			return ErrClosed
		}
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	t.sent.Add(1)
	return nil
}

// Receive returns the next datagram no larger than limits.MaxDatagramSize.
// Oversized and empty datagrams are counted as dropped and skipped.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, error) {
	buf := pbytes.GetLen(limits.ReceiveBufferSize)

	for {
		if t.closed.Load() {
			pbytes.Put(buf)
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			pbytes.Put(buf)
			return nil, err
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			pbytes.Put(buf)
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("receive: %w", err)
		}

		if n == 0 || n > limits.MaxDatagramSize {
			t.dropped.Add(1)
			logrus.WithFields(logrus.Fields{
				"function": "UDPTransport.Receive",
				"size":     n,
				"from":     addr.String(),
			}).Debug("Dropping datagram outside size limits")
			continue
		}

		t.received.Add(1)
		return buf[:n], nil
	}
}

// Release returns a Receive buffer to the pool.
func (t *UDPTransport) Release(buf []byte) {
	if buf != nil {
		pbytes.Put(buf)
	}
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Stats returns the datagram counters.
func (t *UDPTransport) Stats() Stats {
	return Stats{
		Sent:     t.sent.Load(),
		Received: t.received.Load(),
		Dropped:  t.dropped.Load(),
	}
}

// Close shuts down the transport. It is safe to call more than once.
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		err = t.conn.Close()

		stats := t.Stats()
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.Close",
			"sent":     stats.Sent,
			"received": stats.Received,
			"dropped":  stats.Dropped,
		}).Info("UDP transport closed")
	})
	return err
}

// ResolveEndpoint builds the relay address announced by signaling.
func ResolveEndpoint(ip string, port int) (*net.UDPAddr, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve endpoint %s:%d: %w", ip, port, err)
	}
	return addr, nil
}
