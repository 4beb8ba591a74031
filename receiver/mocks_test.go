package receiver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/opd-ai/voicelink/crypto"
	"github.com/opd-ai/voicelink/transport"
	"github.com/stretchr/testify/require"
)

// MockTransport feeds queued datagrams to Receive.
type MockTransport struct {
	inbound  chan []byte
	closed   chan struct{}
	once     sync.Once
	released atomic.Int64
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (m *MockTransport) Deliver(datagram []byte) { m.inbound <- datagram }

func (m *MockTransport) Send([]byte, net.Addr) error { return nil }

func (m *MockTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closed:
		return nil, transport.ErrClosed
	case buf := <-m.inbound:
		return buf, nil
	}
}

func (m *MockTransport) Release([]byte) { m.released.Add(1) }

func (m *MockTransport) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345}
}

func (m *MockTransport) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

// countingDecoder prefixes payloads with "pcm:" and counts calls.
type countingDecoder struct {
	calls atomic.Int64
	fail  bool
}

func (d *countingDecoder) Decode(frame []byte) ([]byte, error) {
	d.calls.Add(1)
	if d.fail {
		return nil, errors.New("corrupt frame")
	}
	return append([]byte("pcm:"), frame...), nil
}

var testKey = []byte("0123456789abcdef0123456789abcdef")

// testReader builds a reader on a mock transport with an AES-GCM adapter
// in its slot. The returned adapter seals packets for it.
func testReader(t *testing.T, opts Options) (*Reader, *MockTransport, crypto.Adapter) {
	t.Helper()

	tr := NewMockTransport()
	opener, err := crypto.NewAdapter(crypto.ModeAES256GCMRTPSize, testKey)
	require.NoError(t, err)
	sealer, err := crypto.NewAdapter(crypto.ModeAES256GCMRTPSize, testKey)
	require.NoError(t, err)

	opts.Transport = tr
	opts.Slot = crypto.NewSlot(opener)
	r, err := NewReader(opts)
	require.NoError(t, err)

	t.Cleanup(func() {
		r.Stop()
		_ = opts.Slot.Close()
		_ = sealer.Close()
	})
	return r, tr, sealer
}

func seal(t *testing.T, a crypto.Adapter, seq uint16, ssrc uint32, payload string) []byte {
	t.Helper()
	wire, err := crypto.SealVoice(a, seq, uint32(seq)*960, ssrc, []byte(payload))
	require.NoError(t, err)
	return wire
}
