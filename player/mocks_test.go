package player

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/voicelink/crypto"
	"github.com/opd-ai/voicelink/rtp"
	"github.com/stretchr/testify/require"
)

// fakeClock is a simulated clock: Sleep advances time instead of blocking.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// sentFrame is one datagram captured by MockTransport.
type sentFrame struct {
	Sequence  uint16
	Timestamp uint32
	SSRC      uint32
	Payload   []byte
	At        time.Time
}

// MockTransport records datagrams instead of sending them.
type MockTransport struct {
	mu     sync.Mutex
	clock  *fakeClock
	sent   []sentFrame
	onSend func(n int)
	failAt int
}

func NewMockTransport(clock *fakeClock) *MockTransport {
	return &MockTransport{clock: clock}
}

func (m *MockTransport) Send(data []byte, _ net.Addr) error {
	p := rtp.Parse(data)
	frame := sentFrame{
		Sequence:  p.Sequence(),
		Timestamp: p.Timestamp(),
		SSRC:      p.Source(),
		Payload:   append([]byte(nil), p.Payload()...),
	}
	if m.clock != nil {
		frame.At = m.clock.Now()
	}

	m.mu.Lock()
	if m.failAt > 0 && len(m.sent)+1 == m.failAt {
		m.mu.Unlock()
		return errors.New("network unreachable")
	}
	m.sent = append(m.sent, frame)
	n := len(m.sent)
	hook := m.onSend
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

func (m *MockTransport) Receive(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *MockTransport) Release([]byte) {}

func (m *MockTransport) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345}
}

func (m *MockTransport) Close() error { return nil }

func (m *MockTransport) Sent() []sentFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentFrame, len(m.sent))
	copy(out, m.sent)
	return out
}

// plainAdapter frames payloads without encrypting them.
type plainAdapter struct{}

func (plainAdapter) Mode() crypto.Mode { return crypto.Mode{Name: "plain"} }

func (plainAdapter) Encrypt(header, plaintext []byte) ([]byte, error) {
	return append(append([]byte(nil), header...), plaintext...), nil
}

func (plainAdapter) Decrypt(p *rtp.Packet) ([]byte, error) { return p.Payload(), nil }

func (plainAdapter) Close() error { return nil }

// frameSource yields a fixed list of frames, optionally forever.
type frameSource struct {
	mu       sync.Mutex
	frames   [][]byte
	pos      int
	opus     bool
	infinite bool
	closed   int
}

func newFrameSource(opus bool, frames ...string) *frameSource {
	s := &frameSource{opus: opus}
	for _, f := range frames {
		s.frames = append(s.frames, []byte(f))
	}
	return s
}

func (s *frameSource) ReadFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.infinite {
		f := s.frames[s.pos%len(s.frames)]
		s.pos++
		return f, nil
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *frameSource) IsOpus() bool { return s.opus }

func (s *frameSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *frameSource) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// loopSource is a frameSource that can rewind.
type loopSource struct {
	*frameSource
	rewinds int
}

func (l *loopSource) Rewind() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pos = 0
	l.rewinds++
	return nil
}

// upperEncoder "encodes" by prefixing the frame with 'E'.
type upperEncoder struct{}

func (upperEncoder) Encode(pcm []byte) ([]byte, error) {
	return append([]byte{'E'}, pcm...), nil
}

func (upperEncoder) Close() error { return nil }

// testPlayer builds a player wired to a mock transport and a fake clock.
func testPlayer(t *testing.T, mutate func(*Options)) (*Player, *MockTransport, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	tr := NewMockTransport(clock)

	opts := Options{
		SSRC:         0xCAFE,
		Slot:         crypto.NewSlot(plainAdapter{}),
		Transport:    tr,
		Endpoint:     &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000},
		Clock:        clock,
		SilenceTrail: -1,
	}
	if mutate != nil {
		mutate(&opts)
	}

	p, err := New(opts)
	require.NoError(t, err)
	return p, tr, clock
}

// runPlayer starts Run and returns a channel carrying its result.
func runPlayer(ctx context.Context, p *Player) <-chan error {
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func payloads(frames []sentFrame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = string(f.Payload)
	}
	return out
}
