package receiver

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/voicelink/crypto"
	"github.com/opd-ai/voicelink/player"
	"github.com/opd-ai/voicelink/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listSource plays a fixed list of Opus frames.
type listSource struct {
	mu     sync.Mutex
	frames [][]byte
}

func (l *listSource) ReadFrame() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.frames) == 0 {
		return nil, io.EOF
	}
	f := l.frames[0]
	l.frames = l.frames[1:]
	return f, nil
}

func (l *listSource) IsOpus() bool { return true }
func (l *listSource) Close() error { return nil }

func TestLoopbackOverUDP(t *testing.T) {
	if testing.Short() {
		t.Skip("uses real sockets")
	}

	for _, mode := range crypto.ModeNames() {
		t.Run(mode, func(t *testing.T) {
			outbound, err := transport.NewUDPTransport("127.0.0.1:0")
			require.NoError(t, err)
			defer outbound.Close()
			inbound, err := transport.NewUDPTransport("127.0.0.1:0")
			require.NoError(t, err)
			defer inbound.Close()

			sealer, err := crypto.NewAdapter(mode, testKey)
			require.NoError(t, err)
			opener, err := crypto.NewAdapter(mode, testKey)
			require.NoError(t, err)
			sendSlot, recvSlot := crypto.NewSlot(sealer), crypto.NewSlot(opener)
			defer sendSlot.Close()
			defer recvSlot.Close()

			r, err := NewReader(Options{Transport: inbound, Slot: recvSlot})
			require.NoError(t, err)
			stream, err := r.Listen(42, Encoded)
			require.NoError(t, err)
			r.Bind(42, 0xBEEF)

			p, err := player.New(player.Options{
				SSRC:         0xBEEF,
				Slot:         sendSlot,
				Transport:    outbound,
				Endpoint:     inbound.LocalAddr(),
				SilenceTrail: -1,
			})
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			readerDone := make(chan error, 1)
			go func() { readerDone <- r.Run(ctx) }()
			playerDone := make(chan error, 1)
			go func() { playerDone <- p.Run(ctx) }()

			want := []string{"one", "two", "three", "four", "five"}
			src := &listSource{}
			for _, w := range want {
				src.frames = append(src.frames, []byte(w))
			}
			require.NoError(t, p.Enqueue(src))

			require.Eventually(t, func() bool { return stream.Buffered() == len(want) },
				2*time.Second, 5*time.Millisecond)

			var got []string
			for range want {
				frame, ok := stream.Read()
				require.True(t, ok)
				got = append(got, string(frame))
			}
			assert.Equal(t, want, got)

			p.Stop()
			r.Stop()
			assert.NoError(t, <-playerDone)
			assert.NoError(t, <-readerDone)
			assert.Equal(t, uint64(len(want)), p.Stats().Sent)
		})
	}
}
