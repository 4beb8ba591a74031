package receiver

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/voicelink/audio"
	"github.com/opd-ai/voicelink/crypto"
	"github.com/opd-ai/voicelink/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReaderValidation(t *testing.T) {
	_, err := NewReader(Options{Slot: crypto.NewSlot(nil)})
	assert.ErrorIs(t, err, ErrNoTransport)

	_, err = NewReader(Options{Transport: NewMockTransport()})
	assert.ErrorIs(t, err, ErrNoSlot)

	r, err := NewReader(Options{Transport: NewMockTransport(), Slot: crypto.NewSlot(nil)})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxBuffered, r.maxBuffered)
	assert.Equal(t, audio.DefaultSettings(), r.settings)
}

func TestReaderDropsUnroutablePackets(t *testing.T) {
	r, _, sealer := testReader(t, Options{})
	s, err := r.Listen(1, Encoded)
	require.NoError(t, err)
	r.Bind(1, 100)

	valid := seal(t, sealer, 1, 100, "voice")

	wrongType := append([]byte(nil), valid...)
	wrongType[1] = 0x60

	rtcp := append([]byte(nil), valid...)
	rtcp[1] = 200

	tampered := append([]byte(nil), valid...)
	tampered[len(tampered)-6] ^= 0xFF

	tests := []struct {
		name     string
		datagram []byte
	}{
		{"empty", nil},
		{"runt", valid[:5]},
		{"rtcp", rtcp},
		{"wrong payload type", wrongType},
		{"no listeners", seal(t, sealer, 2, 999, "voice")},
		{"authentication failure", tampered},
		{"truncated ciphertext", valid[:14]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := r.Stats().Dropped
			assert.Zero(t, r.handle(tt.datagram))
			assert.Equal(t, before+1, r.Stats().Dropped)
			assert.Zero(t, s.Buffered())
		})
	}
}

func TestReaderDropsWithoutAdapter(t *testing.T) {
	r, _, sealer := testReader(t, Options{})
	_, err := r.Listen(1, Encoded)
	require.NoError(t, err)
	r.Bind(1, 100)

	r.slot.Store(nil)
	assert.Zero(t, r.handle(seal(t, sealer, 1, 100, "voice")))
	assert.Equal(t, uint64(1), r.Stats().Dropped)
}

func TestReaderFanOut(t *testing.T) {
	dec := &countingDecoder{}
	r, _, sealer := testReader(t, Options{
		Decoders: func() (audio.Decoder, error) { return dec, nil },
	})

	raw, err := r.Listen(1, Encoded)
	require.NoError(t, err)
	pcmA, err := r.Listen(1, Decoded)
	require.NoError(t, err)
	pcmB, err := r.Listen(1, Decoded)
	require.NoError(t, err)
	other, err := r.Listen(2, Encoded)
	require.NoError(t, err)
	r.Bind(1, 100)
	r.Bind(2, 200)

	assert.Equal(t, 3, r.handle(seal(t, sealer, 7, 100, "hello")))

	frame, ok := raw.Read()
	assert.True(t, ok)
	assert.Equal(t, "hello", string(frame))

	frame, ok = pcmA.Read()
	assert.True(t, ok)
	assert.Equal(t, "pcm:hello", string(frame))

	frame, ok = pcmB.Read()
	assert.True(t, ok)
	assert.Equal(t, "pcm:hello", string(frame))

	assert.Equal(t, int64(1), dec.calls.Load(), "packet decoded once for all streams")
	assert.Zero(t, other.Buffered())
	assert.Equal(t, Stats{Received: 1, Delivered: 1}, r.Stats())
}

func TestReaderPendingUntilBound(t *testing.T) {
	r, _, sealer := testReader(t, Options{})

	s, err := r.Listen(5, Encoded)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Pending(5))
	assert.Zero(t, r.Listeners(500))

	assert.Zero(t, r.handle(seal(t, sealer, 1, 500, "early")))

	r.Bind(5, 500)
	assert.Zero(t, r.Pending(5))
	assert.Equal(t, 1, r.Listeners(500))

	ssrc, ok := r.SourceOf(5)
	assert.True(t, ok)
	assert.Equal(t, uint32(500), ssrc)

	// A stream opened after the bind attaches directly.
	late, err := r.Listen(5, Encoded)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Listeners(500))

	assert.Equal(t, 2, r.handle(seal(t, sealer, 2, 500, "on time")))
	frame, _ := s.Read()
	assert.Equal(t, "on time", string(frame))
	frame, _ = late.Read()
	assert.Equal(t, "on time", string(frame))
}

func TestReaderRebindIsAtomic(t *testing.T) {
	r, _, sealer := testReader(t, Options{})

	a, _ := r.Listen(1, Encoded)
	b, _ := r.Listen(1, Encoded)
	c, _ := r.Listen(2, Encoded)
	r.Bind(1, 100)
	r.Bind(2, 200)

	steps := []struct {
		ssrc    uint32
		payload string
		want    int
	}{
		{100, "before", 2},
		{200, "other", 1},
	}
	for _, st := range steps {
		assert.Equal(t, st.want, r.handle(seal(t, sealer, 1, st.ssrc, st.payload)))
	}

	r.Rebind(1, 300)

	assert.Zero(t, r.Listeners(100))
	assert.Equal(t, 2, r.Listeners(300))
	assert.ElementsMatch(t, []*Stream{a, b}, r.listeners[300])
	assert.Equal(t, []*Stream{c}, r.listeners[200])

	assert.Zero(t, r.handle(seal(t, sealer, 2, 100, "stale")))
	assert.Equal(t, 2, r.handle(seal(t, sealer, 3, 300, "after")))

	for _, s := range []*Stream{a, b} {
		first, _ := s.Read()
		second, _ := s.Read()
		assert.Equal(t, []string{"before", "after"}, []string{string(first), string(second)})
	}
	frame, _ := c.Read()
	assert.Equal(t, "other", string(frame))
	assert.Zero(t, c.Buffered())

	// Rebinding to the same id is a no-op.
	r.Rebind(1, 300)
	assert.Equal(t, 2, r.Listeners(300))
}

func TestReaderRebindUnderLoad(t *testing.T) {
	r, _, sealer := testReader(t, Options{MaxBuffered: 10000})
	s, _ := r.Listen(1, Encoded)
	r.Bind(1, 100)

	oldWire := seal(t, sealer, 1, 100, "old")
	newWire := seal(t, sealer, 2, 200, "new")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.handle(oldWire)
				r.handle(newWire)
			}
		}
	}()

	time.Sleep(5 * time.Millisecond)
	r.Rebind(1, 200)
	time.Sleep(5 * time.Millisecond)
	close(stop)
	wg.Wait()

	// Every "old" packet precedes every "new" one: no packet crossed the move.
	seenNew := false
	for s.Buffered() > 0 {
		frame, _ := s.Read()
		switch string(frame) {
		case "new":
			seenNew = true
		case "old":
			require.False(t, seenNew, "old-id packet delivered after rebind")
		}
	}
	assert.Zero(t, r.Listeners(100))
	assert.Equal(t, 1, r.Listeners(200))
}

func TestReaderUnbind(t *testing.T) {
	r, _, sealer := testReader(t, Options{})
	s, _ := r.Listen(1, Encoded)
	r.Bind(1, 100)

	r.Unbind(1)
	r.Unbind(1)
	assert.Zero(t, r.Listeners(100))
	assert.Equal(t, 1, r.Pending(1))
	_, ok := r.SourceOf(1)
	assert.False(t, ok)

	assert.Zero(t, r.handle(seal(t, sealer, 1, 100, "gone")))
	frame, ok := s.Read()
	assert.True(t, ok)
	assert.True(t, audio.IsSilenceFrame(frame))

	r.Bind(1, 101)
	assert.Equal(t, 1, r.handle(seal(t, sealer, 2, 101, "back")))
	frame, _ = s.Read()
	assert.Equal(t, "back", string(frame))
}

func TestReaderStop(t *testing.T) {
	r, _, _ := testReader(t, Options{})
	bound, _ := r.Listen(1, Encoded)
	waiting, _ := r.Listen(2, Decoded)
	r.Bind(1, 100)

	r.Stop()
	r.Stop()

	assert.True(t, r.IsStopped())
	assert.True(t, bound.IsStopped())
	assert.True(t, waiting.IsStopped())
	assert.Zero(t, r.Listeners(100))
	assert.Zero(t, r.Pending(2))

	_, err := r.Listen(3, Encoded)
	assert.ErrorIs(t, err, ErrReaderStopped)
	assert.ErrorIs(t, r.Run(context.Background()), ErrReaderStopped)

	frame, ok := bound.Read()
	assert.Nil(t, frame)
	assert.False(t, ok)
}

func TestReaderRun(t *testing.T) {
	r, tr, sealer := testReader(t, Options{})
	s, _ := r.Listen(1, Encoded)
	r.Bind(1, 100)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	for i := 1; i <= 3; i++ {
		tr.Deliver(seal(t, sealer, uint16(i), 100, fmt.Sprintf("frame-%d", i)))
	}
	tr.Deliver([]byte{0x80})

	require.Eventually(t, func() bool { return tr.released.Load() == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, 3, s.Buffered())

	require.Eventually(t, r.running.Load, time.Second, time.Millisecond)
	assert.ErrorIs(t, r.Run(context.Background()), ErrAlreadyRunning)

	r.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestReaderRunEndsOnTransportClose(t *testing.T) {
	r, tr, _ := testReader(t, Options{})
	s, _ := r.Listen(1, Encoded)

	require.NoError(t, tr.Close())
	err := r.Run(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.True(t, r.IsStopped())
	assert.True(t, s.IsStopped())
}

func TestReaderRunContextCancel(t *testing.T) {
	r, _, _ := testReader(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, r.Run(ctx), context.DeadlineExceeded)
	assert.True(t, r.IsStopped())
}

func TestStreamUnderrun(t *testing.T) {
	settings, err := audio.NewSettings(1, 16000, 20)
	require.NoError(t, err)
	r, _, _ := testReader(t, Options{Settings: settings})

	tests := []struct {
		name string
		mode Mode
		want []byte
	}{
		{"decoded yields pcm silence", Decoded, make([]byte, settings.FrameSize())},
		{"encoded yields opus silence", Encoded, audio.SilenceFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.Listen(9, tt.mode)
			require.NoError(t, err)

			for i := 0; i < 3; i++ {
				frame, ok := s.Read()
				assert.True(t, ok)
				assert.Equal(t, tt.want, frame)
			}

			s.Stop()
			s.Stop()
			frame, ok := s.Read()
			assert.Nil(t, frame)
			assert.False(t, ok)

			_, err = s.ReadFrame()
			assert.ErrorIs(t, err, io.EOF)
			assert.Zero(t, r.Pending(9))
		})
	}
}

func TestStreamOverflowDropsOldest(t *testing.T) {
	r, _, sealer := testReader(t, Options{MaxBuffered: 3})
	s, _ := r.Listen(1, Encoded)
	r.Bind(1, 100)

	for i := 1; i <= 5; i++ {
		r.handle(seal(t, sealer, uint16(i), 100, fmt.Sprintf("p%d", i)))
	}

	assert.Equal(t, 3, s.Buffered())
	assert.Equal(t, uint64(2), s.Dropped())
	for _, want := range []string{"p3", "p4", "p5"} {
		frame, _ := s.Read()
		assert.Equal(t, want, string(frame))
	}
}

func TestStreamDecodeFailureYieldsSilence(t *testing.T) {
	r, _, sealer := testReader(t, Options{
		Decoders: func() (audio.Decoder, error) { return &countingDecoder{fail: true}, nil },
	})
	s, _ := r.Listen(1, Decoded)
	r.Bind(1, 100)

	r.handle(seal(t, sealer, 1, 100, "broken"))
	frame, ok := s.Read()
	assert.True(t, ok)
	assert.Equal(t, audio.PCMSilence(r.settings), frame)
}

func TestStreamIsSource(t *testing.T) {
	r, _, sealer := testReader(t, Options{})
	var src audio.Source
	s, _ := r.Listen(1, Encoded)
	src = s
	r.Bind(1, 100)

	assert.True(t, src.IsOpus())
	r.handle(seal(t, sealer, 1, 100, "relay"))

	frame, err := src.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "relay", string(frame))

	require.NoError(t, src.Close())
	assert.Zero(t, r.Listeners(100))
	assert.Equal(t, "decoded", Decoded.String())
	assert.Equal(t, "unknown", Mode(7).String())
}

func TestVoicePacketDecodesOnce(t *testing.T) {
	dec := &countingDecoder{}
	pkt := NewVoicePacket(1, 2, 3, []byte("opus"), dec)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pcm, err := pkt.Decoded()
			assert.NoError(t, err)
			assert.Equal(t, "pcm:opus", string(pcm))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), dec.calls.Load())
	assert.Equal(t, "opus", string(pkt.Encoded()))

	_, err := NewVoicePacket(1, 2, 3, []byte("opus"), nil).Decoded()
	assert.ErrorIs(t, err, ErrNoDecoder)
}
