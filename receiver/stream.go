package receiver

import (
	"io"
	"sync"

	"github.com/opd-ai/voicelink/audio"
	"github.com/sirupsen/logrus"
)

// SpeakerID is the platform identity of a speaker.
type SpeakerID uint64

// Mode selects what a stream yields.
type Mode int

const (
	// Decoded streams yield s16le PCM frames.
	Decoded Mode = iota
	// Encoded streams yield the raw Opus payloads.
	Encoded
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Decoded:
		return "decoded"
	case Encoded:
		return "encoded"
	default:
		return "unknown"
	}
}

// DefaultMaxBuffered bounds a stream's buffer to about one second of
// 20ms frames.
const DefaultMaxBuffered = 50

// Stream is one listener on one speaker. The reader appends packets; a
// consumer pulls them with Read. Stream implements audio.Source, so a
// speaker can be re-broadcast through a player.
type Stream struct {
	reader   *Reader
	speaker  SpeakerID
	mode     Mode
	settings audio.Settings
	max      int

	mu      sync.Mutex
	buffer  []*VoicePacket
	done    bool
	dropped uint64
}

func newStream(r *Reader, speaker SpeakerID, mode Mode) *Stream {
	return &Stream{
		reader:   r,
		speaker:  speaker,
		mode:     mode,
		settings: r.settings,
		max:      r.maxBuffered,
	}
}

// push appends a packet, dropping the oldest one when the buffer is full.
// It reports false once the stream is stopped.
func (s *Stream) push(pkt *VoicePacket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return false
	}
	if len(s.buffer) >= s.max {
		s.buffer[0] = nil
		s.buffer = s.buffer[1:]
		s.dropped++
	}
	s.buffer = append(s.buffer, pkt)
	return true
}

// Read pops the oldest packet in the stream's mode. With an empty buffer
// it returns a silence frame so consumers see continuous audio through an
// underrun. It returns (nil, false) only after Stop.
func (s *Stream) Read() ([]byte, bool) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, false
	}
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return s.silence(), true
	}
	pkt := s.buffer[0]
	s.buffer[0] = nil
	s.buffer = s.buffer[1:]
	s.mu.Unlock()

	if s.mode == Encoded {
		return pkt.Encoded(), true
	}

	pcm, err := pkt.Decoded()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Stream.Read",
			"speaker":  s.speaker,
			"ssrc":     pkt.SSRC,
			"sequence": pkt.Sequence,
			"error":    err.Error(),
		}).Debug("Voice packet decode failed, substituting silence")
		return s.silence(), true
	}
	return pcm, true
}

func (s *Stream) silence() []byte {
	if s.mode == Encoded {
		return append([]byte(nil), audio.SilenceFrame...)
	}
	return audio.PCMSilence(s.settings)
}

// ReadFrame implements audio.Source. It returns io.EOF after Stop.
func (s *Stream) ReadFrame() ([]byte, error) {
	frame, ok := s.Read()
	if !ok {
		return nil, io.EOF
	}
	return frame, nil
}

// IsOpus reports whether the stream yields Opus payloads.
func (s *Stream) IsOpus() bool { return s.mode == Encoded }

// Close stops the stream.
func (s *Stream) Close() error {
	s.Stop()
	return nil
}

// Stop ends the stream and detaches it from the reader. It is idempotent.
func (s *Stream) Stop() {
	if !s.markDone() {
		return
	}
	s.reader.detach(s)
}

// markDone flags the stream as stopped and drops its buffer. It reports
// whether this call stopped it.
func (s *Stream) markDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	s.buffer = nil
	return true
}

// Speaker returns the speaker the stream listens to.
func (s *Stream) Speaker() SpeakerID { return s.speaker }

// Mode returns the stream's output mode.
func (s *Stream) Mode() Mode { return s.mode }

// Buffered returns the number of packets waiting to be read.
func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Dropped returns the number of packets discarded on overflow.
func (s *Stream) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// IsStopped reports whether Stop has been called.
func (s *Stream) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
