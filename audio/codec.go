package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// SilenceFrame is the Opus packet for 20 ms of silence. It is sent after a
// source finishes so that receivers do not interpolate across the gap.
var SilenceFrame = []byte{0xF8, 0xFF, 0xFE}

// IsSilenceFrame reports whether frame is the Opus silence packet.
func IsSilenceFrame(frame []byte) bool {
	return bytes.Equal(frame, SilenceFrame)
}

// PCMSilence returns one frame of zeroed PCM for s.
func PCMSilence(s Settings) []byte {
	return make([]byte, s.FrameSize())
}

// Encoder turns one frame of s16le PCM into one Opus packet.
//
// The player calls Encode from its pacing goroutine only; implementations
// need not be safe for concurrent use.
type Encoder interface {
	// Encode encodes exactly one frame of PCM.
	Encode(pcm []byte) ([]byte, error)
	// Close releases encoder resources
	Close() error
}

// Decoder turns one Opus packet into one frame of s16le PCM.
type Decoder interface {
	Decode(frame []byte) ([]byte, error)
}

// DecoderFactory builds a decoder. A reader creates one decoder per
// speaker, since Opus decoding is stateful.
type DecoderFactory func() (Decoder, error)

// PassthroughEncoder forwards PCM frames unchanged after checking their
// size. It stands in where no Opus encoder is wired, such as loopback
// tests where both ends agree on raw frames.
type PassthroughEncoder struct {
	settings Settings
	closed   atomic.Bool
}

// NewPassthroughEncoder creates an encoder that validates frames against s.
func NewPassthroughEncoder(s Settings) *PassthroughEncoder {
	logrus.WithFields(logrus.Fields{
		"function": "NewPassthroughEncoder",
		"settings": s.String(),
	}).Debug("Creating passthrough encoder")

	return &PassthroughEncoder{settings: s}
}

// Encode returns a copy of pcm. It fails with ErrCodecClosed after Close.
func (e *PassthroughEncoder) Encode(pcm []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrCodecClosed
	}
	if len(pcm) != e.settings.FrameSize() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(pcm), e.settings.FrameSize())
	}
	out := make([]byte, len(pcm))
	copy(out, pcm)
	return out, nil
}

// Close marks the encoder closed. It is idempotent.
func (e *PassthroughEncoder) Close() error {
	e.closed.Store(true)
	return nil
}

// OpusDecoder decodes Opus packets with the pure Go pion/opus decoder and
// returns s16le PCM laid out for the configured settings.
type OpusDecoder struct {
	mu       sync.Mutex
	decoder  opus.Decoder
	settings Settings
	scratch  []byte
}

// NewOpusDecoder creates a decoder producing frames for s.
func NewOpusDecoder(s Settings) *OpusDecoder {
	logrus.WithFields(logrus.Fields{
		"function": "NewOpusDecoder",
		"settings": s.String(),
	}).Debug("Creating Opus decoder")

	return &OpusDecoder{
		decoder:  opus.NewDecoder(),
		settings: s,
		scratch:  make([]byte, s.FrameSize()),
	}
}

// NewOpusDecoderFactory returns a factory building an OpusDecoder per call.
func NewOpusDecoderFactory(s Settings) DecoderFactory {
	return func() (Decoder, error) {
		return NewOpusDecoder(s), nil
	}
}

// Decode decodes one Opus packet into a frame of FrameSize bytes. Missing
// samples are zero-filled, and mono output is duplicated across channels
// when the settings are stereo.
//
// Parameters:
//   - frame: one Opus packet
//
// Returns:
//   - []byte: a freshly allocated PCM frame
//   - error: ErrEmptyFrame or the decoder's error
func (d *OpusDecoder) Decode(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}

	out := make([]byte, d.settings.FrameSize())
	if IsSilenceFrame(frame) {
		return out, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.scratch {
		d.scratch[i] = 0
	}
	bandwidth, isStereo, err := d.decoder.Decode(frame, d.scratch)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "OpusDecoder.Decode",
			"frame_size": len(frame),
			"error":      err.Error(),
		}).Debug("Opus decode failed")
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	if isStereo || d.settings.Channels() == 1 {
		copy(out, d.scratch)
	} else {
		upmix(out, d.scratch)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "OpusDecoder.Decode",
		"bandwidth": bandwidth.String(),
		"is_stereo": isStereo,
	}).Debug("Opus frame decoded")

	return out, nil
}

// upmix writes each mono sample of src into both channels of dst.
func upmix(dst, src []byte) {
	for i := 0; i+1 < len(src) && 2*i+3 < len(dst); i += bytesPerSample {
		sample := binary.LittleEndian.Uint16(src[i:])
		binary.LittleEndian.PutUint16(dst[2*i:], sample)
		binary.LittleEndian.PutUint16(dst[2*i+2:], sample)
	}
}
