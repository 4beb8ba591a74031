package audio

import (
	"fmt"
	"time"
)

// Opus-compatible defaults.
const (
	DefaultChannels     uint8  = 2
	DefaultSamplingRate uint32 = 48000
	DefaultFrameLength  uint32 = 20 // milliseconds

	// bytesPerSample is the width of one 16-bit PCM sample of one channel.
	bytesPerSample = 2
)

// Settings describes the PCM format and framing of a voice stream. It is an
// immutable value: all derived sizes are computed together by NewSettings,
// and a session that needs different settings builds a new value.
type Settings struct {
	channels        uint8
	samplingRate    uint32
	frameLength     uint32
	sampleSize      int
	samplesPerFrame int
	frameSize       int
}

// NewSettings validates the stream parameters and derives the frame sizes.
//
// Parameters:
//   - channels: 1 (mono) or 2 (stereo)
//   - samplingRate: one of the Opus rates 8000, 12000, 16000, 24000 or 48000 Hz
//   - frameLength: frame duration in milliseconds, one of 10, 20, 40 or 60
//
// Returns:
//   - Settings: the complete settings value
//   - error: ErrInvalidChannels, ErrInvalidSamplingRate or ErrInvalidFrameLength
func NewSettings(channels uint8, samplingRate, frameLength uint32) (Settings, error) {
	if channels != 1 && channels != 2 {
		return Settings{}, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}

	switch samplingRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return Settings{}, fmt.Errorf("%w: %d Hz", ErrInvalidSamplingRate, samplingRate)
	}

	switch frameLength {
	case 10, 20, 40, 60:
	default:
		return Settings{}, fmt.Errorf("%w: %d ms", ErrInvalidFrameLength, frameLength)
	}

	sampleSize := bytesPerSample * int(channels)
	samplesPerFrame := int(samplingRate/1000) * int(frameLength)

	return Settings{
		channels:        channels,
		samplingRate:    samplingRate,
		frameLength:     frameLength,
		sampleSize:      sampleSize,
		samplesPerFrame: samplesPerFrame,
		frameSize:       samplesPerFrame * sampleSize,
	}, nil
}

// DefaultSettings returns stereo 48 kHz audio in 20 ms frames: 960 samples
// and 3840 bytes per frame.
func DefaultSettings() Settings {
	s, err := NewSettings(DefaultChannels, DefaultSamplingRate, DefaultFrameLength)
	if err != nil {
		panic(err)
	}
	return s
}

// Channels returns the number of interleaved channels.
func (s Settings) Channels() uint8 { return s.channels }

// SamplingRate returns the sampling rate in Hz.
func (s Settings) SamplingRate() uint32 { return s.samplingRate }

// FrameLength returns the frame duration in milliseconds.
func (s Settings) FrameLength() uint32 { return s.frameLength }

// FrameDuration returns the frame duration.
func (s Settings) FrameDuration() time.Duration {
	return time.Duration(s.frameLength) * time.Millisecond
}

// SampleSize returns the size in bytes of one sample across all channels.
func (s Settings) SampleSize() int { return s.sampleSize }

// SamplesPerFrame returns the number of samples per channel in one frame.
// The RTP timestamp advances by this amount every frame.
func (s Settings) SamplesPerFrame() int { return s.samplesPerFrame }

// FrameSize returns the size in bytes of one PCM frame.
func (s Settings) FrameSize() int { return s.frameSize }

// IsZero reports whether s was not produced by NewSettings.
func (s Settings) IsZero() bool { return s.frameSize == 0 }

// String returns a compact description for logs.
func (s Settings) String() string {
	return fmt.Sprintf("%dch/%dHz/%dms", s.channels, s.samplingRate, s.frameLength)
}
