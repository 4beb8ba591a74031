package audio

import "errors"

// Settings errors.
var (
	// ErrInvalidChannels indicates a channel count other than mono or stereo.
	ErrInvalidChannels = errors.New("invalid channel count")

	// ErrInvalidSamplingRate indicates a rate the Opus codec cannot run at.
	ErrInvalidSamplingRate = errors.New("invalid sampling rate")

	// ErrInvalidFrameLength indicates a frame duration Opus does not support.
	ErrInvalidFrameLength = errors.New("invalid frame length")
)

// Codec errors.
var (
	// ErrFrameSize indicates PCM input that is not exactly one frame.
	ErrFrameSize = errors.New("pcm frame has wrong size")

	// ErrEmptyFrame indicates an empty encoded frame passed to a decoder.
	ErrEmptyFrame = errors.New("empty audio frame")

	// ErrCodecClosed indicates use of an encoder after Close.
	ErrCodecClosed = errors.New("codec closed")
)

// Source errors.
var (
	// ErrPacketTooLarge indicates a length-prefixed packet above the Opus maximum.
	ErrPacketTooLarge = errors.New("opus packet too large")

	// ErrInvalidVolume indicates a negative or excessive volume.
	ErrInvalidVolume = errors.New("invalid volume")

	// ErrNotSeekable indicates a rewind on a source whose reader cannot seek.
	ErrNotSeekable = errors.New("source is not seekable")
)
