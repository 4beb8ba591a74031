package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/opd-ai/voicelink/limits"
	"github.com/sirupsen/logrus"
)

// Source is a pull-based producer of audio frames. The player calls
// ReadFrame once per frame period.
type Source interface {
	// ReadFrame returns the next frame, or io.EOF when the source is exhausted.
	ReadFrame() ([]byte, error)
	// IsOpus reports whether frames are already Opus packets. PCM sources
	// are run through the player's encoder.
	IsOpus() bool
	// Close releases the source.
	Close() error
}

// Rewinder is implemented by sources that can restart from the beginning.
// Loop continuation policies require it.
type Rewinder interface {
	Rewind() error
}

// PCMSource reads s16le PCM from an io.Reader in whole frames. A short
// final frame is zero-padded.
type PCMSource struct {
	mu       sync.Mutex
	reader   io.Reader
	settings Settings
	done     bool
}

// NewPCMSource wraps r as a PCM source with the frame size of s.
func NewPCMSource(r io.Reader, s Settings) *PCMSource {
	return &PCMSource{reader: r, settings: s}
}

// ReadFrame returns the next FrameSize bytes of PCM.
func (p *PCMSource) ReadFrame() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return nil, io.EOF
	}

	frame := make([]byte, p.settings.FrameSize())
	n, err := io.ReadFull(p.reader, frame)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		p.done = true
		return frame, nil // tail of n bytes, zero padded
	case errors.Is(err, io.EOF):
		p.done = true
		return nil, io.EOF
	default:
		logrus.WithFields(logrus.Fields{
			"function":   "PCMSource.ReadFrame",
			"bytes_read": n,
			"error":      err.Error(),
		}).Warn("PCM source read failed")
		return nil, fmt.Errorf("read pcm frame: %w", err)
	}
}

// IsOpus returns false.
func (p *PCMSource) IsOpus() bool { return false }

// Rewind seeks the underlying reader back to the start.
func (p *PCMSource) Rewind() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	seeker, ok := p.reader.(io.Seeker)
	if !ok {
		return ErrNotSeekable
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind pcm source: %w", err)
	}
	p.done = false
	return nil
}

// Close closes the reader if it is an io.Closer.
func (p *PCMSource) Close() error {
	if c, ok := p.reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpusPacketSource reads Opus packets stored with a 2-byte big-endian
// length prefix, the format written by WriteOpusPacket.
type OpusPacketSource struct {
	mu     sync.Mutex
	reader io.Reader
}

// NewOpusPacketSource wraps r as a source of pre-encoded Opus packets.
func NewOpusPacketSource(r io.Reader) *OpusPacketSource {
	return &OpusPacketSource{reader: r}
}

// ReadFrame returns the next packet. A truncated trailing packet is treated
// as the end of the stream.
func (o *OpusPacketSource) ReadFrame() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var prefix [2]byte
	if _, err := io.ReadFull(o.reader, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	size := int(binary.BigEndian.Uint16(prefix[:]))
	if size > limits.MaxOpusPacket {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, size)
	}

	packet := make([]byte, size)
	if _, err := io.ReadFull(o.reader, packet); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return packet, nil
}

// IsOpus returns true.
func (o *OpusPacketSource) IsOpus() bool { return true }

// Rewind seeks the underlying reader back to the start.
func (o *OpusPacketSource) Rewind() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	seeker, ok := o.reader.(io.Seeker)
	if !ok {
		return ErrNotSeekable
	}
	_, err := seeker.Seek(0, io.SeekStart)
	return err
}

// Close closes the reader if it is an io.Closer.
func (o *OpusPacketSource) Close() error {
	if c, ok := o.reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WriteOpusPacket writes packet with the length prefix read by
// OpusPacketSource.
func WriteOpusPacket(w io.Writer, packet []byte) error {
	if err := limits.ValidateOpusPacket(packet); err != nil {
		return err
	}
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(packet)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(packet)
	return err
}
