package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"

	pionrtp "github.com/pion/rtp"
)

const (
	// HeaderSize is the length of the fixed RTP header.
	HeaderSize = 12

	// Version is the only RTP version spoken on the voice relay.
	Version = 2

	// VoicePayloadType is the payload type agreed with the relay for voice.
	VoicePayloadType = 0x78

	// ExtensionPreambleSize is the profile + count prefix of an extension block.
	ExtensionPreambleSize = 4

	// MaxCSRC is the largest CSRC count the 4-bit header field can express.
	MaxCSRC = 15
)

var (
	// ErrTooManyCSRC indicates more CSRC entries than the header can carry.
	ErrTooManyCSRC = errors.New("too many CSRC entries")

	// ErrTooManyExtensions indicates more extension words than the 16-bit count can carry.
	ErrTooManyExtensions = errors.New("too many extension words")
)

// Packet is a read-only view over a received RTP datagram.
//
// All offsets are computed once by Parse, in the order
// header → CSRC → extension → payload → padding, and are clamped to the
// buffer so that no accessor can read out of bounds. The packet borrows buf:
// it must not be used after the buffer has been recycled.
type Packet struct {
	buf []byte

	csrcEnd    int // end of the CSRC list
	extEnd     int // end of the extension block (== header length)
	payloadEnd int // start of the trailing padding
}

// Parse wraps buf in a Packet view. It never fails and never panics:
// a truncated buffer yields a packet whose Valid method reports false
// and whose payload is empty.
func Parse(buf []byte) *Packet {
	p := &Packet{buf: buf}
	n := len(buf)
	if n < HeaderSize {
		p.csrcEnd, p.extEnd, p.payloadEnd = n, n, n
		return p
	}

	p.csrcEnd = clampEnd(HeaderSize, int(buf[0]&0x0F)*4, n)

	p.extEnd = p.csrcEnd
	if buf[0]&0x10 != 0 {
		if p.csrcEnd+ExtensionPreambleSize > n {
			p.extEnd = n
		} else {
			count := int(binary.BigEndian.Uint16(buf[p.csrcEnd+2:]))
			p.extEnd = clampEnd(p.csrcEnd+ExtensionPreambleSize, count*4, n)
		}
	}

	p.payloadEnd = n
	if buf[0]&0x20 != 0 && n > p.extEnd {
		pad := int(buf[n-1])
		if pad > n-p.extEnd {
			pad = n - p.extEnd
		}
		p.payloadEnd = n - pad
	}
	return p
}

// clampEnd returns start+length, bounded by limit.
func clampEnd(start, length, limit int) int {
	if start > limit {
		return limit
	}
	if length > limit-start {
		return limit
	}
	return start + length
}

// Valid reports whether the buffer holds at least a fixed header.
func (p *Packet) Valid() bool { return len(p.buf) >= HeaderSize }

// Version returns the 2-bit RTP version.
func (p *Packet) Version() uint8 {
	if !p.Valid() {
		return 0
	}
	return p.buf[0] >> 6
}

// Padded reports whether the padding bit is set.
func (p *Packet) Padded() bool { return p.Valid() && p.buf[0]&0x20 != 0 }

// Extended reports whether the extension bit is set.
func (p *Packet) Extended() bool { return p.Valid() && p.buf[0]&0x10 != 0 }

// CSRCCount returns the 4-bit CSRC count from the header.
func (p *Packet) CSRCCount() int {
	if !p.Valid() {
		return 0
	}
	return int(p.buf[0] & 0x0F)
}

// Marker reports whether the marker bit is set.
func (p *Packet) Marker() bool { return p.Valid() && p.buf[1]&0x80 != 0 }

// PayloadType returns the 7-bit payload type.
func (p *Packet) PayloadType() uint8 {
	if !p.Valid() {
		return 0
	}
	return p.buf[1] & 0x7F
}

// Sequence returns the sequence number.
func (p *Packet) Sequence() uint16 {
	if !p.Valid() {
		return 0
	}
	return binary.BigEndian.Uint16(p.buf[2:])
}

// Timestamp returns the RTP timestamp.
func (p *Packet) Timestamp() uint32 {
	if !p.Valid() {
		return 0
	}
	return binary.BigEndian.Uint32(p.buf[4:])
}

// Source returns the synchronization source (SSRC).
func (p *Packet) Source() uint32 {
	if !p.Valid() {
		return 0
	}
	return binary.BigEndian.Uint32(p.buf[8:])
}

// CSRC returns the contributing source list.
func (p *Packet) CSRC() Uint32Array {
	if !p.Valid() {
		return Uint32Array{}
	}
	return NewUint32Array(p.buf[:p.csrcEnd], HeaderSize, p.CSRCCount())
}

// hasExtensionPreamble reports whether the profile and count are readable.
func (p *Packet) hasExtensionPreamble() bool {
	return p.Extended() && p.csrcEnd+ExtensionPreambleSize <= len(p.buf)
}

// ExtensionProfile returns the extension profile, or 0 without an extension.
func (p *Packet) ExtensionProfile() uint16 {
	if !p.hasExtensionPreamble() {
		return 0
	}
	return binary.BigEndian.Uint16(p.buf[p.csrcEnd:])
}

// ExtensionCount returns the declared number of extension words, or 0
// without an extension. The declared count may exceed what the buffer holds;
// Extensions is clamped, this value is not.
func (p *Packet) ExtensionCount() uint16 {
	if !p.hasExtensionPreamble() {
		return 0
	}
	return binary.BigEndian.Uint16(p.buf[p.csrcEnd+2:])
}

// Extensions returns the extension words that are present in the buffer.
func (p *Packet) Extensions() Uint32Array {
	if !p.hasExtensionPreamble() {
		return Uint32Array{}
	}
	return NewUint32Array(p.buf[:p.extEnd], p.csrcEnd+ExtensionPreambleSize, int(p.ExtensionCount()))
}

// FixedHeaderLen returns the length of the fixed header plus the CSRC list.
func (p *Packet) FixedHeaderLen() int { return p.csrcEnd }

// HeaderLen returns the length of everything before the payload.
func (p *Packet) HeaderLen() int { return p.extEnd }

// Header returns the bytes before the payload.
func (p *Packet) Header() []byte { return p.buf[:p.extEnd] }

// Payload returns the payload bytes. It is empty, never nil-indexed, for
// malformed packets.
func (p *Packet) Payload() []byte { return p.buf[p.extEnd:p.payloadEnd] }

// Padding returns the trailing padding bytes, including the count byte.
func (p *Packet) Padding() []byte { return p.buf[p.payloadEnd:] }

// Bytes returns the whole datagram.
func (p *Packet) Bytes() []byte { return p.buf }

// Fields copies the parsed packet into a Fields value.
func (p *Packet) Fields() Fields {
	f := Fields{
		Version:     p.Version(),
		Padded:      p.Padded(),
		Extension:   p.Extended(),
		Marker:      p.Marker(),
		PayloadType: p.PayloadType(),
		Sequence:    p.Sequence(),
		Timestamp:   p.Timestamp(),
		Source:      p.Source(),
		CSRC:        p.CSRC().Values(),
	}
	if f.Extension {
		f.ExtensionProfile = p.ExtensionProfile()
		f.Extensions = p.Extensions().Values()
	}
	if payload := p.Payload(); len(payload) > 0 {
		f.Payload = append([]byte(nil), payload...)
	}
	if padding := p.Padding(); len(padding) > 0 {
		f.Padding = append([]byte(nil), padding...)
	}
	return f
}

// String returns a compact description for logging.
func (p *Packet) String() string {
	return fmt.Sprintf("RTP{v=%d pt=%d seq=%d ts=%d ssrc=%d csrc=%d ext=%t payload=%d}",
		p.Version(), p.PayloadType(), p.Sequence(), p.Timestamp(), p.Source(),
		p.CSRCCount(), p.Extended(), len(p.Payload()))
}

// Fields holds every logical field of an RTP packet, for Build and for
// Packet.Fields.
type Fields struct {
	Version          uint8
	Padded           bool
	Extension        bool
	ExtensionProfile uint16
	Extensions       []uint32
	CSRC             []uint32
	Marker           bool
	PayloadType      uint8
	Sequence         uint16
	Timestamp        uint32
	Source           uint32
	Payload          []byte

	// Padding is written verbatim. The caller must make its last byte equal
	// len(Padding), as RTP requires; Build does not check it.
	Padding []byte
}

// Build encodes f into a new datagram. The padding bit is set when
// f.Padded is true or f.Padding is non-empty.
func Build(f Fields) ([]byte, error) {
	if len(f.CSRC) > MaxCSRC {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyCSRC, len(f.CSRC), MaxCSRC)
	}
	if len(f.Extensions) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d", ErrTooManyExtensions, len(f.Extensions))
	}

	pkt := pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        f.Version & 0x03,
			Marker:         f.Marker,
			PayloadType:    f.PayloadType & 0x7F,
			SequenceNumber: f.Sequence,
			Timestamp:      f.Timestamp,
			SSRC:           f.Source,
			CSRC:           f.CSRC,
		},
		Payload: f.Payload,
	}

	if f.Extension {
		// pion re-encodes RFC 8285 profiles element by element, so the words
		// travel as a plain RFC 3550 block and the profile is patched in
		// after marshaling.
		words := make([]byte, len(f.Extensions)*4)
		for i, word := range f.Extensions {
			binary.BigEndian.PutUint32(words[i*4:], word)
		}
		pkt.Header.Extension = true
		pkt.Header.ExtensionProfile = rawExtensionProfile
		if err := pkt.Header.SetExtension(0, words); err != nil {
			return nil, fmt.Errorf("set extension block: %w", err)
		}
	}

	size := pkt.MarshalSize()
	out := make([]byte, size+len(f.Padding))
	if _, err := pkt.MarshalTo(out); err != nil {
		return nil, fmt.Errorf("marshal rtp packet: %w", err)
	}

	if f.Extension {
		binary.BigEndian.PutUint16(out[HeaderSize+len(f.CSRC)*4:], f.ExtensionProfile)
	}
	if f.Padded || len(f.Padding) > 0 {
		out[0] |= 0x20
		copy(out[size:], f.Padding)
	}
	return out, nil
}

// rawExtensionProfile is any profile pion treats as an opaque RFC 3550
// extension.
const rawExtensionProfile = 0x0000

// VoiceHeader builds the 12-byte header used for every outgoing voice frame:
// version 2, no padding, no extension, no CSRC, no marker, payload type 0x78.
// The first two bytes are therefore always 0x80 0x78.
func VoiceHeader(sequence uint16, timestamp, ssrc uint32) [HeaderSize]byte {
	var out [HeaderSize]byte
	h := pionrtp.Header{
		Version:        Version,
		PayloadType:    VoicePayloadType,
		SequenceNumber: sequence,
		Timestamp:      timestamp,
		SSRC:           ssrc,
	}
	// The buffer is exactly MarshalSize() for a header without CSRC or
	// extensions, so MarshalTo cannot fail.
	_, _ = h.MarshalTo(out[:])
	return out
}

// IsRTCP reports whether a datagram carries an RTCP packet (types 200–204)
// rather than RTP.
func IsRTCP(buf []byte) bool {
	return len(buf) >= 2 && buf[1] >= 200 && buf[1] <= 204
}
