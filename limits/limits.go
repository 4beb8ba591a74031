// Package limits provides centralized size limits for voice datagrams.
// This ensures consistent validation across the transport, player and reader.
package limits

import (
	"errors"
	"fmt"
)

const (
	// RTPHeaderSize is the fixed RTP header length without CSRCs or extensions.
	RTPHeaderSize = 12

	// EncryptionOverhead is the authentication tag appended by every supported
	// cipher (Poly1305 and GCM both produce 16 bytes).
	EncryptionOverhead = 16 // golang.org/x/crypto/nacl/secretbox.Overhead

	// NonceSuffixSize is the size of the raw nonce counter appended to
	// AEAD-framed packets.
	NonceSuffixSize = 4

	// MaxDatagramSize is the largest datagram the transport will send.
	// It matches the common Ethernet MTU so voice packets are never fragmented.
	MaxDatagramSize = 1500

	// ReceiveBufferSize is the size of each pooled receive buffer. It is larger
	// than MaxDatagramSize so that oversized datagrams are read in full and
	// rejected instead of being silently truncated.
	ReceiveBufferSize = 4096

	// MaxOpusPacket is the largest single Opus packet (RFC 6716 §3.2.1).
	MaxOpusPacket = 1275

	// MaxVoicePayload is the largest plaintext payload that still fits in a
	// datagram after header, tag and nonce suffix.
	MaxVoicePayload = MaxDatagramSize - RTPHeaderSize - EncryptionOverhead - 24
)

var (
	// ErrDatagramEmpty indicates an empty datagram was provided
	ErrDatagramEmpty = errors.New("empty datagram")

	// ErrDatagramTooLarge indicates a datagram exceeds the maximum size
	ErrDatagramTooLarge = errors.New("datagram too large")

	// ErrDatagramTooShort indicates a datagram cannot hold an RTP header
	ErrDatagramTooShort = errors.New("datagram too short")
)

// ValidateSize validates data against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrDatagramEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrDatagramTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateOutgoing validates a fully framed datagram before it is handed to
// the socket.
func ValidateOutgoing(datagram []byte) error {
	return ValidateSize(datagram, MaxDatagramSize)
}

// ValidateIncoming validates a received datagram before it is parsed.
// A datagram must at least carry a fixed RTP header.
func ValidateIncoming(datagram []byte) error {
	if err := ValidateSize(datagram, ReceiveBufferSize); err != nil {
		return err
	}
	if len(datagram) < RTPHeaderSize {
		return fmt.Errorf("%w: size %d below header size %d", ErrDatagramTooShort, len(datagram), RTPHeaderSize)
	}
	return nil
}

// ValidateOpusPacket validates an encoded voice frame.
func ValidateOpusPacket(frame []byte) error {
	return ValidateSize(frame, MaxOpusPacket)
}
