// Package limits provides centralized size constants and validation functions
// for voice datagrams. It keeps the transport, the player and the reader in
// agreement about what a well-formed packet may look like.
//
// # Size Hierarchy
//
//   - RTPHeaderSize (12 bytes): the fixed RTP header.
//
//   - MaxOpusPacket (1275 bytes): the largest single Opus packet.
//
//   - MaxVoicePayload: the largest plaintext that still fits in one datagram
//     after the header, the 16-byte authentication tag and the largest nonce
//     suffix (24 bytes for the suffix mode).
//
//   - MaxDatagramSize (1500 bytes): the largest datagram that is sent.
//
//   - ReceiveBufferSize (4096 bytes): the size of pooled receive buffers.
//
// # Validation Functions
//
//	if err := limits.ValidateIncoming(datagram); err != nil {
//	    // ErrDatagramEmpty, ErrDatagramTooShort or ErrDatagramTooLarge
//	}
//
// For custom limits use ValidateSize:
//
//	err := limits.ValidateSize(data, 4096)
//
// The EncryptionOverhead constant matches secretbox.Overhead as well as the
// tag size of AES-256-GCM and XChaCha20-Poly1305.
package limits
