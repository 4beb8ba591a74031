package crypto

import "errors"

// Adapter construction errors
var (
	// ErrInvalidKeyLength indicates a secret key of the wrong size for its mode
	ErrInvalidKeyLength = errors.New("invalid secret key length")

	// ErrUnsupportedMode indicates an encryption mode name this package does not implement
	ErrUnsupportedMode = errors.New("unsupported encryption mode")

	// ErrNoCommonMode indicates that negotiation found no mode both sides support
	ErrNoCommonMode = errors.New("no common encryption mode")
)

// Per-packet errors
var (
	// ErrDecryptFailure indicates a packet that failed authentication or was
	// too short to hold the mode's framing. Callers drop the packet.
	ErrDecryptFailure = errors.New("voice packet decryption failed")

	// ErrHeaderTooShort indicates an Encrypt call with less than a fixed RTP header
	ErrHeaderTooShort = errors.New("rtp header too short")

	// ErrAdapterClosed indicates use of an adapter after Close
	ErrAdapterClosed = errors.New("encryption adapter closed")
)
