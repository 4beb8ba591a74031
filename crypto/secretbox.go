package crypto

import (
	"fmt"
	"io"
	"sync"

	"github.com/opd-ai/voicelink/rtp"
	"golang.org/x/crypto/nacl/secretbox"
)

// nonceSource selects how an XSalsa20-Poly1305 mode derives and carries
// its per-packet nonce.
type nonceSource int

const (
	// nonceFromHeader uses the first 12 header bytes, zero-padded. Nothing
	// is appended to the packet.
	nonceFromHeader nonceSource = iota

	// nonceFromCounter uses a 4-byte counter, zero-padded, appended raw.
	nonceFromCounter

	// nonceRandomSuffix uses 24 random bytes appended raw.
	nonceRandomSuffix
)

// secretboxAdapter implements the XSalsa20-Poly1305 family. These modes
// authenticate no header bytes: when a received packet carries an
// extension, its preamble and words are inside the ciphertext.
type secretboxAdapter struct {
	mode    Mode
	source  nonceSource
	mu      sync.RWMutex
	key     [KeySize]byte
	counter *nonceCounter
	entropy io.Reader
	closed  bool
}

// NewXSalsa20Poly1305 returns an adapter for xsalsa20_poly1305, whose nonce
// is the RTP header itself.
func NewXSalsa20Poly1305(key []byte, opts ...Option) (Adapter, error) {
	return newSecretboxAdapter(ModeXSalsa20Poly1305, nonceFromHeader, key, opts)
}

// NewXSalsa20Poly1305Lite returns an adapter for xsalsa20_poly1305_lite,
// which appends a 4-byte nonce counter.
func NewXSalsa20Poly1305Lite(key []byte, opts ...Option) (Adapter, error) {
	return newSecretboxAdapter(ModeXSalsa20Poly1305Lite, nonceFromCounter, key, opts)
}

// NewXSalsa20Poly1305Suffix returns an adapter for xsalsa20_poly1305_suffix,
// which appends a random 24-byte nonce.
func NewXSalsa20Poly1305Suffix(key []byte, opts ...Option) (Adapter, error) {
	return newSecretboxAdapter(ModeXSalsa20Poly1305Suffix, nonceRandomSuffix, key, opts)
}

func newSecretboxAdapter(name string, source nonceSource, key []byte, opts []Option) (Adapter, error) {
	mode := mustMode(name)
	if len(key) != mode.KeyLength {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidKeyLength, name, mode.KeyLength, len(key))
	}

	o := buildOptions(opts)
	a := &secretboxAdapter{mode: mode, source: source, entropy: o.entropy}
	copy(a.key[:], key)

	if source == nonceFromCounter {
		counter, err := newNonceCounter(o)
		if err != nil {
			return nil, fmt.Errorf("seed nonce counter: %w", err)
		}
		a.counter = counter
	}
	return a, nil
}

func (a *secretboxAdapter) Mode() Mode { return a.mode }

// trailerSize is the number of nonce bytes appended after the ciphertext.
func (a *secretboxAdapter) trailerSize() int {
	switch a.source {
	case nonceFromCounter:
		return counterSize
	case nonceRandomSuffix:
		return secretboxNonceSize
	default:
		return 0
	}
}

func (a *secretboxAdapter) Encrypt(header, plaintext []byte) ([]byte, error) {
	if len(header) < rtp.HeaderSize {
		return nil, ErrHeaderTooShort
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrAdapterClosed
	}

	var nonce [secretboxNonceSize]byte
	var trailer []byte
	switch a.source {
	case nonceFromHeader:
		copy(nonce[:], header[:rtp.HeaderSize])
	case nonceFromCounter:
		copy(nonce[:], paddedNonce(a.counter.next(), counterSize))
		trailer = nonce[:counterSize]
	case nonceRandomSuffix:
		if _, err := io.ReadFull(a.entropy, nonce[:]); err != nil {
			return nil, fmt.Errorf("generate nonce: %w", err)
		}
		trailer = nonce[:]
	}

	out := make([]byte, len(header), len(header)+len(plaintext)+secretbox.Overhead+len(trailer))
	copy(out, header)
	out = secretbox.Seal(out, plaintext, &nonce, &a.key)
	return append(out, trailer...), nil
}

func (a *secretboxAdapter) Decrypt(packet *rtp.Packet) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrAdapterClosed
	}

	buf := packet.Bytes()
	headerLen := packet.FixedHeaderLen()
	trailer := a.trailerSize()
	if !packet.Valid() || len(buf) < headerLen+secretbox.Overhead+trailer {
		return nil, fmt.Errorf("%w: %d bytes is too short for %s", ErrDecryptFailure, len(buf), a.mode.Name)
	}

	var nonce [secretboxNonceSize]byte
	end := len(buf) - trailer
	switch a.source {
	case nonceFromHeader:
		copy(nonce[:], buf[:rtp.HeaderSize])
	default:
		copy(nonce[:], buf[end:])
	}

	plaintext, ok := secretbox.Open(nil, buf[headerLen:end], &nonce, &a.key)
	if !ok {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptFailure)
	}

	if packet.Extended() {
		plaintext = stripExtensionBlock(plaintext)
	}
	return plaintext, nil
}

func (a *secretboxAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	ZeroBytes(a.key[:])
	return nil
}
