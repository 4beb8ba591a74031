package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"sync"

	"github.com/opd-ai/voicelink/rtp"
	"golang.org/x/crypto/chacha20poly1305"
)

// aeadAdapter implements the rtpsize modes. The wire layout is
//
//	header ‖ AEAD(plaintext, aad=header) ‖ counter(4)
//
// where the nonce is the counter, big-endian, zero-padded to the AEAD's
// nonce size. On receive the additional data is the fixed header, CSRCs and
// the extension preamble; the extension words are inside the ciphertext.
type aeadAdapter struct {
	mode    Mode
	mu      sync.RWMutex
	key     []byte
	aead    cipher.AEAD
	counter *nonceCounter
	closed  bool
}

// NewAES256GCMRTPSize returns an adapter for aead_aes256_gcm_rtpsize.
func NewAES256GCMRTPSize(key []byte, opts ...Option) (Adapter, error) {
	return newAEADAdapter(ModeAES256GCMRTPSize, key, opts, func(k []byte) (cipher.AEAD, error) {
		block, err := aes.NewCipher(k)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	})
}

// NewXChaCha20Poly1305RTPSize returns an adapter for aead_xchacha20_poly1305_rtpsize.
func NewXChaCha20Poly1305RTPSize(key []byte, opts ...Option) (Adapter, error) {
	return newAEADAdapter(ModeXChaCha20Poly1305RTPSize, key, opts, chacha20poly1305.NewX)
}

func newAEADAdapter(name string, key []byte, opts []Option, construct func([]byte) (cipher.AEAD, error)) (Adapter, error) {
	mode := mustMode(name)
	if len(key) != mode.KeyLength {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidKeyLength, name, mode.KeyLength, len(key))
	}

	o := buildOptions(opts)
	counter, err := newNonceCounter(o)
	if err != nil {
		return nil, fmt.Errorf("seed nonce counter: %w", err)
	}

	k := make([]byte, len(key))
	copy(k, key)
	aead, err := construct(k)
	if err != nil {
		ZeroBytes(k)
		return nil, fmt.Errorf("create %s cipher: %w", name, err)
	}

	return &aeadAdapter{mode: mode, key: k, aead: aead, counter: counter}, nil
}

func (a *aeadAdapter) Mode() Mode { return a.mode }

func (a *aeadAdapter) Encrypt(header, plaintext []byte) ([]byte, error) {
	if len(header) < rtp.HeaderSize {
		return nil, ErrHeaderTooShort
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrAdapterClosed
	}

	nonce := paddedNonce(a.counter.next(), a.aead.NonceSize())

	out := make([]byte, len(header), len(header)+len(plaintext)+a.aead.Overhead()+counterSize)
	copy(out, header)
	out = a.aead.Seal(out, nonce, plaintext, header)
	return append(out, nonce[:counterSize]...), nil
}

func (a *aeadAdapter) Decrypt(packet *rtp.Packet) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrAdapterClosed
	}

	buf := packet.Bytes()
	aadLen := packet.FixedHeaderLen()
	if packet.Extended() {
		aadLen += rtp.ExtensionPreambleSize
	}
	if !packet.Valid() || len(buf) < aadLen+a.aead.Overhead()+counterSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for %s", ErrDecryptFailure, len(buf), a.mode.Name)
	}

	trailer := len(buf) - counterSize
	nonce := make([]byte, a.aead.NonceSize())
	copy(nonce, buf[trailer:])

	plaintext, err := a.aead.Open(nil, nonce, buf[aadLen:trailer], buf[:aadLen])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}

	if packet.Extended() {
		plaintext = stripExtension(plaintext, int(packet.ExtensionCount()))
	}
	return plaintext, nil
}

func (a *aeadAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	ZeroBytes(a.key)
	a.aead = nil
	return nil
}
