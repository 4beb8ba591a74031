package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync/atomic"
)

// Option configures an adapter at construction time.
type Option func(*adapterOptions)

type adapterOptions struct {
	seed    *uint32
	entropy io.Reader
}

// WithNonceSeed fixes the starting value of the adapter's nonce counter.
// The first packet is sent with seed+1. Without it the counter starts at a
// random value below 65536.
func WithNonceSeed(seed uint32) Option {
	return func(o *adapterOptions) {
		o.seed = &seed
	}
}

// WithEntropy replaces crypto/rand as the source of counter seeds and of
// the random nonces used by the suffix mode.
func WithEntropy(r io.Reader) Option {
	return func(o *adapterOptions) {
		if r != nil {
			o.entropy = r
		}
	}
}

func buildOptions(opts []Option) adapterOptions {
	o := adapterOptions{entropy: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// nonceCounter produces the 32-bit per-packet nonces of the counter modes.
// It wraps at 2^32.
type nonceCounter struct {
	value atomic.Uint32
}

// newNonceCounter seeds a counter from the options.
func newNonceCounter(o adapterOptions) (*nonceCounter, error) {
	c := &nonceCounter{}
	if o.seed != nil {
		c.value.Store(*o.seed)
		return c, nil
	}

	var b [counterSize]byte
	if _, err := io.ReadFull(o.entropy, b[:]); err != nil {
		return nil, err
	}
	c.value.Store(binary.BigEndian.Uint32(b[:]) % counterSeedModulus)
	return c, nil
}

// next increments the counter and returns its new value.
func (c *nonceCounter) next() uint32 {
	return c.value.Add(1)
}

// paddedNonce writes the big-endian counter into the first four bytes of a
// zeroed nonce of the given length.
func paddedNonce(counter uint32, length int) []byte {
	nonce := make([]byte, length)
	binary.BigEndian.PutUint32(nonce, counter)
	return nonce
}

// stripExtension removes count 32-bit extension words from the front of
// plaintext, clamped to its length.
func stripExtension(plaintext []byte, count int) []byte {
	n := count * 4
	if n > len(plaintext) {
		n = len(plaintext)
	}
	return plaintext[n:]
}

// stripExtensionBlock removes an encrypted extension block (4-byte preamble
// followed by its declared words) from the front of plaintext.
func stripExtensionBlock(plaintext []byte) []byte {
	if len(plaintext) < 4 {
		return plaintext[len(plaintext):]
	}
	count := int(binary.BigEndian.Uint16(plaintext[2:4]))
	return stripExtension(plaintext[4:], count)
}
