package crypto

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opd-ai/voicelink/rtp"
	"github.com/sirupsen/logrus"
)

// Mode names as exchanged during session setup.
const (
	ModeAES256GCMRTPSize         = "aead_aes256_gcm_rtpsize"
	ModeXChaCha20Poly1305RTPSize = "aead_xchacha20_poly1305_rtpsize"
	ModeXSalsa20Poly1305Lite     = "xsalsa20_poly1305_lite"
	ModeXSalsa20Poly1305Suffix   = "xsalsa20_poly1305_suffix"
	ModeXSalsa20Poly1305         = "xsalsa20_poly1305"
)

// KeySize is the secret key length of every supported mode.
const KeySize = 32

const (
	counterSize        = 4
	secretboxNonceSize = 24

	// counterSeedModulus bounds the random starting value of nonce counters.
	counterSeedModulus = 1 << 16
)

// Adapter turns voice payloads into wire datagrams and back for one
// negotiated mode and secret key. Implementations are safe for concurrent
// use: a player may encrypt while a reader decrypts.
type Adapter interface {
	// Mode returns the descriptor of the adapter's mode.
	Mode() Mode

	// Encrypt returns header followed by the encrypted plaintext and any
	// mode-specific trailer. header must hold at least a fixed RTP header.
	Encrypt(header, plaintext []byte) ([]byte, error)

	// Decrypt returns the plaintext of a received packet. A packet that is
	// too short or fails authentication yields ErrDecryptFailure.
	Decrypt(packet *rtp.Packet) ([]byte, error)

	// Close wipes the key. Later calls return ErrAdapterClosed.
	Close() error
}

// Mode describes one encryption mode.
type Mode struct {
	Name        string
	KeyLength   int
	NonceLength int
	Priority    int
	New         func(key []byte, opts ...Option) (Adapter, error)
}

// String returns the mode name.
func (m Mode) String() string { return m.Name }

// registry lists every supported mode in local preference order. It is
// filled in init because the constructors refer back to it.
var registry []Mode

func init() {
	registry = []Mode{
		{Name: ModeAES256GCMRTPSize, KeyLength: KeySize, NonceLength: 12, Priority: 4, New: NewAES256GCMRTPSize},
		{Name: ModeXChaCha20Poly1305RTPSize, KeyLength: KeySize, NonceLength: 24, Priority: 3, New: NewXChaCha20Poly1305RTPSize},
		{Name: ModeXSalsa20Poly1305Lite, KeyLength: KeySize, NonceLength: secretboxNonceSize, Priority: 2, New: NewXSalsa20Poly1305Lite},
		{Name: ModeXSalsa20Poly1305Suffix, KeyLength: KeySize, NonceLength: secretboxNonceSize, Priority: 1, New: NewXSalsa20Poly1305Suffix},
		{Name: ModeXSalsa20Poly1305, KeyLength: KeySize, NonceLength: secretboxNonceSize, Priority: 1, New: NewXSalsa20Poly1305},
	}
}

// Modes returns every supported mode, most preferred first.
func Modes() []Mode {
	out := make([]Mode, len(registry))
	copy(out, registry)
	return out
}

// ModeNames returns the names of every supported mode, most preferred first.
// This is the default local preference list for Negotiate.
func ModeNames() []string {
	names := make([]string, len(registry))
	for i, m := range registry {
		names[i] = m.Name
	}
	return names
}

// LookupMode returns the mode registered under name.
func LookupMode(name string) (Mode, bool) {
	for _, m := range registry {
		if m.Name == name {
			return m, true
		}
	}
	return Mode{}, false
}

// mustMode returns a registered mode for the package's own constructors.
func mustMode(name string) Mode {
	m, ok := LookupMode(name)
	if !ok {
		panic("crypto: mode not registered: " + name)
	}
	return m
}

// Negotiate selects the mode to use with a peer that supports remote.
//
// Of the names in local that this package implements and that appear in
// remote, the one with the highest priority wins; among equal priorities the
// earlier entry in local wins. Unknown names on either side are ignored.
//
// Parameters:
//   - local: the modes we are willing to use, most preferred first
//   - remote: the modes advertised by the peer
//
// Returns:
//   - string: the selected mode name
//   - error: ErrNoCommonMode if the sets do not intersect
func Negotiate(local, remote []string) (string, error) {
	offered := make(map[string]struct{}, len(remote))
	for _, name := range remote {
		offered[name] = struct{}{}
	}

	var candidates []Mode
	for _, name := range local {
		if _, ok := offered[name]; !ok {
			continue
		}
		m, ok := LookupMode(name)
		if !ok {
			continue
		}
		candidates = append(candidates, m)
	}

	if len(candidates) == 0 {
		NewLogger("Negotiate").WithFields(logrus.Fields{
			"local":  strings.Join(local, ","),
			"remote": strings.Join(remote, ","),
		}).Warn("No common encryption mode")
		return "", fmt.Errorf("%w: local [%s], remote [%s]",
			ErrNoCommonMode, strings.Join(local, ", "), strings.Join(remote, ", "))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})
	selected := candidates[0].Name

	NewLogger("Negotiate").WithFields(logrus.Fields{
		"selected":   selected,
		"candidates": len(candidates),
	}).Debug("Encryption mode negotiated")

	return selected, nil
}

// NewAdapter constructs the adapter for the named mode.
//
// Parameters:
//   - name: a mode name, normally the result of Negotiate
//   - key: the secret key delivered by signaling; it is copied
//   - opts: adapter options such as WithNonceSeed
//
// Returns:
//   - Adapter: the ready adapter
//   - error: ErrUnsupportedMode or ErrInvalidKeyLength
func NewAdapter(name string, key []byte, opts ...Option) (Adapter, error) {
	logger := NewLogger("NewAdapter").WithField("mode", name)

	m, ok := LookupMode(name)
	if !ok {
		logger.Warn("Unsupported encryption mode requested")
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, name)
	}

	a, err := m.New(key, opts...)
	if err != nil {
		logger.WithError(err, "construction", "new_adapter").Error("Failed to create encryption adapter")
		return nil, err
	}

	logger.WithFields(SecureFieldHash(key, "key")).Debug("Encryption adapter created")
	return a, nil
}

// SealVoice builds the fixed voice header for one frame and encrypts the
// payload behind it, producing a complete datagram.
func SealVoice(a Adapter, sequence uint16, timestamp, ssrc uint32, payload []byte) ([]byte, error) {
	header := rtp.VoiceHeader(sequence, timestamp, ssrc)
	return a.Encrypt(header[:], payload)
}
