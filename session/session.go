package session

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/opd-ai/voicelink/audio"
	"github.com/opd-ai/voicelink/crypto"
	"github.com/opd-ai/voicelink/player"
	"github.com/opd-ai/voicelink/receiver"
	"github.com/opd-ai/voicelink/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options configures a Session.
type Options struct {
	// Transport carries both directions of the voice session. Required.
	// The session does not close it.
	Transport transport.Transport

	// SSRC is the source id signaling assigned to the local user.
	SSRC uint32

	// Modes is the local encryption mode preference. Empty selects every
	// supported mode.
	Modes []string

	// Settings is the audio format of both directions. The zero value
	// selects audio.DefaultSettings.
	Settings audio.Settings

	// Encoder turns PCM sources into Opus. Optional.
	Encoder audio.Encoder

	// Decoders builds per-source decoders for Decoded streams. Optional.
	Decoders audio.DecoderFactory

	// Continuation is the player's source-finished policy. Optional.
	Continuation player.Continuation

	// SilenceTrail and MaxBuffered tune the player and the reader; see
	// player.Options and receiver.Options.
	SilenceTrail int
	MaxBuffered  int

	// OnSpeaking reports the player's speaking state, typically to send
	// the signaling speaking update.
	OnSpeaking func(speaking bool)
}

// Session ties one voice connection together: the active encryption
// adapter, the outbound player, the inbound reader and the speaker
// registry. It is the entry point for signaling events.
type Session struct {
	opts     Options
	slot     *crypto.Slot
	reader   *receiver.Reader
	registry *Registry

	mu       sync.Mutex
	player   *player.Player
	endpoint *net.UDPAddr
	mode     string
	closed   bool
}

// New creates a session. The reader is available at once so streams can
// be opened before the session is established.
//
// Parameters:
//   - opts: session configuration; Transport is required
//
// Returns:
//   - *Session: the session, not yet established
//   - error: ErrNoTransport or a reader construction error
func New(opts Options) (*Session, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}
	if len(opts.Modes) == 0 {
		opts.Modes = crypto.ModeNames()
	}
	if opts.Settings.IsZero() {
		opts.Settings = audio.DefaultSettings()
	}

	slot := crypto.NewSlot(nil)
	reader, err := receiver.NewReader(receiver.Options{
		Transport:   opts.Transport,
		Slot:        slot,
		Settings:    opts.Settings,
		Decoders:    opts.Decoders,
		MaxBuffered: opts.MaxBuffered,
	})
	if err != nil {
		return nil, fmt.Errorf("create reader: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "session.New",
		"ssrc":     opts.SSRC,
		"modes":    opts.Modes,
	}).Info("Voice session created")

	return &Session{
		opts:     opts,
		slot:     slot,
		reader:   reader,
		registry: NewRegistry(reader),
	}, nil
}

// Negotiate selects the encryption mode from the relay's offer using the
// local preference.
func (s *Session) Negotiate(remote []string) (string, error) {
	mode, err := crypto.Negotiate(s.opts.Modes, remote)
	if err != nil {
		return "", fmt.Errorf("negotiate encryption mode: %w", err)
	}
	return mode, nil
}

// Discover runs IP discovery against the relay at ip:port and returns our
// external address as the relay sees it. It must be called before Run,
// since it reads from the shared transport.
func (s *Session) Discover(ctx context.Context, ip string, port int) (transport.DiscoveryResult, error) {
	endpoint, err := transport.ResolveEndpoint(ip, port)
	if err != nil {
		return transport.DiscoveryResult{}, err
	}
	return transport.DiscoverAddress(ctx, s.opts.Transport, endpoint, s.opts.SSRC)
}

// Establish installs the session key and relay endpoint reported by
// signaling. The first call creates the player; later calls swap the
// encryption adapter in place and wipe the previous key.
//
// Parameters:
//   - key: the session secret key
//   - mode: the negotiated mode name
//   - ip, port: the relay's voice endpoint
//
// Returns:
//   - error: on an unknown mode, bad key, bad endpoint or closed session
func (s *Session) Establish(key []byte, mode, ip string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	endpoint, err := transport.ResolveEndpoint(ip, port)
	if err != nil {
		return fmt.Errorf("resolve voice endpoint: %w", err)
	}
	adapter, err := crypto.NewAdapter(mode, key)
	if err != nil {
		return fmt.Errorf("create %s adapter: %w", mode, err)
	}

	if s.player == nil {
		p, err := player.New(player.Options{
			Settings:     s.opts.Settings,
			SSRC:         s.opts.SSRC,
			Slot:         s.slot,
			Transport:    s.opts.Transport,
			Endpoint:     endpoint,
			Encoder:      s.opts.Encoder,
			Continuation: s.opts.Continuation,
			OnSpeaking:   s.opts.OnSpeaking,
			SilenceTrail: s.opts.SilenceTrail,
		})
		if err != nil {
			_ = adapter.Close()
			return fmt.Errorf("create player: %w", err)
		}
		s.player = p
		s.endpoint = endpoint
	} else if endpoint.String() != s.endpoint.String() {
		logrus.WithFields(logrus.Fields{
			"function": "Session.Establish",
			"old":      s.endpoint.String(),
			"new":      endpoint.String(),
		}).Warn("Relay endpoint changed on re-establish, keeping the original")
	}

	s.slot.Store(adapter)
	s.mode = mode

	logrus.WithFields(logrus.Fields{
		"function": "Session.Establish",
		"mode":     mode,
		"endpoint": s.endpoint.String(),
		"ssrc":     s.opts.SSRC,
	}).Info("Voice session established")
	return nil
}

// SourceAssigned handles signaling's report that speaker transmits under
// ssrc.
func (s *Session) SourceAssigned(speaker receiver.SpeakerID, ssrc uint32) {
	s.registry.Assign(speaker, ssrc)
}

// SourceReassigned handles a source id change for speaker.
func (s *Session) SourceReassigned(speaker receiver.SpeakerID, ssrc uint32) {
	s.registry.Reassign(speaker, ssrc)
}

// SpeakerLeft handles a speaker leaving the channel.
func (s *Session) SpeakerLeft(speaker receiver.SpeakerID) {
	s.registry.Remove(speaker)
}

// Listen opens a stream on speaker.
func (s *Session) Listen(speaker receiver.SpeakerID, mode receiver.Mode) (*receiver.Stream, error) {
	return s.reader.Listen(speaker, mode)
}

// Player returns the outbound player.
func (s *Session) Player() (*player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil, ErrNotEstablished
	}
	return s.player, nil
}

// Reader returns the inbound reader.
func (s *Session) Reader() *receiver.Reader { return s.reader }

// Registry returns the speaker registry.
func (s *Session) Registry() *Registry { return s.registry }

// Mode returns the negotiated mode, empty before Establish.
func (s *Session) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Run drives the reader and player loops until both end. The first loop
// to fail cancels the other; its error is returned.
func (s *Session) Run(ctx context.Context) error {
	p, err := s.Player()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.reader.Run(gctx)
	})
	g.Go(func() error {
		return p.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.Run",
			"error":    err.Error(),
		}).Warn("Voice session ended with error")
		return err
	}
	return nil
}

// Close stops the player and reader and wipes the session key. It is
// idempotent. The transport is left open.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	p := s.player
	s.mu.Unlock()

	if p != nil {
		p.Stop()
	}
	s.reader.Stop()
	return s.slot.Close()
}
