package player

import (
	"net"

	"github.com/opd-ai/voicelink/audio"
	"github.com/opd-ai/voicelink/crypto"
	"github.com/opd-ai/voicelink/transport"
)

// DefaultSilenceTrail is the number of Opus silence frames sent when
// playback goes idle.
const DefaultSilenceTrail = 5

// Options configures a Player.
type Options struct {
	// Settings fixes the frame duration and timestamp increment. The zero
	// value selects audio.DefaultSettings.
	Settings audio.Settings

	// SSRC is the source id assigned to us by signaling.
	SSRC uint32

	// Slot supplies the encryption adapter per frame. Required.
	Slot *crypto.Slot

	// Transport and Endpoint carry datagrams to the relay. Required.
	Transport transport.Transport
	Endpoint  net.Addr

	// Encoder turns PCM frames into Opus. It is required only for sources
	// whose IsOpus reports false. The player does not close it.
	Encoder audio.Encoder

	// Clock drives pacing. Defaults to SystemClock.
	Clock Clock

	// Continuation runs when a source is exhausted. Defaults to AdvanceQueue.
	Continuation Continuation

	// OnSpeaking is called from the pacing goroutine when transmission
	// starts (true) and when it goes idle or pauses (false).
	OnSpeaking func(speaking bool)

	// SilenceTrail is the number of silence frames sent before going
	// idle. Zero selects DefaultSilenceTrail; a negative value disables it.
	SilenceTrail int

	// InitialSequence and InitialTimestamp seed the RTP counters. The
	// first frame carries InitialSequence+1.
	InitialSequence  uint16
	InitialTimestamp uint32
}

func (o *Options) validate() error {
	if o.Slot == nil {
		return ErrNoSlot
	}
	if o.Transport == nil {
		return ErrNoTransport
	}
	if o.Endpoint == nil {
		return ErrNoEndpoint
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.Settings.IsZero() {
		o.Settings = audio.DefaultSettings()
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Continuation == nil {
		o.Continuation = AdvanceQueue
	}
	if o.SilenceTrail == 0 {
		o.SilenceTrail = DefaultSilenceTrail
	}
	if o.SilenceTrail < 0 {
		o.SilenceTrail = 0
	}
}
