package receiver

import (
	"sync"

	"github.com/opd-ai/voicelink/audio"
)

// VoicePacket is one decrypted voice frame. The PCM form is decoded on
// first use and cached, so a packet fanned out to several Decoded streams
// is decoded once.
type VoicePacket struct {
	SSRC      uint32
	Sequence  uint16
	Timestamp uint32

	encoded []byte
	decoder audio.Decoder

	once    sync.Once
	decoded []byte
	err     error
}

// NewVoicePacket wraps an Opus payload. dec may be nil, in which case
// Decoded reports ErrNoDecoder.
func NewVoicePacket(ssrc uint32, sequence uint16, timestamp uint32, encoded []byte, dec audio.Decoder) *VoicePacket {
	return &VoicePacket{
		SSRC:      ssrc,
		Sequence:  sequence,
		Timestamp: timestamp,
		encoded:   encoded,
		decoder:   dec,
	}
}

// Encoded returns the Opus payload. Callers must not modify it.
func (v *VoicePacket) Encoded() []byte { return v.encoded }

// Decoded returns the PCM form of the packet, decoding it at most once.
func (v *VoicePacket) Decoded() ([]byte, error) {
	v.once.Do(func() {
		if v.decoder == nil {
			v.err = ErrNoDecoder
			return
		}
		v.decoded, v.err = v.decoder.Decode(v.encoded)
	})
	return v.decoded, v.err
}
