// Package audio defines the audio side of a voice stream: the PCM format
// and framing, the codec boundary, and the pull-based sources a player
// reads from.
//
// Settings carry the channel count, sampling rate and frame length, with
// the derived sizes computed together:
//
//	s := audio.DefaultSettings() // 2ch, 48 kHz, 20 ms
//	s.SamplesPerFrame()          // 960
//	s.FrameSize()                // 3840 bytes of s16le PCM
//
// Opus is the wire codec. Decoding uses the pure Go pion/opus decoder;
// encoding is supplied by the embedding application through the Encoder
// interface, with PassthroughEncoder as the stand-in.
//
// Sources produce one frame per call and report io.EOF when exhausted:
//
//	src := audio.NewPCMSource(file, s)
//	loud, _ := audio.NewVolumeSource(src, 1.5)
//	frame, err := loud.ReadFrame()
//
// Pre-encoded Opus can be stored with WriteOpusPacket and played back with
// OpusPacketSource, which skips the encoder.
package audio
