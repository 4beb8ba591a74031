// Package player paces outgoing voice frames onto a transport.
//
// A Player pulls one frame per frame period from its current audio.Source,
// encodes PCM to Opus when needed, frames it as RTP with the next sequence
// number and timestamp, encrypts it with the adapter currently held in a
// crypto.Slot and sends it to the relay endpoint.
//
// Pacing is anchored: each frame is due at start + n*FrameDuration, so a
// late frame shortens the following sleep instead of shifting every later
// frame. The anchor is reset at stream start, on a source change and on
// resume, so a pause never produces a burst of catch-up frames.
//
//	p, err := player.New(player.Options{
//		SSRC:      ssrc,
//		Slot:      slot,
//		Transport: udp,
//		Endpoint:  relay,
//	})
//	go p.Run(ctx)
//	p.Enqueue(audio.NewOpusPacketSource(file))
//
// When a source ends the Continuation decides what follows: AdvanceQueue
// (the default), LoopCurrent or LoopToTail. When playback goes idle a short
// trail of Opus silence frames is sent so receivers can end the stream
// cleanly.
package player
