// Package receiver demultiplexes inbound voice datagrams to per-speaker
// streams.
//
// A Reader runs one receive loop per session. Each datagram is checked,
// parsed as RTP and routed by its source id to the streams listening on
// that speaker. Packets with no listeners are dropped before decryption;
// packets that fail authentication are dropped silently.
//
// Speakers are identified by platform id, while the relay addresses them
// by source id. The session registry reports the mapping through Bind,
// Rebind and Unbind. A rebind moves a speaker's streams to the new id in
// one mutation, so packets are never delivered under a stale id.
//
//	stream, _ := reader.Listen(speaker, receiver.Decoded)
//	for {
//		pcm, ok := stream.Read()
//		if !ok {
//			break // stopped
//		}
//		play(pcm)
//	}
//
// A stream never reports an underrun: with nothing buffered it yields a
// silence frame, so downstream consumers see continuous audio.
package receiver
