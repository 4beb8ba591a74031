// Package rtp provides the RTP wire format used for voice datagrams.
//
// The package has three parts:
//
//   - Packet: a zero-copy, read-only view over a received datagram. Parse never
//     fails; every accessor is bounds-clamped so that truncated or adversarial
//     input produces empty slices instead of panics.
//   - Build: the general encoder, covering CSRC lists, an extension block and
//     trailing padding.
//   - VoiceHeader: the fast path for outgoing voice frames, which only ever
//     carry the 12-byte fixed header. It is produced with pion/rtp and is
//     byte-identical to what Build emits for the same fields.
//
// # Parsing
//
//	p := rtp.Parse(datagram)
//	if !p.Valid() || p.PayloadType() != rtp.VoicePayloadType {
//	    return
//	}
//	ssrc := p.Source()
//	payload := p.Payload()
//
// Offsets are derived once, in wire order: fixed header, CSRC list,
// extension block, payload, padding. The payload length can never be negative.
//
// # Building
//
//	buf, err := rtp.Build(rtp.Fields{
//	    Version:     rtp.Version,
//	    PayloadType: rtp.VoicePayloadType,
//	    Sequence:    seq,
//	    Timestamp:   ts,
//	    Source:      ssrc,
//	    Payload:     opus,
//	})
//
// Padding bytes are copied verbatim. The caller must make the last padding
// byte equal to the padding length.
//
// # Uint32Array
//
// CSRC lists and extension values are exposed as Uint32Array, a big-endian
// word view that shares memory with the datagram.
package rtp
