// Package crypto implements the transport encryption modes for voice
// datagrams.
//
// Every mode takes a 32-byte secret key delivered by signaling and turns a
// voice payload into a wire datagram behind an RTP header. Modes differ in
// cipher and in where the per-packet nonce comes from:
//
//	aead_aes256_gcm_rtpsize          AES-256-GCM, 4-byte counter appended
//	aead_xchacha20_poly1305_rtpsize  XChaCha20-Poly1305, 4-byte counter appended
//	xsalsa20_poly1305_lite           NaCl secretbox, 4-byte counter appended
//	xsalsa20_poly1305_suffix         NaCl secretbox, 24 random bytes appended
//	xsalsa20_poly1305                NaCl secretbox, nonce is the RTP header
//
// The rtpsize modes authenticate the header as additional data. Counter
// nonces start at a random value below 65536 and are incremented before
// every send.
//
// # Negotiation
//
// The peer advertises the modes it supports. Negotiate picks the
// highest-priority mode both sides know, and NewAdapter builds it:
//
//	name, err := crypto.Negotiate(crypto.ModeNames(), ready.Modes)
//	if err != nil {
//	    return err // ErrNoCommonMode
//	}
//	adapter, err := crypto.NewAdapter(name, secretKey)
//
// # Sending and Receiving
//
//	wire, err := crypto.SealVoice(adapter, seq, timestamp, ssrc, opusFrame)
//
//	payload, err := adapter.Decrypt(rtp.Parse(datagram))
//	if errors.Is(err, crypto.ErrDecryptFailure) {
//	    // drop the packet
//	}
//
// A Slot holds the adapter in force for a session so that a new key can be
// installed while the player and reader are running. Adapters wipe their
// key copy on Close.
package crypto
