// Package main provides voiceloop, a loopback tool for the voice transport.
//
// voiceloop opens two voice sessions on localhost UDP, negotiates an
// encryption mode between them, plays an input file through the sending
// session's player and writes every frame the receiving session's stream
// hears to an output file. Comparing input and output checks the whole
// send and receive path: pacing, RTP framing, encryption and routing.
//
//	voiceloop -in speech.opus -out heard.opus
//	voiceloop -config mono8k.yaml -format pcm -in tone.raw -out heard.raw
package main
