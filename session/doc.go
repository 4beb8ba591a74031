// Package session glues a voice connection to the signaling layer.
//
// Signaling drives a Session through its lifecycle:
//
//	s, _ := session.New(session.Options{Transport: udp, SSRC: ssrc})
//	mode, _ := s.Negotiate(offeredModes)
//	s.Establish(secretKey, mode, relayIP, relayPort)
//	go s.Run(ctx)
//
//	s.SourceAssigned(speaker, ssrc)   // speaking update
//	s.SourceReassigned(speaker, ssrc) // source id changed
//	s.SpeakerLeft(speaker)
//
// The Registry keeps the speaker/source map and pushes every change into
// the reader's routing table under its own lock, so packets are never
// routed by a stale mapping.
package session
