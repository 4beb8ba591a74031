package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

// IP discovery packets let a client behind NAT learn the public address
// the relay sees, which it then reports to signaling. Both directions use
// the same 74-byte layout:
//
//	type(2) length(2) ssrc(4) address(64, NUL padded) port(2)
const (
	DiscoveryPacketSize = 74

	discoveryRequest  uint16 = 0x1
	discoveryResponse uint16 = 0x2
	discoveryLength   uint16 = 70
	discoveryAddrSize        = 64
)

// ErrInvalidDiscovery indicates a malformed discovery packet.
var ErrInvalidDiscovery = errors.New("invalid ip discovery packet")

// DiscoveryResult is the external address reported by the relay.
type DiscoveryResult struct {
	SSRC uint32
	IP   string
	Port uint16
}

// EncodeDiscoveryRequest builds the request sent to the relay for ssrc.
func EncodeDiscoveryRequest(ssrc uint32) []byte {
	return encodeDiscovery(discoveryRequest, ssrc, "", 0)
}

// EncodeDiscoveryResponse builds the relay's answer. It is used by test
// relays.
func EncodeDiscoveryResponse(ssrc uint32, ip string, port uint16) ([]byte, error) {
	if len(ip) >= discoveryAddrSize {
		return nil, fmt.Errorf("%w: address %q too long", ErrInvalidDiscovery, ip)
	}
	return encodeDiscovery(discoveryResponse, ssrc, ip, port), nil
}

func encodeDiscovery(kind uint16, ssrc uint32, ip string, port uint16) []byte {
	b := make([]byte, DiscoveryPacketSize)
	binary.BigEndian.PutUint16(b[0:], kind)
	binary.BigEndian.PutUint16(b[2:], discoveryLength)
	binary.BigEndian.PutUint32(b[4:], ssrc)
	copy(b[8:8+discoveryAddrSize], ip)
	binary.BigEndian.PutUint16(b[8+discoveryAddrSize:], port)
	return b
}

// IsDiscoveryRequest reports whether b is a discovery request, and if so
// for which ssrc.
func IsDiscoveryRequest(b []byte) (uint32, bool) {
	if len(b) != DiscoveryPacketSize || binary.BigEndian.Uint16(b) != discoveryRequest {
		return 0, false
	}
	return binary.BigEndian.Uint32(b[4:]), true
}

// DecodeDiscoveryResponse parses the relay's answer.
func DecodeDiscoveryResponse(b []byte) (DiscoveryResult, error) {
	if len(b) != DiscoveryPacketSize {
		return DiscoveryResult{}, fmt.Errorf("%w: size %d", ErrInvalidDiscovery, len(b))
	}
	if kind := binary.BigEndian.Uint16(b); kind != discoveryResponse {
		return DiscoveryResult{}, fmt.Errorf("%w: type %#x", ErrInvalidDiscovery, kind)
	}
	if length := binary.BigEndian.Uint16(b[2:]); length != discoveryLength {
		return DiscoveryResult{}, fmt.Errorf("%w: length %d", ErrInvalidDiscovery, length)
	}

	addr := b[8 : 8+discoveryAddrSize]
	if i := bytes.IndexByte(addr, 0); i >= 0 {
		addr = addr[:i]
	}
	if net.ParseIP(string(addr)) == nil {
		return DiscoveryResult{}, fmt.Errorf("%w: address %q", ErrInvalidDiscovery, addr)
	}

	return DiscoveryResult{
		SSRC: binary.BigEndian.Uint32(b[4:]),
		IP:   string(addr),
		Port: binary.BigEndian.Uint16(b[8+discoveryAddrSize:]),
	}, nil
}

// DiscoverAddress asks the relay at endpoint for our external address.
// Datagrams that are not the matching response are discarded. The caller
// bounds the wait through ctx.
//
// Parameters:
//   - ctx: cancels the wait for a response
//   - t: the transport later used for voice, so the discovered port matches
//   - endpoint: the relay address
//   - ssrc: the source id assigned by signaling
//
// Returns:
//   - DiscoveryResult: the relay's view of our address
//   - error: ctx.Err(), ErrClosed or a send error
func DiscoverAddress(ctx context.Context, t Transport, endpoint net.Addr, ssrc uint32) (DiscoveryResult, error) {
	if err := t.Send(EncodeDiscoveryRequest(ssrc), endpoint); err != nil {
		return DiscoveryResult{}, fmt.Errorf("send discovery request: %w", err)
	}

	for {
		buf, err := t.Receive(ctx)
		if err != nil {
			return DiscoveryResult{}, err
		}

		result, err := DecodeDiscoveryResponse(buf)
		t.Release(buf)
		if err != nil || result.SSRC != ssrc {
			logrus.WithFields(logrus.Fields{
				"function": "DiscoverAddress",
				"ssrc":     ssrc,
			}).Debug("Ignoring datagram while waiting for discovery response")
			continue
		}

		logrus.WithFields(logrus.Fields{
			"function": "DiscoverAddress",
			"ssrc":     ssrc,
			"ip":       result.IP,
			"port":     result.Port,
		}).Info("External address discovered")
		return result, nil
	}
}
