// Package transport provides the UDP datagram transport shared by the
// voice player and reader.
//
// The Transport interface is deliberately small: send one datagram, receive
// one datagram, and hand receive buffers back to the pool.
//
//	t, err := transport.NewUDPTransport(":0")
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	relay, err := transport.ResolveEndpoint(ready.IP, ready.Port)
//	if err != nil {
//	    return err
//	}
//	ext, err := transport.DiscoverAddress(ctx, t, relay, ready.SSRC)
//
// Receive polls with a short read deadline so that it observes context
// cancellation and Close without a separate goroutine. Buffers returned by
// Receive come from github.com/gobwas/pool and must be passed to Release
// once the caller has copied what it needs.
//
// Datagrams larger than limits.MaxDatagramSize are dropped on receive and
// rejected on send.
package transport
