package player

import "errors"

// Construction errors.
var (
	// ErrNoSlot indicates Options without an encryption slot.
	ErrNoSlot = errors.New("player needs an encryption slot")

	// ErrNoTransport indicates Options without a transport.
	ErrNoTransport = errors.New("player needs a transport")

	// ErrNoEndpoint indicates Options without a relay endpoint.
	ErrNoEndpoint = errors.New("player needs a relay endpoint")
)

// Control errors.
var (
	// ErrPlayerStopped indicates a call on a player that has been stopped.
	ErrPlayerStopped = errors.New("player stopped")

	// ErrAlreadyRunning indicates a second concurrent call to Run.
	ErrAlreadyRunning = errors.New("player already running")

	// ErrNoEncoder indicates a PCM source given to a player without an encoder.
	ErrNoEncoder = errors.New("pcm source needs an encoder")

	// ErrNilSource indicates a nil source passed to Play or Enqueue.
	ErrNilSource = errors.New("nil source")
)
