package receiver

import "errors"

var (
	// ErrNoTransport indicates a reader was created without a transport.
	ErrNoTransport = errors.New("reader requires a transport")

	// ErrNoSlot indicates a reader was created without an adapter slot.
	ErrNoSlot = errors.New("reader requires an encryption slot")

	// ErrReaderStopped is returned by operations on a stopped reader.
	ErrReaderStopped = errors.New("reader stopped")

	// ErrAlreadyRunning is returned when Run is called concurrently.
	ErrAlreadyRunning = errors.New("reader already running")

	// ErrNoDecoder is returned when a Decoded stream has no decoder for
	// its source.
	ErrNoDecoder = errors.New("no decoder for source")
)
