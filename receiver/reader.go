package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/voicelink/audio"
	"github.com/opd-ai/voicelink/crypto"
	"github.com/opd-ai/voicelink/limits"
	"github.com/opd-ai/voicelink/rtp"
	"github.com/opd-ai/voicelink/transport"
	"github.com/sirupsen/logrus"
)

// Options configures a Reader.
type Options struct {
	// Transport delivers datagrams from the relay. Required.
	Transport transport.Transport

	// Slot supplies the decryption adapter per packet. Required.
	Slot *crypto.Slot

	// Settings sizes the PCM silence frames of Decoded streams. The zero
	// value selects audio.DefaultSettings.
	Settings audio.Settings

	// Decoders builds one decoder per source id. Without it Decoded
	// streams yield silence.
	Decoders audio.DecoderFactory

	// MaxBuffered bounds each stream's buffer. Zero selects
	// DefaultMaxBuffered.
	MaxBuffered int
}

// Stats counts datagrams handled by a reader.
type Stats struct {
	Received  uint64
	Delivered uint64
	Dropped   uint64
}

// Reader receives voice datagrams, decrypts them and fans them out to the
// streams listening on each source id.
//
// Listener state is keyed by source id. Streams opened before their
// speaker's source id is known wait in a pending set and are bound when
// the registry reports the assignment.
type Reader struct {
	transport   transport.Transport
	slot        *crypto.Slot
	settings    audio.Settings
	newDecoder  audio.DecoderFactory
	maxBuffered int

	mu        sync.RWMutex
	listeners map[uint32][]*Stream
	pending   map[SpeakerID][]*Stream
	sources   map[SpeakerID]uint32
	decoders  map[uint32]audio.Decoder
	stopped   bool
	cancel    context.CancelFunc

	running   atomic.Bool
	received  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewReader creates a reader. Call Run to start receiving.
//
// Parameters:
//   - opts: reader configuration; Transport and Slot are required
//
// Returns:
//   - *Reader: the reader
//   - error: ErrNoTransport or ErrNoSlot
func NewReader(opts Options) (*Reader, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}
	if opts.Slot == nil {
		return nil, ErrNoSlot
	}
	if opts.Settings.IsZero() {
		opts.Settings = audio.DefaultSettings()
	}
	if opts.MaxBuffered <= 0 {
		opts.MaxBuffered = DefaultMaxBuffered
	}

	logrus.WithFields(logrus.Fields{
		"function":     "receiver.NewReader",
		"local_addr":   opts.Transport.LocalAddr().String(),
		"max_buffered": opts.MaxBuffered,
		"decoding":     opts.Decoders != nil,
	}).Info("Audio reader created")

	return &Reader{
		transport:   opts.Transport,
		slot:        opts.Slot,
		settings:    opts.Settings,
		newDecoder:  opts.Decoders,
		maxBuffered: opts.MaxBuffered,
		listeners:   make(map[uint32][]*Stream),
		pending:     make(map[SpeakerID][]*Stream),
		sources:     make(map[SpeakerID]uint32),
		decoders:    make(map[uint32]audio.Decoder),
	}, nil
}

// Run is the receive loop. It returns nil after Stop, ctx.Err() on
// cancellation, or the transport error that ended it. The reader is
// stopped when Run returns.
func (r *Reader) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		cancel()
		return ErrReaderStopped
	}
	r.cancel = cancel
	r.mu.Unlock()

	defer func() {
		cancel()
		r.Stop()
	}()

	for {
		buf, err := r.transport.Receive(ctx)
		if err != nil {
			if r.IsStopped() {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logrus.WithFields(logrus.Fields{
				"function": "Reader.Run",
				"error":    err.Error(),
			}).Error("Transport receive failed, stopping reader")
			return fmt.Errorf("receive voice datagram: %w", err)
		}

		r.handle(buf)
		r.transport.Release(buf)
	}
}

// handle routes one datagram and reports how many streams received it.
func (r *Reader) handle(buf []byte) int {
	r.received.Add(1)

	if err := limits.ValidateIncoming(buf); err != nil {
		r.drop("invalid_size", 0)
		return 0
	}
	if rtp.IsRTCP(buf) {
		r.drop("rtcp", 0)
		return 0
	}

	packet := rtp.Parse(buf)
	if packet.PayloadType() != rtp.VoicePayloadType {
		r.drop("payload_type", packet.Source())
		return 0
	}

	ssrc := packet.Source()
	r.mu.RLock()
	streams := append([]*Stream(nil), r.listeners[ssrc]...)
	dec := r.decoders[ssrc]
	r.mu.RUnlock()
	if len(streams) == 0 {
		r.drop("no_listeners", ssrc)
		return 0
	}

	adapter := r.slot.Load()
	if adapter == nil {
		r.drop("no_adapter", ssrc)
		return 0
	}
	plaintext, err := adapter.Decrypt(packet)
	if err != nil {
		if !errors.Is(err, crypto.ErrDecryptFailure) {
			logrus.WithFields(logrus.Fields{
				"function": "Reader.handle",
				"ssrc":     ssrc,
				"error":    err.Error(),
			}).Warn("Unexpected decrypt error")
		}
		r.drop("decrypt", ssrc)
		return 0
	}

	// buf goes back to the transport pool after handle returns.
	encoded := append([]byte(nil), plaintext...)
	pkt := NewVoicePacket(ssrc, packet.Sequence(), packet.Timestamp(), encoded, dec)

	n := 0
	for _, s := range streams {
		if s.push(pkt) {
			n++
		}
	}
	r.delivered.Add(1)
	return n
}

func (r *Reader) drop(reason string, ssrc uint32) {
	r.dropped.Add(1)
	logrus.WithFields(logrus.Fields{
		"function": "Reader.handle",
		"reason":   reason,
		"ssrc":     ssrc,
	}).Debug("Dropping datagram")
}

// Listen opens a stream on a speaker. If the speaker's source id is not
// known yet the stream waits until Bind reports it.
//
// Parameters:
//   - speaker: the speaker to listen to
//   - mode: Decoded for PCM, Encoded for raw Opus
//
// Returns:
//   - *Stream: the new stream
//   - error: ErrReaderStopped after Stop
func (r *Reader) Listen(speaker SpeakerID, mode Mode) (*Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil, ErrReaderStopped
	}

	s := newStream(r, speaker, mode)
	ssrc, bound := r.sources[speaker]
	if bound {
		r.listeners[ssrc] = append(r.listeners[ssrc], s)
		r.ensureDecoderLocked(ssrc)
	} else {
		r.pending[speaker] = append(r.pending[speaker], s)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Reader.Listen",
		"speaker":  speaker,
		"mode":     mode.String(),
		"bound":    bound,
	}).Debug("Stream opened")

	return s, nil
}

// Bind records that speaker transmits under ssrc and attaches its streams.
// Binding a speaker that already has a different source id moves its
// streams, as Rebind does.
func (r *Reader) Bind(speaker SpeakerID, ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindLocked(speaker, ssrc)
}

// Rebind moves every stream of speaker to ssrc. The move is a single
// mutation under the write lock, so no packet is routed to a stale id.
func (r *Reader) Rebind(speaker SpeakerID, ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindLocked(speaker, ssrc)
}

func (r *Reader) bindLocked(speaker SpeakerID, ssrc uint32) {
	if r.stopped {
		return
	}

	old, had := r.sources[speaker]
	if had && old == ssrc {
		return
	}
	r.sources[speaker] = ssrc

	moving := r.pending[speaker]
	delete(r.pending, speaker)
	if had {
		kept, moved := partition(r.listeners[old], speaker)
		moving = append(moving, moved...)
		r.setListenersLocked(old, kept)
	}

	if len(moving) > 0 {
		r.listeners[ssrc] = append(r.listeners[ssrc], moving...)
		r.ensureDecoderLocked(ssrc)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Reader.Bind",
		"speaker":    speaker,
		"ssrc":       ssrc,
		"old_ssrc":   old,
		"reassigned": had,
		"streams":    len(moving),
	}).Debug("Speaker bound to source")
}

// Unbind forgets the speaker's source id. Its streams stay open and wait
// for the next Bind, yielding silence meanwhile.
func (r *Reader) Unbind(speaker SpeakerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ssrc, had := r.sources[speaker]
	if !had {
		return
	}
	delete(r.sources, speaker)

	kept, moved := partition(r.listeners[ssrc], speaker)
	r.setListenersLocked(ssrc, kept)
	if len(moved) > 0 {
		r.pending[speaker] = append(r.pending[speaker], moved...)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Reader.Unbind",
		"speaker":  speaker,
		"ssrc":     ssrc,
		"streams":  len(moved),
	}).Debug("Speaker unbound")
}

// partition splits streams into those of other speakers and those of
// speaker.
func partition(streams []*Stream, speaker SpeakerID) (kept, moved []*Stream) {
	for _, s := range streams {
		if s.speaker == speaker {
			moved = append(moved, s)
		} else {
			kept = append(kept, s)
		}
	}
	return kept, moved
}

// setListenersLocked replaces the listener list of ssrc, releasing the
// entry and its decoder when it becomes empty.
func (r *Reader) setListenersLocked(ssrc uint32, streams []*Stream) {
	if len(streams) == 0 {
		delete(r.listeners, ssrc)
		delete(r.decoders, ssrc)
		return
	}
	r.listeners[ssrc] = streams
}

func (r *Reader) ensureDecoderLocked(ssrc uint32) {
	if r.newDecoder == nil {
		return
	}
	if _, ok := r.decoders[ssrc]; ok {
		return
	}
	dec, err := r.newDecoder()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Reader.ensureDecoder",
			"ssrc":     ssrc,
			"error":    err.Error(),
		}).Warn("Decoder creation failed, decoded streams will yield silence")
		return
	}
	r.decoders[ssrc] = dec
}

// detach removes a stopped stream from the listener state.
func (r *Reader) detach(s *Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ssrc, ok := r.sources[s.speaker]; ok {
		r.setListenersLocked(ssrc, without(r.listeners[ssrc], s))
	}
	if rest := without(r.pending[s.speaker], s); len(rest) > 0 {
		r.pending[s.speaker] = rest
	} else {
		delete(r.pending, s.speaker)
	}
}

func without(streams []*Stream, s *Stream) []*Stream {
	out := streams[:0:0]
	for _, candidate := range streams {
		if candidate != s {
			out = append(out, candidate)
		}
	}
	return out
}

// Stop ends the receive loop and stops every stream. It is idempotent.
func (r *Reader) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true

	var streams []*Stream
	for _, list := range r.listeners {
		streams = append(streams, list...)
	}
	for _, list := range r.pending {
		streams = append(streams, list...)
	}
	r.listeners = make(map[uint32][]*Stream)
	r.pending = make(map[SpeakerID][]*Stream)
	r.decoders = make(map[uint32]audio.Decoder)
	cancel := r.cancel
	r.mu.Unlock()

	for _, s := range streams {
		s.markDone()
	}
	if cancel != nil {
		cancel()
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Reader.Stop",
		"streams":   len(streams),
		"received":  r.received.Load(),
		"delivered": r.delivered.Load(),
		"dropped":   r.dropped.Load(),
	}).Info("Audio reader stopped")
}

// IsStopped reports whether Stop has been called.
func (r *Reader) IsStopped() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stopped
}

// Listeners returns the number of streams receiving packets for ssrc.
func (r *Reader) Listeners(ssrc uint32) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[ssrc])
}

// Pending returns the number of streams of speaker waiting for a source id.
func (r *Reader) Pending(speaker SpeakerID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending[speaker])
}

// SourceOf returns the source id the reader has bound for speaker.
func (r *Reader) SourceOf(speaker SpeakerID) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ssrc, ok := r.sources[speaker]
	return ssrc, ok
}

// Stats returns the datagram counters.
func (r *Reader) Stats() Stats {
	return Stats{
		Received:  r.received.Load(),
		Delivered: r.delivered.Load(),
		Dropped:   r.dropped.Load(),
	}
}
