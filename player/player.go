package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/voicelink/audio"
	"github.com/opd-ai/voicelink/crypto"
	"github.com/opd-ai/voicelink/limits"
	"github.com/opd-ai/voicelink/transport"
	"github.com/sirupsen/logrus"
)

// Player paces audio frames from a queue of sources onto the transport,
// one frame per frame period.
//
// A single goroutine runs Run. Control methods (Play, Enqueue, Skip, Pause,
// Resume, Stop) may be called from any goroutine; they share one lock with
// the pacing loop over the current source, the queue and the paused flag.
type Player struct {
	settings     audio.Settings
	ssrc         uint32
	slot         *crypto.Slot
	transport    transport.Transport
	endpoint     net.Addr
	encoder      audio.Encoder
	clock        Clock
	continuation Continuation
	onSpeaking   func(bool)
	silenceTrail int

	mu      sync.Mutex
	current audio.Source
	queue   []audio.Source
	paused  bool
	done    bool

	wake    chan struct{}
	running atomic.Bool

	// sequence and timestamp are written only by the pacing goroutine.
	sequence  atomic.Uint32
	timestamp atomic.Uint32
	sent      atomic.Uint64
	dropped   atomic.Uint64
}

// Stats counts frames handled by a player.
type Stats struct {
	Sent    uint64
	Dropped uint64
}

// New creates an idle player.
//
// Parameters:
//   - opts: player configuration; Slot, Transport and Endpoint are required
//
// Returns:
//   - *Player: the idle player; call Run to start pacing
//   - error: ErrNoSlot, ErrNoTransport or ErrNoEndpoint
func New(opts Options) (*Player, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	p := &Player{
		settings:     opts.Settings,
		ssrc:         opts.SSRC,
		slot:         opts.Slot,
		transport:    opts.Transport,
		endpoint:     opts.Endpoint,
		encoder:      opts.Encoder,
		clock:        opts.Clock,
		continuation: opts.Continuation,
		onSpeaking:   opts.OnSpeaking,
		silenceTrail: opts.SilenceTrail,
		wake:         make(chan struct{}, 1),
	}
	p.sequence.Store(uint32(opts.InitialSequence))
	p.timestamp.Store(opts.InitialTimestamp)

	logrus.WithFields(logrus.Fields{
		"function": "player.New",
		"ssrc":     p.ssrc,
		"settings": p.settings.String(),
		"endpoint": p.endpoint.String(),
	}).Info("Audio player created")

	return p, nil
}

// Run is the pacing loop. It returns nil after Stop, ctx.Err() on
// cancellation, or the transport error that ended playback. In every case
// the player is stopped and its sources are closed when Run returns.
func (p *Player) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)
	if p.IsStopped() {
		return ErrPlayerStopped
	}

	var (
		start    time.Time
		loops    int
		last     audio.Source
		idled    = true
		trail    int
		speaking bool
		produced bool
	)
	defer func() {
		if speaking {
			p.notifySpeaking(false)
		}
		p.Stop()
	}()

	frameDuration := p.settings.FrameDuration()

	for {
		src, ready, err := p.poll(trail > 0)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Player.Run",
				"ssrc":     p.ssrc,
			}).Info("Audio player stopped")
			return nil
		}
		if !ready {
			if speaking {
				speaking = false
				p.notifySpeaking(false)
			}
			idled = true
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.wake:
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// The schedule is anchored at stream start and at resume.
		if idled || src != last {
			start = p.clock.Now()
			loops = 0
			idled = false
		}
		if src != last {
			produced = false
		}
		last = src

		var payload []byte
		if src == nil {
			payload = audio.SilenceFrame
			trail--
		} else {
			frame, err := src.ReadFrame()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logrus.WithFields(logrus.Fields{
						"function": "Player.Run",
						"error":    err.Error(),
					}).Warn("Source read failed, treating as end of stream")
				}
				if p.finish(src, produced) && speaking {
					trail = p.silenceTrail
				}
				produced = false
				continue
			}
			produced = true
			trail = 0
			payload = p.encode(src, frame)
		}

		if payload != nil {
			if !speaking {
				speaking = true
				p.notifySpeaking(true)
			}
			if err := p.send(payload); err != nil {
				return err
			}
		}

		loops++
		target := start.Add(time.Duration(loops) * frameDuration)
		if err := p.clock.Sleep(ctx, target.Sub(p.clock.Now())); err != nil {
			return err
		}
	}
}

// poll reports what the loop should do next without blocking. It returns
// the current source when playing, a nil source with ready set when a
// silence frame is due, and ready unset when the loop must wait.
func (p *Player) poll(wantTrail bool) (audio.Source, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return nil, false, ErrPlayerStopped
	}
	if p.paused {
		return nil, false, nil
	}
	if p.current != nil {
		return p.current, true, nil
	}
	return nil, wantTrail, nil
}

// finish applies the continuation to an exhausted source and closes it
// unless it is still in use. A source that ended without yielding a frame
// since it last started is advanced past, so a loop over an empty source
// cannot spin. It reports whether the player went idle.
func (p *Player) finish(src audio.Source, produced bool) bool {
	p.mu.Lock()
	if p.current != src {
		// Replaced by a control call, which already closed it.
		idle := p.current == nil
		p.mu.Unlock()
		return idle
	}

	continuation := p.continuation
	if !produced {
		continuation = AdvanceQueue
	}
	next, rest := continuation(src, p.queue)
	p.current, p.queue = next, rest

	retained := next == src
	for _, queued := range rest {
		if queued == src {
			retained = true
			break
		}
	}
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Player.finish",
		"ssrc":     p.ssrc,
		"retained": retained,
		"produced": produced,
		"idle":     next == nil,
	}).Debug("Source finished")

	if !retained {
		closeSource(src)
	}
	return next == nil
}

// encode returns the wire payload for a frame, or nil if the frame is
// dropped.
func (p *Player) encode(src audio.Source, frame []byte) []byte {
	if src.IsOpus() {
		return frame
	}
	if p.encoder == nil {
		p.dropped.Add(1)
		return nil
	}

	payload, err := p.encoder.Encode(frame)
	if err != nil {
		p.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Player.encode",
			"error":    err.Error(),
		}).Debug("Frame encode failed, dropping frame")
		return nil
	}
	return payload
}

// send encrypts one payload under the next counters and transmits it.
// Frames that cannot be encrypted are dropped and leave the counters
// untouched; only a transport failure is returned.
func (p *Player) send(payload []byte) error {
	adapter := p.slot.Load()
	if adapter == nil {
		p.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Player.send",
			"ssrc":     p.ssrc,
		}).Debug("No encryption adapter installed, dropping frame")
		return nil
	}
	if len(payload) > limits.MaxVoicePayload {
		p.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Player.send",
			"size":     len(payload),
			"limit":    limits.MaxVoicePayload,
		}).Warn("Payload too large for one datagram, dropping frame")
		return nil
	}

	sequence := uint16(p.sequence.Load()) + 1
	timestamp := p.timestamp.Load() + uint32(p.settings.SamplesPerFrame())

	wire, err := crypto.SealVoice(adapter, sequence, timestamp, p.ssrc, payload)
	if err != nil {
		p.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Player.send",
			"mode":     adapter.Mode().Name,
			"error":    err.Error(),
		}).Debug("Frame encryption failed, dropping frame")
		return nil
	}
	p.sequence.Store(uint32(sequence))
	p.timestamp.Store(timestamp)

	if err := p.transport.Send(wire, p.endpoint); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Player.send",
			"endpoint": p.endpoint.String(),
			"error":    err.Error(),
		}).Error("Transport send failed, stopping player")
		return fmt.Errorf("send voice frame: %w", err)
	}
	p.sent.Add(1)
	return nil
}

func (p *Player) notifySpeaking(speaking bool) {
	if p.onSpeaking != nil {
		p.onSpeaking(speaking)
	}
}

// signal wakes the pacing loop if it is waiting.
func (p *Player) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Player) checkSource(src audio.Source) error {
	if src == nil {
		return ErrNilSource
	}
	if !src.IsOpus() && p.encoder == nil {
		return ErrNoEncoder
	}
	return nil
}

// Play replaces the current source with src and closes the old one.
func (p *Player) Play(src audio.Source) error {
	if err := p.checkSource(src); err != nil {
		return err
	}

	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return ErrPlayerStopped
	}
	old := p.current
	p.current = src
	p.mu.Unlock()

	if old != nil && old != src {
		closeSource(old)
	}
	p.signal()
	return nil
}

// Enqueue appends src to the queue. If nothing is playing it starts at once.
func (p *Player) Enqueue(src audio.Source) error {
	if err := p.checkSource(src); err != nil {
		return err
	}

	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return ErrPlayerStopped
	}
	if p.current == nil {
		p.current = src
	} else {
		p.queue = append(p.queue, src)
	}
	queued := len(p.queue)
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Player.Enqueue",
		"queued":   queued,
	}).Debug("Source enqueued")

	p.signal()
	return nil
}

// Skip closes the current source and promotes the head of the queue,
// regardless of the continuation policy.
func (p *Player) Skip() {
	p.mu.Lock()
	old := p.current
	if old == nil {
		p.mu.Unlock()
		return
	}
	p.current, p.queue = AdvanceQueue(old, p.queue)
	p.mu.Unlock()

	closeSource(old)
	p.signal()
}

// Pause suspends transmission. The current source keeps its position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.done {
		p.paused = true
	}
}

// Resume continues a paused player. Pacing restarts from a fresh anchor.
func (p *Player) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	p.signal()
}

// Stop ends playback and closes the current and queued sources. It is
// idempotent: sources are closed exactly once.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	sources := make([]audio.Source, 0, len(p.queue)+1)
	if p.current != nil {
		sources = append(sources, p.current)
	}
	sources = append(sources, p.queue...)
	p.current, p.queue = nil, nil
	p.mu.Unlock()

	for _, src := range sources {
		closeSource(src)
	}
	p.signal()

	logrus.WithFields(logrus.Fields{
		"function": "Player.Stop",
		"ssrc":     p.ssrc,
		"released": len(sources),
		"sent":     p.sent.Load(),
	}).Info("Audio player stopping")
}

// IsPlaying reports whether a source is active and not paused.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && !p.paused && !p.done
}

// IsPaused reports whether the player is paused.
func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// IsStopped reports whether Stop has been called.
func (p *Player) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Queue returns a snapshot of the pending sources.
func (p *Player) Queue() []audio.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audio.Source, len(p.queue))
	copy(out, p.queue)
	return out
}

// Counters returns the sequence number and timestamp of the last frame sent.
func (p *Player) Counters() (uint16, uint32) {
	return uint16(p.sequence.Load()), p.timestamp.Load()
}

// Stats returns the frame counters.
func (p *Player) Stats() Stats {
	return Stats{Sent: p.sent.Load(), Dropped: p.dropped.Load()}
}

func closeSource(src audio.Source) {
	if err := src.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "closeSource",
			"error":    err.Error(),
		}).Warn("Source close failed")
	}
}
