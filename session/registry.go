package session

import (
	"sync"

	"github.com/opd-ai/voicelink/receiver"
	"github.com/sirupsen/logrus"
)

// Router receives the registry's speaker/source changes. receiver.Reader
// implements it.
type Router interface {
	Bind(speaker receiver.SpeakerID, ssrc uint32)
	Rebind(speaker receiver.SpeakerID, ssrc uint32)
	Unbind(speaker receiver.SpeakerID)
}

// Registry maps speakers to the source ids the relay assigned them, in
// both directions.
//
// Every change is pushed to the router while the registry lock is held,
// so the identity map and the routing table never disagree. The registry
// lock is always taken before the router's.
type Registry struct {
	mu        sync.RWMutex
	router    Router
	bySpeaker map[receiver.SpeakerID]uint32
	bySource  map[uint32]receiver.SpeakerID
}

// NewRegistry creates an empty registry. router may be nil.
func NewRegistry(router Router) *Registry {
	return &Registry{
		router:    router,
		bySpeaker: make(map[receiver.SpeakerID]uint32),
		bySource:  make(map[uint32]receiver.SpeakerID),
	}
}

// Assign records that speaker transmits under ssrc. If another speaker
// still holds ssrc, that stale mapping is evicted first.
func (r *Registry) Assign(speaker receiver.SpeakerID, ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignLocked(speaker, ssrc, "Registry.Assign")
}

// Reassign moves speaker to a new source id. The speaker's streams follow
// atomically. Reassigning an unknown speaker is the same as Assign.
func (r *Registry) Reassign(speaker receiver.SpeakerID, ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignLocked(speaker, ssrc, "Registry.Reassign")
}

func (r *Registry) assignLocked(speaker receiver.SpeakerID, ssrc uint32, function string) {
	if holder, held := r.bySource[ssrc]; held && holder != speaker {
		delete(r.bySpeaker, holder)
		delete(r.bySource, ssrc)
		if r.router != nil {
			r.router.Unbind(holder)
		}
		logrus.WithFields(logrus.Fields{
			"function":    function,
			"ssrc":        ssrc,
			"old_speaker": holder,
			"new_speaker": speaker,
		}).Debug("Evicting stale source holder")
	}

	old, known := r.bySpeaker[speaker]
	if known && old == ssrc {
		return
	}
	if known {
		delete(r.bySource, old)
	}
	r.bySpeaker[speaker] = ssrc
	r.bySource[ssrc] = speaker

	if r.router != nil {
		if known {
			r.router.Rebind(speaker, ssrc)
		} else {
			r.router.Bind(speaker, ssrc)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   function,
		"speaker":    speaker,
		"ssrc":       ssrc,
		"old_ssrc":   old,
		"reassigned": known,
	}).Debug("Source assigned")
}

// Remove forgets speaker. Its streams stay open and yield silence.
func (r *Registry) Remove(speaker receiver.SpeakerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ssrc, known := r.bySpeaker[speaker]
	if !known {
		return
	}
	delete(r.bySpeaker, speaker)
	delete(r.bySource, ssrc)
	if r.router != nil {
		r.router.Unbind(speaker)
	}
}

// SpeakerFor returns the speaker holding ssrc.
func (r *Registry) SpeakerFor(ssrc uint32) (receiver.SpeakerID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	speaker, ok := r.bySource[ssrc]
	return speaker, ok
}

// SourceFor returns the source id of speaker.
func (r *Registry) SourceFor(speaker receiver.SpeakerID) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ssrc, ok := r.bySpeaker[speaker]
	return ssrc, ok
}

// Len returns the number of mapped speakers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySpeaker)
}
