package player

import (
	"github.com/opd-ai/voicelink/audio"
	"github.com/sirupsen/logrus"
)

// Continuation decides what plays after a source reports end of stream.
// It receives the finished source and the pending queue and returns the
// source to play next (nil to go idle) and the new queue.
//
// The player closes the finished source unless the continuation returns it
// as next or keeps it in the queue. Continuations run with the player lock
// held and must not call back into the player.
type Continuation func(finished audio.Source, queue []audio.Source) (next audio.Source, rest []audio.Source)

// AdvanceQueue promotes the head of the queue. It is the default.
func AdvanceQueue(_ audio.Source, queue []audio.Source) (audio.Source, []audio.Source) {
	if len(queue) == 0 {
		return nil, nil
	}
	return queue[0], queue[1:]
}

// LoopCurrent rewinds and replays the finished source. Sources that cannot
// rewind fall back to AdvanceQueue.
func LoopCurrent(finished audio.Source, queue []audio.Source) (audio.Source, []audio.Source) {
	if rewind(finished) {
		return finished, queue
	}
	return AdvanceQueue(finished, queue)
}

// LoopToTail rewinds the finished source, appends it to the queue and
// promotes the head, so the queue plays as a playlist on repeat. Sources
// that cannot rewind fall back to AdvanceQueue.
func LoopToTail(finished audio.Source, queue []audio.Source) (audio.Source, []audio.Source) {
	if rewind(finished) {
		queue = append(queue, finished)
	}
	return AdvanceQueue(finished, queue)
}

func rewind(src audio.Source) bool {
	r, ok := src.(audio.Rewinder)
	if !ok {
		return false
	}
	if err := r.Rewind(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "rewind",
			"error":    err.Error(),
		}).Warn("Source rewind failed, advancing queue")
		return false
	}
	return true
}
