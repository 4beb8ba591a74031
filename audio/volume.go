package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

// MaxVolume is the largest accepted linear gain (+12 dB).
const MaxVolume = 4.0

// VolumeSource scales the PCM frames of another source by a linear gain
// with clipping protection. Gain values: 0.0 = silence, 1.0 = no change,
// >1.0 = amplification. The volume may be changed while playing.
type VolumeSource struct {
	source Source

	mu     sync.RWMutex
	volume float64
}

// NewVolumeSource wraps a PCM source.
//
// Parameters:
//   - source: a PCM source; Opus sources cannot be scaled
//   - volume: initial linear gain in [0, MaxVolume]
//
// Returns:
//   - *VolumeSource: the wrapping source
//   - error: if source is Opus or volume is out of range
func NewVolumeSource(source Source, volume float64) (*VolumeSource, error) {
	if source.IsOpus() {
		return nil, fmt.Errorf("volume control needs a PCM source")
	}
	if err := validateVolume(volume); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewVolumeSource",
		"volume":   volume,
	}).Debug("Creating volume source")

	return &VolumeSource{source: source, volume: volume}, nil
}

func validateVolume(volume float64) error {
	if math.IsNaN(volume) || volume < 0 || volume > MaxVolume {
		return fmt.Errorf("%w: %v (range 0 to %v)", ErrInvalidVolume, volume, MaxVolume)
	}
	return nil
}

// SetVolume changes the gain applied to subsequent frames.
func (v *VolumeSource) SetVolume(volume float64) error {
	if err := validateVolume(volume); err != nil {
		return err
	}

	v.mu.Lock()
	old := v.volume
	v.volume = volume
	v.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "VolumeSource.SetVolume",
		"old_volume": old,
		"new_volume": volume,
	}).Debug("Volume updated")
	return nil
}

// Volume returns the current gain.
func (v *VolumeSource) Volume() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.volume
}

// ReadFrame reads a frame from the wrapped source and scales it in place.
func (v *VolumeSource) ReadFrame() ([]byte, error) {
	frame, err := v.source.ReadFrame()
	if err != nil {
		return nil, err
	}

	clipped := applyGain(frame, v.Volume())
	if clipped > 0 {
		logrus.WithFields(logrus.Fields{
			"function":      "VolumeSource.ReadFrame",
			"clipped_count": clipped,
			"total_samples": len(frame) / bytesPerSample,
		}).Debug("Audio clipping during volume scaling")
	}
	return frame, nil
}

// IsOpus returns false.
func (v *VolumeSource) IsOpus() bool { return false }

// Rewind rewinds the wrapped source if it supports it.
func (v *VolumeSource) Rewind() error {
	if r, ok := v.source.(Rewinder); ok {
		return r.Rewind()
	}
	return ErrNotSeekable
}

// Close closes the wrapped source.
func (v *VolumeSource) Close() error { return v.source.Close() }

// applyGain scales s16le samples in place, clamping to the int16 range,
// and returns the number of clipped samples.
func applyGain(pcm []byte, gain float64) int {
	if gain == 1.0 {
		return 0
	}

	clipped := 0
	for i := 0; i+1 < len(pcm); i += bytesPerSample {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) * gain

		var out int16
		switch {
		case sample > math.MaxInt16:
			out = math.MaxInt16
			clipped++
		case sample < math.MinInt16:
			out = math.MinInt16
			clipped++
		default:
			out = int16(sample)
		}
		binary.LittleEndian.PutUint16(pcm[i:], uint16(out))
	}
	return clipped
}
