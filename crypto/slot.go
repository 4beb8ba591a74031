package crypto

import (
	"sync"
)

// Slot holds the adapter currently in force for a session. Signaling
// replaces it when a new secret key arrives; the player and reader load it
// per packet.
type Slot struct {
	mu      sync.RWMutex
	adapter Adapter
}

// NewSlot returns a slot holding a, which may be nil.
func NewSlot(a Adapter) *Slot {
	return &Slot{adapter: a}
}

// Load returns the current adapter, or nil if none is installed.
func (s *Slot) Load() Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adapter
}

// Store installs a and closes the adapter it replaces.
func (s *Slot) Store(a Adapter) {
	s.mu.Lock()
	previous := s.adapter
	s.adapter = a
	s.mu.Unlock()

	logger := NewLogger("Slot.Store")
	if a != nil {
		logger.WithField("mode", a.Mode().Name)
	}
	if previous == nil || previous == a {
		logger.Debug("Encryption adapter installed")
		return
	}

	logger.WithField("previous_mode", previous.Mode().Name).Info("Encryption adapter replaced")
	if err := previous.Close(); err != nil {
		logger.WithError(err, "close", "replace_adapter").Warn("Failed to close replaced adapter")
	}
}

// Close closes and removes the current adapter.
func (s *Slot) Close() error {
	s.mu.Lock()
	a := s.adapter
	s.adapter = nil
	s.mu.Unlock()

	if a == nil {
		return nil
	}

	NewLogger("Slot.Close").WithField("mode", a.Mode().Name).Debug("Encryption adapter removed")
	return a.Close()
}
