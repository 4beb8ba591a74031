package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/opd-ai/voicelink/receiver"
	"github.com/stretchr/testify/assert"
)

// mockRouter records routing calls.
type mockRouter struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockRouter) record(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *mockRouter) Bind(speaker receiver.SpeakerID, ssrc uint32) {
	m.record("bind %d %d", speaker, ssrc)
}

func (m *mockRouter) Rebind(speaker receiver.SpeakerID, ssrc uint32) {
	m.record("rebind %d %d", speaker, ssrc)
}

func (m *mockRouter) Unbind(speaker receiver.SpeakerID) {
	m.record("unbind %d", speaker)
}

func TestRegistry(t *testing.T) {
	tests := []struct {
		name      string
		apply     func(r *Registry)
		wantCalls []string
		wantMap   map[receiver.SpeakerID]uint32
	}{
		{
			name:      "assign",
			apply:     func(r *Registry) { r.Assign(1, 100) },
			wantCalls: []string{"bind 1 100"},
			wantMap:   map[receiver.SpeakerID]uint32{1: 100},
		},
		{
			name: "assign same id twice",
			apply: func(r *Registry) {
				r.Assign(1, 100)
				r.Assign(1, 100)
			},
			wantCalls: []string{"bind 1 100"},
			wantMap:   map[receiver.SpeakerID]uint32{1: 100},
		},
		{
			name: "reassign moves speaker",
			apply: func(r *Registry) {
				r.Assign(1, 100)
				r.Reassign(1, 300)
			},
			wantCalls: []string{"bind 1 100", "rebind 1 300"},
			wantMap:   map[receiver.SpeakerID]uint32{1: 300},
		},
		{
			name:      "reassign unknown speaker binds",
			apply:     func(r *Registry) { r.Reassign(2, 200) },
			wantCalls: []string{"bind 2 200"},
			wantMap:   map[receiver.SpeakerID]uint32{2: 200},
		},
		{
			name: "stale holder is evicted",
			apply: func(r *Registry) {
				r.Assign(1, 100)
				r.Assign(2, 100)
			},
			wantCalls: []string{"bind 1 100", "unbind 1", "bind 2 100"},
			wantMap:   map[receiver.SpeakerID]uint32{2: 100},
		},
		{
			name: "eviction during reassign",
			apply: func(r *Registry) {
				r.Assign(1, 100)
				r.Assign(2, 200)
				r.Reassign(2, 100)
			},
			wantCalls: []string{"bind 1 100", "bind 2 200", "unbind 1", "rebind 2 100"},
			wantMap:   map[receiver.SpeakerID]uint32{2: 100},
		},
		{
			name: "remove",
			apply: func(r *Registry) {
				r.Assign(1, 100)
				r.Remove(1)
				r.Remove(1)
			},
			wantCalls: []string{"bind 1 100", "unbind 1"},
			wantMap:   map[receiver.SpeakerID]uint32{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &mockRouter{}
			r := NewRegistry(router)
			tt.apply(r)

			assert.Equal(t, tt.wantCalls, router.calls)
			assert.Equal(t, len(tt.wantMap), r.Len())
			for speaker, ssrc := range tt.wantMap {
				got, ok := r.SourceFor(speaker)
				assert.True(t, ok)
				assert.Equal(t, ssrc, got)

				back, ok := r.SpeakerFor(ssrc)
				assert.True(t, ok)
				assert.Equal(t, speaker, back)
			}
		})
	}
}

func TestRegistryWithoutRouter(t *testing.T) {
	r := NewRegistry(nil)
	r.Assign(1, 100)
	r.Reassign(1, 101)
	r.Assign(2, 101)

	_, ok := r.SourceFor(1)
	assert.False(t, ok)
	_, ok = r.SpeakerFor(100)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDrivesReader(t *testing.T) {
	s := newTestSession(t)
	reader := s.Reader()

	stream, err := s.Listen(7, receiver.Encoded)
	assert.NoError(t, err)

	s.SourceAssigned(7, 700)
	assert.Equal(t, 1, reader.Listeners(700))

	s.SourceReassigned(7, 701)
	assert.Zero(t, reader.Listeners(700))
	assert.Equal(t, 1, reader.Listeners(701))

	// Another speaker taking over 701 evicts speaker 7 back to pending.
	s.SourceAssigned(8, 701)
	assert.Zero(t, reader.Listeners(701))
	assert.Equal(t, 1, reader.Pending(7))

	s.SourceAssigned(7, 702)
	s.SpeakerLeft(7)
	assert.Zero(t, reader.Listeners(702))
	assert.Equal(t, 1, reader.Pending(7))
	assert.False(t, stream.IsStopped())
}
