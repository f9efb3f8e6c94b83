package admission

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the registry in process memory. Quotas enforced through it
// are per process, not global across replicas.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*LimiterState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*LimiterState)}
}

func (m *MemoryStore) CheckAndRecord(_ context.Context, identity string, quota int, window time.Duration, now time.Time) Decision {
	// check and increment must not interleave between goroutines,
	// otherwise two requests can both see count < quota
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.windows[identity]
	if !ok {
		st = &LimiterState{Identity: identity}
		m.windows[identity] = st
	}
	return admit(st, quota, window, now)
}

func (m *MemoryStore) Peek(_ context.Context, identity string) (LimiterState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.windows[identity]
	if !ok {
		return LimiterState{}, false
	}
	return *st, true
}

// Sweep drops every identity whose window reset before the given time and
// returns how many were removed.
func (m *MemoryStore) Sweep(before time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for identity, st := range m.windows {
		if st.WindowResetAt.Before(before) {
			delete(m.windows, identity)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked identities.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
