package revocation

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process denylist for single instance deployments and
// tests. Expired entries are dropped on write.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *Memory) WithClock(now func() time.Time) *Memory {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Memory) Revoke(_ context.Context, jti string, until time.Time) error {
	if jti == "" {
		return ErrEmptyTokenID
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)
	if until.After(now) {
		m.entries[jti] = until
	}
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.RLock()
	until, ok := m.entries[jti]
	m.mu.RUnlock()

	return ok && m.now().Before(until), nil
}

// Len returns the number of live entries
func (m *Memory) Len() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)
	return len(m.entries)
}

// sweep must be called with the write lock held
func (m *Memory) sweep(now time.Time) {
	for jti, until := range m.entries {
		if !now.Before(until) {
			delete(m.entries, jti)
		}
	}
}
