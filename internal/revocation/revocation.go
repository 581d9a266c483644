// Package revocation keeps the list of logged-out access tokens until they expire.
package revocation

import (
	"context"
	"sync"
	"time"
)

// List records revoked token ids (jti).
type List interface {
	// Revoke marks jti revoked for ttl; a non-positive ttl is a no-op.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	// IsRevoked reports whether jti is currently revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Claim revokes jti for ttl and reports whether this call did it.
	// Of several concurrent claims on one jti exactly one gets true.
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// Memory is a process-local List for single-instance deployments and tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemory constructs an empty in-memory list.
func NewMemory() *Memory {
	return &Memory{entries: map[string]time.Time{}, now: time.Now}
}

func (m *Memory) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	m.entries[jti] = now.Add(ttl)
	return nil
}

func (m *Memory) Claim(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	if jti == "" || ttl <= 0 {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	if _, taken := m.entries[jti]; taken {
		return false, nil
	}
	m.entries[jti] = now.Add(ttl)
	return true, nil
}

// sweep drops expired entries; m.mu must be held.
func (m *Memory) sweep(now time.Time) {
	for k, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, k)
		}
	}
}

func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[jti]
	if !ok {
		return false, nil
	}
	if !exp.After(m.now()) {
		delete(m.entries, jti)
		return false, nil
	}
	return true, nil
}
