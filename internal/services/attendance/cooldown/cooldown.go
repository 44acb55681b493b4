// Package cooldown implements the service-authoritative inter-arrival guard
// for verification attempts. An attempt for a key is admitted only when no
// other attempt for the same key was admitted within the window; rejected
// attempts do not extend the window.
package cooldown

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how often Memory drops expired keys.
const sweepEvery = 256

// Governor admits or rejects attempts per key.
type Governor interface {
	// Admit reports whether an attempt for key may proceed and arms the
	// window when it does.
	Admit(ctx context.Context, key string) (bool, error)
	// Release clears any armed window for key.
	Release(ctx context.Context, key string) error
}

// Memory is a process-local Governor. It only protects a single attendance
// service replica; use Redis when several replicas share a store.
type Memory struct {
	mu       sync.Mutex
	window   time.Duration
	clock    func() time.Time
	until    map[string]time.Time
	admitted int
}

// NewMemory creates an in-memory governor. A nil clock uses time.Now.
func NewMemory(window time.Duration, clock func() time.Time) *Memory {
	if clock == nil {
		clock = time.Now
	}
	return &Memory{
		window: window,
		clock:  clock,
		until:  make(map[string]time.Time),
	}
}

// Admit implements Governor.
func (m *Memory) Admit(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.window <= 0 {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if deadline, ok := m.until[key]; ok && now.Before(deadline) {
		return false, nil
	}
	m.until[key] = now.Add(m.window)
	m.admitted++
	if m.admitted%sweepEvery == 0 {
		m.sweepLocked(now)
	}
	return true, nil
}

// Release implements Governor.
func (m *Memory) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.until, key)
	return nil
}

// Len returns the number of tracked keys, including expired ones not yet swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.until)
}

func (m *Memory) sweepLocked(now time.Time) {
	for key, deadline := range m.until {
		if !now.Before(deadline) {
			delete(m.until, key)
		}
	}
}

var _ Governor = (*Memory)(nil)
