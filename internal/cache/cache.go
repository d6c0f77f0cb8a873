// Package cache stores provider probe results for a short time so repeated
// format listings for the same URL do not re-run the extractor.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a byte-oriented TTL store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Cache. Expired entries are dropped lazily on Get
// and in bulk by Sweep.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	maxSize int
	now     func() time.Time
}

// NewMemory returns a cache holding at most maxEntries values; zero means
// unbounded.
func NewMemory(maxEntries int) *Memory {
	return &Memory{entries: make(map[string]entry), maxSize: maxEntries, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	if _, exists := m.entries[key]; !exists && m.maxSize > 0 && len(m.entries) >= m.maxSize {
		m.sweepLocked()
		if len(m.entries) >= m.maxSize {
			m.evictOldestLocked()
		}
	}
	m.entries[key] = entry{value: append([]byte(nil), value...), expires: expires}
	return nil
}

// Sweep removes expired entries and returns how many were dropped.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) sweepLocked() int {
	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// evictOldestLocked drops the entry closest to expiry.
func (m *Memory) evictOldestLocked() {
	var (
		victim string
		soon   time.Time
		found  bool
	)
	for k, e := range m.entries {
		if !found || (!e.expires.IsZero() && (soon.IsZero() || e.expires.Before(soon))) {
			victim, soon, found = k, e.expires, true
		}
	}
	if found {
		delete(m.entries, victim)
	}
}

// StartSweeper runs Sweep every interval until ctx is done.
func (m *Memory) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

var _ Cache = (*Memory)(nil)
