package ratelimit

import (
	"sync"
	"time"
)

// Store is the ephemeral counter backend. Both operations are atomic
// check-and-record: two near-simultaneous callers can never both observe the
// pre-increment count.
type Store interface {
	// Hit increments the fixed-window counter under key, creating it with the
	// given TTL on the first hit after expiry. It returns the post-increment
	// count, the time until the window resets, and whether the hit was within
	// the limit. A rejected hit is not recorded.
	Hit(key string, limit int, ttl time.Duration, now time.Time) (count int, expiresIn time.Duration, ok bool)

	// Slide records now in the sliding timestamp window under key after
	// discarding entries older than the window. When the window already holds
	// limit entries the hit is rejected and the time until the oldest entry
	// leaves the window is returned.
	Slide(key string, window time.Duration, limit int, now time.Time) (ok bool, retryAfter time.Duration)
}

type fixedCounter struct {
	count     int
	expiresAt time.Time
}

// MemoryStore is the in-process Store used by default. Counters expire with
// their window; a janitor evicts dead keys so long-lived processes do not
// accumulate identities.
type MemoryStore struct {
	mu      sync.Mutex
	fixed   map[string]fixedCounter
	sliding map[string][]time.Time
	done    chan struct{}
}

// NewMemoryStore constructs a MemoryStore and starts its eviction janitor.
// Call Close when the store is no longer needed.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		fixed:   make(map[string]fixedCounter),
		sliding: make(map[string][]time.Time),
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Close stops the eviction janitor.
func (s *MemoryStore) Close() {
	close(s.done)
}

func (s *MemoryStore) Hit(key string, limit int, ttl time.Duration, now time.Time) (int, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.fixed[key]
	if !exists || !now.Before(c.expiresAt) {
		c = fixedCounter{count: 0, expiresAt: now.Add(ttl)}
	}
	if c.count >= limit {
		return c.count, c.expiresAt.Sub(now), false
	}
	c.count++
	s.fixed[key] = c
	return c.count, c.expiresAt.Sub(now), true
}

func (s *MemoryStore) Slide(key string, window time.Duration, limit int, now time.Time) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	stamps := s.sliding[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		s.sliding[key] = kept
		return false, kept[0].Add(window).Sub(now)
	}

	s.sliding[key] = append(kept, now)
	return true, 0
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.evict(now)
		}
	}
}

func (s *MemoryStore) evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, c := range s.fixed {
		if !now.Before(c.expiresAt) {
			delete(s.fixed, key)
		}
	}
	cutoff := now.Add(-burstWindow)
	for key, stamps := range s.sliding {
		live := false
		for _, ts := range stamps {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(s.sliding, key)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
