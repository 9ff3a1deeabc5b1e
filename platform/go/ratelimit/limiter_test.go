package ratelimit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time               { return c.now }
func (c *fakeClock) Advance(d time.Duration)      { c.now = c.now.Add(d) }
func newFakeClock() *fakeClock                    { return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)} }
func newTestLimiter(clock *fakeClock) (*Limiter, *MemoryStore) {
	store := NewMemoryStore()
	return New(store).WithClock(clock.Now), store
}

func TestAllowPerMinuteCap(t *testing.T) {
	clock := newFakeClock()
	limiter, store := newTestLimiter(clock)
	defer store.Close()

	identity := UserIdentity(uuid.New())

	// free tier: per_minute=30, burst=10 over 10s. Space calls 1.5s apart so
	// the burst window never holds more than 7 entries and all 31 calls land
	// inside the same minute window.
	granted := 0
	for i := 0; i < 31; i++ {
		d := limiter.Allow(identity, TierFree, "")
		if d.Allowed {
			granted++
		} else {
			require.Equal(t, WindowMinute, d.Window)
			require.Equal(t, 30, d.Limit)
			require.LessOrEqual(t, d.RetryAfter, 60)
			require.Greater(t, d.RetryAfter, 0)
		}
		clock.Advance(1500 * time.Millisecond)
	}
	require.Equal(t, 30, granted)
}

func TestAllowBurstWindowSlides(t *testing.T) {
	clock := newFakeClock()
	limiter, store := newTestLimiter(clock)
	defer store.Close()

	identity := GuestIdentity("203.0.113.9", "curl/8.0")

	// guest burst cap is 5 in 10s.
	for i := 0; i < 5; i++ {
		require.True(t, limiter.Allow(identity, TierGuest, "").Allowed)
	}
	d := limiter.Allow(identity, TierGuest, "")
	require.False(t, d.Allowed)
	require.Equal(t, WindowBurst, d.Window)
	require.LessOrEqual(t, d.RetryAfter, 10)

	// Once the oldest timestamps fall out of the 10s window the identity may
	// proceed again.
	clock.Advance(11 * time.Second)
	require.True(t, limiter.Allow(identity, TierGuest, "").Allowed)
}

func TestAllowWindowResetsAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	limiter, store := newTestLimiter(clock)
	defer store.Close()

	identity := UserIdentity(uuid.New())

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow(identity, TierGuest, "").Allowed)
		clock.Advance(3 * time.Second)
	}
	// guest per_minute=10 exhausted inside this minute.
	require.False(t, limiter.Allow(identity, TierGuest, "").Allowed)

	clock.Advance(time.Minute)
	require.True(t, limiter.Allow(identity, TierGuest, "").Allowed)
}

func TestAllowEndpointOverrideCheckedFirst(t *testing.T) {
	clock := newFakeClock()
	limiter, store := newTestLimiter(clock)
	defer store.Close()

	identity := UserIdentity(uuid.New())

	// business tier general caps are far above the tenant.create override of
	// 5/hour, so the override must be the one that trips.
	for i := 0; i < 5; i++ {
		d := limiter.Allow(identity, TierBusiness, EndpointTenantCreate)
		require.True(t, d.Allowed, "call %d", i)
		clock.Advance(5 * time.Second)
	}

	d := limiter.Allow(identity, TierBusiness, EndpointTenantCreate)
	require.False(t, d.Allowed)
	require.Equal(t, EndpointTenantCreate, d.Endpoint)
	require.Equal(t, WindowHour, d.Window)
	require.Equal(t, 5, d.Limit)
	require.LessOrEqual(t, d.RetryAfter, 3600)

	// The same identity is still fine on endpoints without an override.
	require.True(t, limiter.Allow(identity, TierBusiness, "").Allowed)
}

func TestAllowTierCapsStillApplyWithEndpoint(t *testing.T) {
	clock := newFakeClock()
	limiter, store := newTestLimiter(clock)
	defer store.Close()

	identity := GuestIdentity("198.51.100.7", "Mozilla/5.0")

	// slug.check allows 30/minute, but a guest's own per-minute cap is 10 and
	// both must pass.
	granted := 0
	for i := 0; i < 12; i++ {
		if limiter.Allow(identity, TierGuest, EndpointSlugCheck).Allowed {
			granted++
		}
		clock.Advance(3 * time.Second)
	}
	require.Equal(t, 10, granted)
}

func TestIdentitiesAreIndependent(t *testing.T) {
	clock := newFakeClock()
	limiter, store := newTestLimiter(clock)
	defer store.Close()

	a := GuestIdentity("192.0.2.1", "agent-a")
	b := GuestIdentity("192.0.2.1", "agent-b")
	require.NotEqual(t, a, b)

	for i := 0; i < 5; i++ {
		require.True(t, limiter.Allow(a, TierGuest, "").Allowed)
	}
	require.False(t, limiter.Allow(a, TierGuest, "").Allowed)
	require.True(t, limiter.Allow(b, TierGuest, "").Allowed)
}

func TestMemoryStoreEvict(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	now := time.Now()
	store.Hit("k1", 10, time.Minute, now)
	store.Slide("k2", burstWindow, 5, now)

	store.evict(now.Add(2 * time.Minute))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Empty(t, store.fixed)
	require.Empty(t, store.sliding)
}
