// Package ratelimit implements the per-identity, multi-window request
// limiter that gates every mutating entry point. Counters are ephemeral:
// they live in a TTL key-value store and expire with their window.
package ratelimit

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier buckets identities into cap sets. Unauthenticated callers are guests;
// authenticated callers map from their plan; operators get admin.
type Tier string

const (
	TierGuest    Tier = "guest"
	TierFree     Tier = "free"
	TierStarter  Tier = "starter"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
	TierAdmin    Tier = "admin"
)

// Window identifiers reported on rejection.
const (
	WindowBurst  = "burst"
	WindowMinute = "minute"
	WindowHour   = "hour"
	WindowDay    = "day"
)

const burstWindow = 10 * time.Second

// Caps carries the four window limits for one tier.
type Caps struct {
	Burst     int
	PerMinute int
	PerHour   int
	PerDay    int
}

var tierCaps = map[Tier]Caps{
	TierGuest:    {Burst: 5, PerMinute: 10, PerHour: 50, PerDay: 100},
	TierFree:     {Burst: 10, PerMinute: 30, PerHour: 500, PerDay: 2000},
	TierStarter:  {Burst: 20, PerMinute: 60, PerHour: 1000, PerDay: 10000},
	TierPro:      {Burst: 30, PerMinute: 120, PerHour: 3000, PerDay: 50000},
	TierBusiness: {Burst: 50, PerMinute: 300, PerHour: 10000, PerDay: 200000},
	TierAdmin:    {Burst: 100, PerMinute: 1000, PerHour: 50000, PerDay: 1000000},
}

// CapsForTier returns the cap set for a tier, falling back to guest caps for
// unknown tiers.
func CapsForTier(tier Tier) Caps {
	if caps, ok := tierCaps[tier]; ok {
		return caps
	}
	return tierCaps[TierGuest]
}

// EndpointCaps holds per-endpoint overrides, checked before and independently
// of the general tier caps. A zero field means the window is unbounded for
// that endpoint.
type EndpointCaps struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// Endpoint keys with dedicated caps.
const (
	EndpointTenantCreate  = "tenant.create"
	EndpointBackupCreate  = "backup.create"
	EndpointPasswordReset = "password.reset"
	EndpointContactSend   = "contact.send"
	EndpointSlugCheck     = "slug.check"
)

var endpointCaps = map[string]EndpointCaps{
	EndpointTenantCreate:  {PerHour: 5, PerDay: 10},
	EndpointBackupCreate:  {PerHour: 3, PerDay: 20},
	EndpointPasswordReset: {PerHour: 3, PerDay: 10},
	EndpointContactSend:   {PerHour: 5, PerDay: 20},
	EndpointSlugCheck:     {PerMinute: 30, PerHour: 100},
}

// Decision is the outcome of one Allow call. On rejection, Window names the
// violated window and RetryAfter the seconds until it resets.
type Decision struct {
	Allowed    bool
	Window     string
	Endpoint   string // set when an endpoint override tripped
	Limit      int
	Remaining  int
	RetryAfter int
}

// UserIdentity keys an authenticated caller by owner id.
func UserIdentity(ownerID uuid.UUID) string {
	return "user:" + ownerID.String()
}

// GuestIdentity keys an unauthenticated caller by IP plus a hash of the
// client signature, so distinct clients behind one NAT do not pool counters.
func GuestIdentity(ip, userAgent string) string {
	if userAgent == "" {
		userAgent = "no-agent"
	}
	sum := md5.Sum([]byte(userAgent))
	return "ip:" + ip + ":" + hex.EncodeToString(sum[:])
}

// Limiter evaluates the nested windows against a counter store. It performs
// no I/O beyond the store and never blocks on anything else.
type Limiter struct {
	store Store
	now   func() time.Time
}

// New constructs a Limiter over the given counter store.
func New(store Store) *Limiter {
	if store == nil {
		panic("ratelimit store is required")
	}
	return &Limiter{store: store, now: time.Now}
}

// WithClock overrides the limiter's time source. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow checks the endpoint overrides (when endpoint is non-empty) and then
// the four tier windows, recording a hit in each passed window. Both the
// endpoint caps and the tier caps must pass.
func (l *Limiter) Allow(identity string, tier Tier, endpoint string) Decision {
	now := l.now()

	if endpoint != "" {
		if caps, ok := endpointCaps[endpoint]; ok {
			if d := l.checkEndpoint(identity, endpoint, caps, now); !d.Allowed {
				return d
			}
		}
	}

	caps := CapsForTier(tier)

	burstKey := fmt.Sprintf("rl:burst:%s", identity)
	if ok, retryAfter := l.store.Slide(burstKey, burstWindow, caps.Burst, now); !ok {
		return Decision{Window: WindowBurst, Limit: caps.Burst, RetryAfter: ceilSeconds(retryAfter)}
	}

	fixed := []struct {
		window string
		limit  int
		ttl    time.Duration
	}{
		{WindowMinute, caps.PerMinute, time.Minute},
		{WindowHour, caps.PerHour, time.Hour},
		{WindowDay, caps.PerDay, 24 * time.Hour},
	}
	decision := Decision{Allowed: true}
	for _, w := range fixed {
		key := fmt.Sprintf("rl:%s:%s", w.window, identity)
		count, expiresIn, ok := l.store.Hit(key, w.limit, w.ttl, now)
		if !ok {
			return Decision{Window: w.window, Limit: w.limit, RetryAfter: ceilSeconds(expiresIn)}
		}
		if w.window == WindowMinute {
			decision.Limit = w.limit
			decision.Remaining = w.limit - count
		}
	}
	return decision
}

func (l *Limiter) checkEndpoint(identity, endpoint string, caps EndpointCaps, now time.Time) Decision {
	windows := []struct {
		window string
		limit  int
		ttl    time.Duration
	}{
		{WindowMinute, caps.PerMinute, time.Minute},
		{WindowHour, caps.PerHour, time.Hour},
		{WindowDay, caps.PerDay, 24 * time.Hour},
	}
	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}
		key := fmt.Sprintf("rl:ep:%s:%s:%s", endpoint, w.window, identity)
		if _, expiresIn, ok := l.store.Hit(key, w.limit, w.ttl, now); !ok {
			return Decision{Window: w.window, Endpoint: endpoint, Limit: w.limit, RetryAfter: ceilSeconds(expiresIn)}
		}
	}
	return Decision{Allowed: true}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
