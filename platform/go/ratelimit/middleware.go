package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/diploy/hostfleet/platform/go/metrics"
)

// IdentityResolver maps an incoming request to a limiter identity and tier.
// The API server resolves authenticated owners to UserIdentity and their plan
// tier; everything else becomes a guest keyed by IP + client signature.
type IdentityResolver func(r *http.Request) (identity string, tier Tier)

// GuestResolver is the fallback resolver used when no authentication layer is
// mounted in front of the limiter.
func GuestResolver(r *http.Request) (string, Tier) {
	return GuestIdentity(clientIP(r), r.UserAgent()), TierGuest
}

// Middleware gates a route group behind the limiter. A non-empty endpoint
// applies that endpoint's override caps in addition to the tier caps.
func Middleware(limiter *Limiter, resolve IdentityResolver, endpoint string, logger *zap.Logger) func(http.Handler) http.Handler {
	if limiter == nil {
		panic("limiter is required")
	}
	if resolve == nil {
		resolve = GuestResolver
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, tier := resolve(r)
			decision := limiter.Allow(identity, tier, endpoint)

			if !decision.Allowed {
				metrics.RateLimitRejections.WithLabelValues(decision.Window, string(tier)).Inc()
				if logger != nil {
					logger.Warn("rate limit exceeded",
						zap.String("identity", identity),
						zap.String("tier", string(tier)),
						zap.String("window", decision.Window),
						zap.String("endpoint", decision.Endpoint),
						zap.Int("limit", decision.Limit),
					)
				}
				writeRejection(w, decision)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
			next.ServeHTTP(w, r)
		})
	}
}

func writeRejection(w http.ResponseWriter, d Decision) {
	message := fmt.Sprintf("rate limit exceeded: %d per %s", d.Limit, d.Window)
	if d.Endpoint != "" {
		message = fmt.Sprintf("rate limit exceeded for %s: %d per %s", d.Endpoint, d.Limit, d.Window)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(d.RetryAfter)*time.Second).Unix(), 10))
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":       "rate_limit_exceeded",
		"message":     message,
		"limit":       d.Limit,
		"period":      d.Window,
		"retry_after": d.RetryAfter,
	})
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from X-Forwarded-For.
	host := r.RemoteAddr
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
