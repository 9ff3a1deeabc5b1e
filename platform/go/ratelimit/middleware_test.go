package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/diploy/hostfleet/platform/go/metrics"
)

func TestMiddlewareRejectsAndCounts(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	limiter := New(store)

	handler := Middleware(limiter, GuestResolver, "", nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	counter := metrics.RateLimitRejections.WithLabelValues(WindowBurst, string(TierGuest))
	before := testutil.ToFloat64(counter)

	// guest burst cap is 5 per 10s; the sixth request from the same client
	// trips it.
	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7:54321"
		req.Header.Set("User-Agent", "curl/8.5.0")
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	require.Equal(t, http.StatusTooManyRequests, last.Code)
	require.NotEmpty(t, last.Header().Get("Retry-After"))
	require.Equal(t, before+1, testutil.ToFloat64(counter))
}
