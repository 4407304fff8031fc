package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func limitedHandler(cfg RateLimitConfig) http.Handler {
	return RateLimit(cfg)(okHandler())
}

func get(t *testing.T, h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstWithinCapacity(t *testing.T) {
	h := limitedHandler(RateLimitConfig{Max: 5, Window: time.Minute})

	for i := range 5 {
		w := get(t, h, "192.168.1.1:12345")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_ExhaustedBucketRejects(t *testing.T) {
	h := limitedHandler(RateLimitConfig{Max: 2, Window: time.Minute})

	for range 2 {
		w := get(t, h, "10.0.0.1:9999")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := get(t, h, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	err := json.NewDecoder(w.Body).Decode(&body)
	require.NoError(t, err)
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := limitedHandler(RateLimitConfig{Max: 1, Window: time.Minute})

	assert.Equal(t, http.StatusOK, get(t, h, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "10.0.0.2:1234").Code)
	// Same IP on a different port still hits the same bucket.
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "10.0.0.1:5678").Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := limitedHandler(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-API-Key")
		},
	})

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("key-a").Code)
	assert.Equal(t, http.StatusTooManyRequests, send("key-a").Code)
	assert.Equal(t, http.StatusOK, send("key-b").Code)
}

func TestRateLimit_ForwardedForFirstHop(t *testing.T) {
	h := limitedHandler(RateLimitConfig{Max: 1, Window: time.Minute})

	send := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remoteAddr
		req.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("192.168.1.1:4444").Code)
	// Different RemoteAddr, same forwarded client.
	assert.Equal(t, http.StatusTooManyRequests, send("192.168.1.2:5555").Code)
}

func TestLimiter_Refill(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, _, _, ok := l.take("k")
	require.True(t, ok)
	_, _, _, ok = l.take("k")
	require.True(t, ok)

	_, retryAfter, _, ok := l.take("k")
	require.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))

	// Half a window refills half the capacity: one token.
	now = now.Add(30 * time.Second)
	remaining, _, _, ok := l.take("k")
	require.True(t, ok)
	assert.Equal(t, 0, remaining)

	_, _, _, ok = l.take("k")
	assert.False(t, ok)
}

func TestLimiter_SweepDropsIdleBuckets(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 3, Window: time.Minute})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.take("idle")
	l.take("busy")

	now = now.Add(time.Minute)
	l.take("busy")
	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "idle")
	assert.Contains(t, l.buckets, "busy")
}
