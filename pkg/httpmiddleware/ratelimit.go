package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-key token bucket rate limiter.
type RateLimitConfig struct {
	// Max is the bucket capacity: the number of requests a key may burst
	// before refill pacing takes over. Refill rate is Max per Window.
	Max int
	// Window is the time it takes an empty bucket to refill completely.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request.
	// If nil, the client IP address is used.
	KeyFunc func(*http.Request) string
}

// bucket is the refill state for one key. tokens is fractional so refill
// accrues smoothly between requests.
type bucket struct {
	tokens float64
	last   time.Time
}

type limiter struct {
	cfg  RateLimitConfig
	rate float64 // tokens per second

	now func() time.Time // swapped in tests

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIPKey
	}
	return &limiter{
		cfg:     cfg,
		rate:    float64(cfg.Max) / cfg.Window.Seconds(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// take attempts to consume one token for key. It reports the tokens left,
// how long until the next token becomes available when denied, and when the
// bucket will be full again.
func (l *limiter) take(key string) (remaining int, retryAfter time.Duration, fullAt time.Time, ok bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, found := l.buckets[key]
	if !found {
		b = &bucket{tokens: float64(l.cfg.Max), last: now}
		l.buckets[key] = b
	} else {
		b.tokens += now.Sub(b.last).Seconds() * l.rate
		if b.tokens > float64(l.cfg.Max) {
			b.tokens = float64(l.cfg.Max)
		}
		b.last = now
	}

	if b.tokens < 1 {
		wait := (1 - b.tokens) / l.rate
		refill := (float64(l.cfg.Max) - b.tokens) / l.rate
		return 0, time.Duration(wait * float64(time.Second)), now.Add(time.Duration(refill * float64(time.Second))), false
	}

	b.tokens--
	refill := (float64(l.cfg.Max) - b.tokens) / l.rate
	return int(b.tokens), 0, now.Add(time.Duration(refill * float64(time.Second))), true
}

// sweep drops buckets that have been idle long enough to be full again.
// A full bucket is indistinguishable from a fresh one, so dropping it is safe.
func (l *limiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if now.Sub(b.last) >= l.cfg.Window {
			delete(l.buckets, key)
		}
	}
}

// RateLimit returns a middleware that enforces a per-key token bucket rate
// limit. Denied requests get 429 Too Many Requests with a JSON body and a
// Retry-After header. Every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining, and X-RateLimit-Reset.
//
// This variant never evicts idle buckets. Use RateLimitWithCleanup on
// long-running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimitMiddleware(newLimiter(cfg))
}

// RateLimitWithCleanup is like RateLimit but also sweeps idle buckets once
// per window until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
	return rateLimitMiddleware(l)
}

func rateLimitMiddleware(l *limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, retryAfter, fullAt, ok := l.take(l.cfg.KeyFunc(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(fullAt.Unix(), 10))

			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIPKey derives the rate limit key from the client IP: first hop of
// X-Forwarded-For, then X-Real-IP, then RemoteAddr.
func clientIPKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
