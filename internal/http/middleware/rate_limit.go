package middleware

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/kitchenops/sessionbridge/internal/http/response"
	"github.com/kitchenops/sessionbridge/internal/observability"
)

// RateLimiter combines a token bucket (burst smoothing) with a sliding
// window (sustained limit), keyed by client IP. State is process-local;
// the auth endpoints are the only consumers and they fail closed anyway.
type RateLimiter struct {
	limit        int
	window       time.Duration
	burst        int
	refillPerSec float64
	scope        string

	mu        sync.Mutex
	states    map[string]*limiterState
	cleanupAt time.Time
}

type limiterState struct {
	tokens     float64
	lastRefill time.Time
	hits       []time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	refill := float64(limit) / window.Seconds()
	if refill <= 0 {
		refill = 1
	}
	return &RateLimiter{
		limit:        limit,
		window:       window,
		burst:        limit,
		refillPerSec: refill,
		scope:        "api",
		states:       make(map[string]*limiterState),
		cleanupAt:    time.Now().Add(time.Minute),
	}
}

// WithScope names the limiter in metrics.
func (rl *RateLimiter) WithScope(scope string) *RateLimiter {
	rl.scope = scope
	return rl
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIPKey(r)
			allowed, retryAfter, remaining, resetAt := rl.allow(key)
			writeRateLimitHeaders(w.Header(), rl.limit, remaining, resetAt)
			if !allowed {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "deny")
				w.Header().Set("Retry-After", retryAfterHeader(retryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			observability.RecordRateLimitDecision(r.Context(), rl.scope, "allow")
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string) (allowed bool, retryAfter time.Duration, remaining int, resetAt time.Time) {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.cleanupAt) {
		for k, st := range rl.states {
			if len(st.hits) == 0 && now.Sub(st.lastRefill) > 2*rl.window {
				delete(rl.states, k)
			}
		}
		rl.cleanupAt = now.Add(rl.window)
	}

	st, ok := rl.states[key]
	if !ok {
		st = &limiterState{tokens: float64(rl.burst), lastRefill: now}
		rl.states[key] = st
	}
	if now.After(st.lastRefill) {
		elapsed := now.Sub(st.lastRefill).Seconds()
		st.tokens = math.Min(float64(rl.burst), st.tokens+elapsed*rl.refillPerSec)
		st.lastRefill = now
	}

	cutoff := now.Add(-rl.window)
	pruned := st.hits[:0]
	for _, hit := range st.hits {
		if hit.After(cutoff) {
			pruned = append(pruned, hit)
		}
	}
	st.hits = pruned

	var bucketRetry time.Duration
	if st.tokens < 1 {
		need := 1 - st.tokens
		bucketRetry = time.Duration(math.Ceil(need / rl.refillPerSec * float64(time.Second)))
	}
	var windowRetry time.Duration
	if len(st.hits) >= rl.limit {
		windowRetry = st.hits[0].Add(rl.window).Sub(now)
		if windowRetry < 0 {
			windowRetry = 0
		}
	}

	allowed = bucketRetry <= 0 && windowRetry <= 0
	if allowed {
		st.tokens = math.Max(st.tokens-1, 0)
		st.hits = append(st.hits, now)
	}

	remaining = rl.limit - len(st.hits)
	if tokenRemaining := int(math.Floor(st.tokens)); tokenRemaining < remaining {
		remaining = tokenRemaining
	}
	if remaining < 0 {
		remaining = 0
	}

	retryAfter = bucketRetry
	if windowRetry > retryAfter {
		retryAfter = windowRetry
	}
	if !allowed && retryAfter <= 0 {
		retryAfter = time.Second
	}

	resetAt = now.Add(rl.window)
	if len(st.hits) > 0 {
		resetAt = st.hits[0].Add(rl.window)
	}
	if !allowed {
		resetAt = now.Add(retryAfter)
	}
	return allowed, retryAfter, remaining, resetAt
}

func clientIPKey(r *http.Request) string {
	if ip := parseRequestIP(r); ip != nil {
		return ip.String()
	}
	return r.RemoteAddr
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}

func writeRateLimitHeaders(h http.Header, limit, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	if remaining < 0 {
		remaining = 0
	}
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	if resetAt.IsZero() {
		resetAt = time.Now().Add(time.Second)
	}
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))
}
