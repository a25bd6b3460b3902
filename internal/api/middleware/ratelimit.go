package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zinses-rechner/calcsync/internal/api/shared"
)

const (
	// rateLimitWindow is the advertised window for Retry-After and the
	// X-RateLimit-Reset header.
	rateLimitWindow = 60 * time.Second

	// staleAfter is how long an idle client bucket survives before the
	// next request sweeps it away.
	staleAfter = 3 * time.Minute
)

// RateLimiter applies a per-client token bucket to incoming requests.
// Clients are keyed by IP, taken from proxy headers when present.
// Loopback addresses are exempt so local health tooling is never throttled.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rps sustained requests per
// second with the given burst per client.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		clients:   make(map[string]*clientBucket),
		lastSweep: time.Now(),
	}
}

// Limit wraps next with the per-client rate check. Denied requests get a
// 429 with Retry-After and the X-RateLimit-* headers. Allowed requests get
// the X-RateLimit-* headers describing the remaining budget.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	perMinute := strconv.Itoa(int(float64(rl.rps) * 60))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if parsed := net.ParseIP(ip); parsed != nil && parsed.IsLoopback() {
			next.ServeHTTP(w, r)
			return
		}

		limiter := rl.bucketFor(ip)
		resetAt := strconv.FormatInt(time.Now().Add(rateLimitWindow).Unix(), 10)

		if !limiter.Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(int(rateLimitWindow.Seconds())))
			w.Header().Set("X-RateLimit-Limit", perMinute)
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", resetAt)
			shared.RespondWithEnvelope(w, r, http.StatusTooManyRequests, shared.ErrorEnvelope{
				Error:      "RATE_LIMIT_EXCEEDED",
				Message:    "Zu viele Anfragen. Bitte versuchen Sie es später erneut.",
				RetryAfter: int(rateLimitWindow.Seconds()),
			})
			return
		}

		remaining := int(limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", perMinute)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", resetAt)

		next.ServeHTTP(w, r)
	})
}

// bucketFor returns the limiter for ip, creating it on first sight.
// Idle buckets are swept opportunistically so the map does not grow with
// every client that ever connected.
func (rl *RateLimiter) bucketFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > staleAfter {
		for key, bucket := range rl.clients {
			if now.Sub(bucket.lastSeen) > staleAfter {
				delete(rl.clients, key)
			}
		}
		rl.lastSweep = now
	}

	bucket, ok := rl.clients[ip]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = bucket
	}
	bucket.lastSeen = now

	return bucket.limiter
}

// clientIP resolves the client address, preferring proxy headers in the
// order CDN, X-Forwarded-For, X-Real-IP, then the direct peer address.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
