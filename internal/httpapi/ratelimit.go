package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/metrics"
)

const (
	rateLimitPerMinute = 60
	rateLimitBurst     = rateLimitPerMinute + 10
	bucketIdleTTL      = 3 * time.Minute
)

type rateBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-caller token bucket keyed on the
// Authorization header. Anonymous requests share a single bucket per
// the "anon" key.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*rateBucket)}
}

func rateLimitKey(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		header = "anon"
	}
	sum := sha256.Sum256([]byte(header))
	return hex.EncodeToString(sum[:])
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &rateBucket{limiter: rate.NewLimiter(rate.Limit(rateLimitPerMinute)/60, rateLimitBurst)}
		rl.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// Sweep drops buckets that have been idle long enough to refill
// completely.
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-bucketIdleTTL)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// RunSweeper periodically evicts idle buckets until stop is closed.
func (rl *RateLimiter) RunSweeper(stop <-chan struct{}) {
	ticker := time.NewTicker(bucketIdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Sweep()
		case <-stop:
			return
		}
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.bucket(rateLimitKey(r))

		tokens := limiter.Tokens()
		remaining := int(tokens)
		if remaining < 0 {
			remaining = 0
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rateLimitBurst))

		if !limiter.Allow() {
			reservation := limiter.Reserve()
			delay := reservation.Delay()
			reservation.Cancel()

			retryAfter := delay
			if retryAfter < time.Second {
				retryAfter = time.Second
			}
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(retryAfter).Unix(), 10))
			metrics.RateLimitedTotal.Inc()
			respondError(w, r, domain.RateLimited(retryAfter))
			return
		}

		if remaining > 0 {
			remaining--
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
		next.ServeHTTP(w, r)
	})
}
