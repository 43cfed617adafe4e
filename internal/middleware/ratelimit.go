package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter hands out one token-bucket limiter per key (a
// terminal's till id, a customer session's account id, or a bare client
// IP for unauthenticated endpoints). Kept structurally near-verbatim from
// the teacher's internal/middleware/ratelimit.go RateLimiter: same
// per-key map guarded by a mutex and the same cleanup-goroutine shape,
// re-keyed from a user uuid to a generic string key.
type KeyedRateLimiter struct {
	mu                sync.RWMutex
	limiters          map[string]*rate.Limiter
	requestsPerMinute int
	burst             int
}

func NewKeyedRateLimiter(requestsPerMinute, burst int) *KeyedRateLimiter {
	rl := &KeyedRateLimiter{
		limiters:          make(map[string]*rate.Limiter),
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
	}
	go rl.cleanupInactiveLimiters()
	return rl
}

func (rl *KeyedRateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.requestsPerMinute)), rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// cleanupInactiveLimiters keeps the per-key map from growing unbounded
// across a long-running festival weekend with many terminal sessions.
func (rl *KeyedRateLimiter) cleanupInactiveLimiters() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for key, limiter := range rl.limiters {
			if limiter.TokensAt(time.Now()) >= float64(rl.burst) {
				delete(rl.limiters, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimitByTerminal throttles the Terminal API surface per till id.
func RateLimitByTerminal(rl *KeyedRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := TerminalSession(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			rateLimitOrReject(w, r, next, rl, fmt.Sprintf("terminal:%d", claims.SubjectID))
		})
	}
}

// RateLimitByCustomer throttles the Customer Portal surface per account.
func RateLimitByCustomer(rl *KeyedRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, ok := CustomerAccountID(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			rateLimitOrReject(w, r, next, rl, fmt.Sprintf("customer:%d", accountID))
		})
	}
}

// RateLimitByIP throttles unauthenticated endpoints (e.g. customer login)
// by client address.
func RateLimitByIP(rl *KeyedRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rateLimitOrReject(w, r, next, rl, fmt.Sprintf("ip:%s", ClientIP(r)))
		})
	}
}

func rateLimitOrReject(w http.ResponseWriter, r *http.Request, next http.Handler, rl *KeyedRateLimiter, key string) {
	limiter := rl.get(key)
	if !limiter.Allow() {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.requestsPerMinute))
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","message":"too many requests, try again later"}`))
		return
	}
	next.ServeHTTP(w, r)
}
