// ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dalemusser/formcheck/httputil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// KeyLimiter keeps one token bucket per key (client IP).
type KeyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyLimiter allows rps requests per second per key with the given burst.
// Keys idle for longer than ttl are dropped by Sweep.
func NewKeyLimiter(rps float64, burst int, ttl time.Duration) *KeyLimiter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &KeyLimiter{
		limiters: make(map[string]*entry),
		rate:     rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow reports whether one more request for key fits in its bucket.
func (kl *KeyLimiter) Allow(key string) bool {
	kl.mu.Lock()
	now := kl.now()
	e, ok := kl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(kl.rate, kl.burst)}
		kl.limiters[key] = e
	}
	e.lastSeen = now
	kl.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Sweep drops keys idle for longer than the TTL.
func (kl *KeyLimiter) Sweep() {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	for key, e := range kl.limiters {
		if now.Sub(e.lastSeen) > kl.ttl {
			delete(kl.limiters, key)
		}
	}
}

// Run sweeps every TTL until ctx is done.
func (kl *KeyLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(kl.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			kl.Sweep()
		}
	}
}

// Size returns the number of tracked keys.
func (kl *KeyLimiter) Size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}

// ClientIP keys requests by the host part of RemoteAddr. Behind a proxy,
// run chi's RealIP middleware first so RemoteAddr holds the client address.
// RealIP trusts X-Forwarded-For as sent, so a client that reaches the
// server directly could pick a fresh key per request; the router only
// installs it when trust_proxy is set.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the per-client limit with a JSON 429.
// A nil limiter disables limiting.
func Middleware(kl *KeyLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		if kl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)
			if !kl.Allow(key) {
				logger.Debug("rate limited", zap.String("client", key), zap.String("path", r.URL.Path))
				retry := 1
				if kl.rate > 0 {
					if secs := int(1 / float64(kl.rate)); secs > retry {
						retry = secs
					}
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.JSONError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
